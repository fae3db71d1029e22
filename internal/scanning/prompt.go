package scanning

// visionPrompt asks a vision model for a plain transcription of the receipt
const visionPrompt = `Transcribe all text visible on this receipt or invoice.
Keep the original line order and keep items, quantities and amounts on the same line as they appear.
Return only the transcribed text with no commentary and no markdown.`

// structurePrompt asks a model to map receipt text onto the ledger fields
const structurePrompt = `Extract the following fields from the receipt text below and return ONLY a JSON object with these exact fields:
{
  "date": "the receipt date exactly as printed, or null if not found",
  "item": "what was purchased; if the receipt lists several items, a short summary such as 'Coffee, Bagel (+2 more)'",
  "price": "unit price as printed, or null",
  "qty": "quantity as printed, or null",
  "total": "the grand total actually paid as printed, including the currency symbol if shown, or null"
}

Rules:
- Never guess. Use null for any field that is not present in the text.
- Return ONE object per receipt. For several items, total must be the grand total and price/qty must be null.
- Keep thousands separators and currency symbols exactly as printed.
- Return ONLY valid JSON, no markdown, no explanations.

Receipt text:
`

const systemPrompt = "You are an expert at reading and extracting information from receipts and invoices. You must carefully read all text and extract accurate information."
