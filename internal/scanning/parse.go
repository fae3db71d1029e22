package scanning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const candidateSchemaJSON = `{
  "type": "object",
  "properties": {
    "date":  {"type": ["string", "null"]},
    "item":  {"type": ["string", "null"]},
    "price": {"type": ["string", "number", "null"]},
    "qty":   {"type": ["string", "number", "null"]},
    "total": {"type": ["string", "number", "null"]}
  }
}`

var candidateSchema = jsonschema.MustCompileString("candidate.json", candidateSchemaJSON)

// parseCandidateJSON parses a structured model response into a CandidateRecord.
// Fields the model reported as null or blank are left absent.
func parseCandidateJSON(text string) (CandidateRecord, error) {
	text = extractJSONObject(text)
	if text == "" {
		return CandidateRecord{}, fmt.Errorf("no JSON object found in response")
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return CandidateRecord{}, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := candidateSchema.Validate(v); err != nil {
		return CandidateRecord{}, fmt.Errorf("json does not match schema: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return CandidateRecord{}, fmt.Errorf("unmarshaling json: %w", err)
	}

	return CandidateRecord{
		Date:  rawField(raw["date"]),
		Item:  rawField(raw["item"]),
		Price: rawField(raw["price"]),
		Qty:   rawField(raw["qty"]),
		Total: rawField(raw["total"]),
	}, nil
}

// extractJSONObject strips markdown fences and cuts the text to the outermost object
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

// rawField keeps numbers as printed so the validator sees the model's exact digits
func rawField(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return ""
		}
		str = strings.TrimSpace(str)
		switch strings.ToLower(str) {
		case "null", "none", "n/a", "unknown":
			return ""
		}
		return str
	}
	return s
}

// cleanTranscription removes fences a vision model may wrap its answer in
func cleanTranscription(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.Index(text, "\n"); nl != -1 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
