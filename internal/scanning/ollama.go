package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements VisionModel and Structurer using a local Ollama server.
// An empty base URL disables it.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama backend
// Recommended vision models for receipts:
//   - llava:1.6 (best balance of accuracy and speed)
//   - qwen2-vl:7b (good OCR capabilities)
//   - llava-phi3 (smaller, faster, but less accurate)
func NewOllama(baseURL string, modelName string) *Ollama {
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models are slow on CPU
		},
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Available reports whether a server URL was configured
func (o *Ollama) Available() bool {
	return o.baseURL != ""
}

// ExtractText transcribes a receipt image
func (o *Ollama) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	pngData, err := normalizeImage(image, mimeType)
	if err != nil {
		return "", err
	}
	text, err := o.chat(ctx, ollamaMessage{
		Role:    "user",
		Content: visionPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
	}, "")
	if err != nil {
		return "", err
	}
	return cleanTranscription(text), nil
}

// StructureFields asks the model for the ledger fields found in text
func (o *Ollama) StructureFields(ctx context.Context, text string) (CandidateRecord, error) {
	resp, err := o.chat(ctx, ollamaMessage{Role: "user", Content: structurePrompt + text}, "json")
	if err != nil {
		return CandidateRecord{}, err
	}
	rec, err := parseCandidateJSON(resp)
	if err != nil {
		return CandidateRecord{}, fmt.Errorf("parsing receipt data: %w", err)
	}
	return rec, nil
}

func (o *Ollama) chat(ctx context.Context, msg ollamaMessage, format string) (string, error) {
	if !o.Available() {
		return "", ErrUnavailable
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: format,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			msg,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	text := strings.TrimSpace(chatResp.Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return text, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
