package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	DefaultGeminiModel         = "gemini-2.5-flash"
	DefaultGeminiFallbackModel = "gemini-2.0-flash"
	defaultGeminiMaxTokens     = 8192
)

// GeminiConfig configures the Gemini backend
type GeminiConfig struct {
	APIKey            string
	Model             string
	FallbackModel     string
	RequestsPerMinute int // 0 disables rate limiting
	MaxOutputTokens   int32
}

// contentGenerator is the subset of *genai.GenerativeModel we use
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type namedModel struct {
	name string
	gen  contentGenerator
}

// Gemini implements VisionModel and Structurer using Google Gemini.
// Without an API key it reports itself unavailable.
type Gemini struct {
	client  *genai.Client
	models  []namedModel
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewGemini creates a Gemini backend. An empty API key is not an error.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		logger.Info("gemini api key not set, gemini backend disabled")
		return &Gemini{logger: logger}, nil
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = DefaultGeminiFallbackModel
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = defaultGeminiMaxTokens
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	var models []namedModel
	for _, name := range []string{cfg.Model, cfg.FallbackModel} {
		if len(models) > 0 && models[0].name == name {
			continue
		}
		m := client.GenerativeModel(name)
		m.SetMaxOutputTokens(cfg.MaxOutputTokens)
		models = append(models, namedModel{name: name, gen: m})
	}

	g := newGeminiWithModels(models, cfg.RequestsPerMinute, logger)
	g.client = client
	return g, nil
}

func newGeminiWithModels(models []namedModel, rpm int, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gemini{models: models, logger: logger}
	if rpm > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
	return g
}

// Available reports whether an API key was configured
func (g *Gemini) Available() bool {
	return len(g.models) > 0
}

// ExtractText transcribes a receipt image
func (g *Gemini) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	pngData, err := normalizeImage(image, mimeType)
	if err != nil {
		return "", err
	}
	// genai.ImageData takes the format suffix, not the MIME type
	text, err := g.generate(ctx, genai.ImageData("png", pngData), genai.Text(visionPrompt))
	if err != nil {
		return "", err
	}
	return cleanTranscription(text), nil
}

// StructureFields asks the model for the ledger fields found in text
func (g *Gemini) StructureFields(ctx context.Context, text string) (CandidateRecord, error) {
	resp, err := g.generate(ctx, genai.Text(structurePrompt+text))
	if err != nil {
		return CandidateRecord{}, err
	}
	rec, err := parseCandidateJSON(resp)
	if err != nil {
		return CandidateRecord{}, fmt.Errorf("parsing receipt data: %w", err)
	}
	return rec, nil
}

// generate tries each configured model in order and returns the first text answer
func (g *Gemini) generate(ctx context.Context, parts ...genai.Part) (string, error) {
	if !g.Available() {
		return "", ErrUnavailable
	}

	var lastErr error
	for _, m := range g.models {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}
		text, err := generateText(ctx, m.gen, parts...)
		if err == nil {
			return text, nil
		}
		g.logger.Warn("gemini.generate.failed", "model", m.name, "error", err)
		lastErr = fmt.Errorf("model %s: %w", m.name, err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func generateText(ctx context.Context, gen contentGenerator, parts ...genai.Part) (string, error) {
	resp, err := gen.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	return out, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
