package receipts

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// generateFunc sends contents to a model and returns the reply text.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content) (string, error)

// GeminiScanner is the concrete implementation of Scanner that uses Gemini.
type GeminiScanner struct {
	model      string
	categories []string
	generate   generateFunc
}

// NewGeminiScanner creates a scanner. The GenAI client reads its API key
// and backend from the environment (GOOGLE_API_KEY or Vertex settings).
func NewGeminiScanner(ctx context.Context, model string, categories []string) (*GeminiScanner, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiScanner: create genai client: %w", err)
	}

	if model == "" {
		model = DefaultModelName
	}

	return &GeminiScanner{
		model:      model,
		categories: categories,
		generate: func(ctx context.Context, model string, contents []*genai.Content) (string, error) {
			resp, err := client.Models.GenerateContent(ctx, model, contents, nil)
			if err != nil {
				return "", err
			}
			return resp.Text(), nil
		},
	}, nil
}

// Scan implements Scanner.
func (s *GeminiScanner) Scan(ctx context.Context, data []byte, mimeType string) (Extraction, error) {
	if !strings.HasPrefix(mimeType, "image/") && mimeType != "application/pdf" {
		return Extraction{}, fmt.Errorf("Scan: unsupported receipt type %q", mimeType)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildPrompt(s.categories)},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     data,
					},
				},
			},
		},
	}

	rawText, err := s.generate(ctx, s.model, contents)
	if err != nil {
		return Extraction{}, fmt.Errorf("Scan: generate content: %w", err)
	}
	if rawText == "" {
		return Extraction{}, fmt.Errorf("Scan: empty response from model")
	}

	return parseExtraction(rawText)
}

func buildPrompt(categories []string) string {
	var b strings.Builder
	b.WriteString("You read expense receipts.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Read the attached receipt.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no extra text).\n")
	b.WriteString("- Output a single JSON object with these fields:\n")
	b.WriteString("  - \"date\": string, ISO format \"YYYY-MM-DD\", or null\n")
	b.WriteString("  - \"vendor\": string (the merchant name), or null\n")
	b.WriteString("  - \"total\": number (the amount paid, no currency symbol), or null\n")
	if len(categories) > 0 {
		b.WriteString("  - \"category\": one of ")
		b.WriteString(strings.Join(quoteAll(categories), ", "))
		b.WriteString(", or null\n")
	}
	b.WriteString("\nReturn ONLY valid raw JSON. Do NOT wrap the response in code fences.\n")
	return b.String()
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

// Ensure GeminiScanner implements Scanner.
var _ Scanner = (*GeminiScanner)(nil)
