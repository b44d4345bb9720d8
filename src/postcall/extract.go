package postcall

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/voxline-ai/voxline/src/store"
)

// Extraction is the fixed-schema JSON object the analysis model
// returns for one call. Unknown keys in the model output are dropped
// by the decoder, never merged.
type Extraction struct {
	store.Profile
	CallSummary string   `json:"callSummary"`
	Tags        []string `json:"tags"`
}

// Extractor turns a formatted transcript into structured call data
type Extractor interface {
	Extract(ctx context.Context, transcript string) (*Extraction, error)
}

// Adviser writes a coaching briefing for whoever makes the next call to
// the same client. Extractors that also implement Adviser get the
// expert suggestion step in the post-call workflow.
type Adviser interface {
	Advise(ctx context.Context, transcript string) (string, error)
}

const extractionSystemPrompt = `You are a post-call analyst for an investment advisory desk. You will receive the full transcript of a phone call between an advisor and a client. Analyze it and return a single JSON object with exactly these keys:

- clientType: string or null, one of "hni", "retail", "institutional"
- understandsCreditFunds: boolean or null
- hasMinimumInvestment: boolean or null
- knowsManeesh: boolean or null
- investorSophistication: string or null, one of "novice", "intermediate", "sophisticated"
- attitudeTowardsOffering: string or null, one of "positive", "neutral", "skeptical", "negative"
- wantsZoomCall: boolean or null
- shouldCallAgain: boolean or null
- interestedInSalesContact: boolean or null
- languagePreference: string or null
- notes: string or null, free-text observations useful for the next call
- callSummary: string, two or three sentences summarizing the call
- tags: array of short lowercase strings categorizing the call

Use null for anything the transcript does not establish. Respond with the JSON object only.`

const adviceSystemPrompt = `You are a senior sales coach for an investment advisory desk. You will receive the full transcript of a phone call between an advisor and a client. Write a short briefing for the advisor who makes the next call to this client: what worked, what to avoid, the client's open objections, and the single most promising angle to lead with. Respond with plain prose under 150 words.`

// GeminiExtractor runs the extraction through the Gemini API with a
// JSON response MIME type so the model is constrained to the schema.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

func NewGeminiExtractor(ctx context.Context, apiKey, model string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiExtractor{client: client, model: model}, nil
}

func (e *GeminiExtractor) Extract(ctx context.Context, transcript string) (*Extraction, error) {
	prompt := fmt.Sprintf("TRANSCRIPT:\n%s", transcript)

	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(extractionSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("generate extraction: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("empty or blocked extraction response")
	}

	var ext Extraction
	if err := json.Unmarshal([]byte(text), &ext); err != nil {
		return nil, fmt.Errorf("decode extraction JSON: %w", err)
	}
	return &ext, nil
}

func (e *GeminiExtractor) Advise(ctx context.Context, transcript string) (string, error) {
	prompt := fmt.Sprintf("TRANSCRIPT:\n%s", transcript)

	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(adviceSystemPrompt, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("generate advice: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty or blocked advice response")
	}
	return text, nil
}
