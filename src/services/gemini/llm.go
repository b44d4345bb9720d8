package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/processors"
	"github.com/voxline-ai/voxline/src/services"
)

const defaultAPIBase = "https://generativelanguage.googleapis.com"

// LLMService provides the dialogue stage using Google Gemini
type LLMService struct {
	*processors.BaseProcessor
	apiKey       string
	model        string
	temperature  float64
	maxTokens    int
	enableSearch bool
	apiBase      string
	context      *services.LLMContext
	ctx          context.Context
	cancel       context.CancelFunc

	// genCancel aborts the in-flight generation on interruption
	genMu     sync.Mutex
	genCancel context.CancelFunc
}

// LLMConfig holds configuration for Gemini
type LLMConfig struct {
	APIKey       string
	Model        string // e.g., "gemini-2.0-flash"
	SystemPrompt string
	Temperature  float64
	MaxTokens    int  // response token cap, 0 uses the provider default
	EnableSearch bool // ground responses with Google Search
}

// NewLLMService creates a new Gemini LLM service
func NewLLMService(config LLMConfig) *LLMService {
	s := &LLMService{
		apiKey:       config.APIKey,
		model:        config.Model,
		temperature:  config.Temperature,
		maxTokens:    config.MaxTokens,
		enableSearch: config.EnableSearch,
		apiBase:      defaultAPIBase,
		context:      services.NewLLMContext(config.SystemPrompt),
	}
	s.BaseProcessor = processors.NewBaseProcessor("Gemini", s)
	return s
}

func (s *LLMService) SetModel(model string) {
	s.model = model
}

func (s *LLMService) SetSystemPrompt(prompt string) {
	s.context.SystemPrompt = prompt
}

func (s *LLMService) SetTemperature(temp float64) {
	s.temperature = temp
}

func (s *LLMService) Initialize(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.Log().Info("initialized with model %s (search=%v)", s.model, s.enableSearch)
	return nil
}

func (s *LLMService) Cleanup() error {
	s.cancelGeneration()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *LLMService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.InterruptionFrame:
		// Arrives on the system channel so it can abort a generation
		// that is still streaming on the data channel
		s.cancelGeneration()
		return s.PushFrame(frame, direction)

	case *frames.LLMContextFrame:
		if llmContext, ok := f.Context.(*services.LLMContext); ok {
			s.Log().Debug("received context with %d messages", len(llmContext.Messages))
			s.context = llmContext

			s.PushFrame(frames.NewLLMFullResponseStartFrame(), frames.Downstream)
			if err := s.generateResponse(); err != nil {
				s.Log().Error("generate response failed: %v", err)
				s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
			}
			s.PushFrame(frames.NewLLMFullResponseEndFrame(), frames.Downstream)
		}
		return nil
	}

	return s.PushFrame(frame, direction)
}

func (s *LLMService) cancelGeneration() {
	s.genMu.Lock()
	cancel := s.genCancel
	s.genMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// buildRequest assembles the streamGenerateContent request body
func (s *LLMService) buildRequest() map[string]interface{} {
	contents := []map[string]interface{}{}

	// The system prompt rides in the first user message on a fresh
	// conversation; afterwards only the turn history is sent
	if s.context.SystemPrompt != "" && len(s.context.Messages) == 1 {
		contents = append(contents, map[string]interface{}{
			"role": "user",
			"parts": []map[string]string{
				{"text": s.context.SystemPrompt + "\n\n" + s.context.Messages[0].Content},
			},
		})
	} else {
		for _, msg := range s.context.Messages {
			role := msg.Role
			if role == "assistant" {
				role = "model" // Gemini uses "model" instead of "assistant"
			}
			if role == "system" {
				continue
			}
			contents = append(contents, map[string]interface{}{
				"role": role,
				"parts": []map[string]string{
					{"text": msg.Content},
				},
			})
		}
	}

	generationConfig := map[string]interface{}{
		"temperature": s.temperature,
	}
	if s.maxTokens > 0 {
		generationConfig["maxOutputTokens"] = s.maxTokens
	}
	requestBody := map[string]interface{}{
		"contents":         contents,
		"generationConfig": generationConfig,
	}
	if s.enableSearch {
		requestBody["tools"] = []map[string]interface{}{
			{"google_search": map[string]interface{}{}},
		}
	}
	return requestBody
}

func (s *LLMService) generateResponse() error {
	s.genMu.Lock()
	genCtx, cancel := context.WithCancel(s.ctx)
	s.genCancel = cancel
	s.genMu.Unlock()
	defer func() {
		cancel()
		s.genMu.Lock()
		s.genCancel = nil
		s.genMu.Unlock()
	}()

	bodyBytes, err := json.Marshal(s.buildRequest())
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?key=%s&alt=sse",
		s.apiBase, s.model, s.apiKey)

	req, err := http.NewRequestWithContext(genCtx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		if genCtx.Err() != nil {
			s.Log().Info("generation cancelled before response")
			return nil
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gemini API error: %s", string(body))
	}

	// The assistant aggregator downstream commits what was actually
	// spoken back into the context, so nothing is committed here
	total := 0
	scanner := bufio.NewScanner(resp.Body)

	for scanner.Scan() {
		if genCtx.Err() != nil {
			break
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var streamResp struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
				GroundingMetadata struct {
					WebSearchQueries []string `json:"webSearchQueries"`
				} `json:"groundingMetadata"`
			} `json:"candidates"`
		}
		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			continue
		}

		if len(streamResp.Candidates) > 0 {
			if queries := streamResp.Candidates[0].GroundingMetadata.WebSearchQueries; len(queries) > 0 {
				s.Log().Info("search grounding queries: %v", queries)
			}
			if len(streamResp.Candidates[0].Content.Parts) > 0 {
				content := streamResp.Candidates[0].Content.Parts[0].Text
				if content != "" {
					total += len(content)
					s.PushFrame(frames.NewLLMTextFrame(content), frames.Downstream)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil && genCtx.Err() == nil {
		return err
	}

	if genCtx.Err() != nil {
		s.Log().Info("generation cancelled mid-stream after %d chars", total)
		return nil
	}

	s.Log().Debug("assistant response length: %d", total)
	return nil
}
