package openai

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

const defaultAPIURL = "https://api.openai.com/v1/chat/completions"

// LLMService provides the dialogue stage using OpenAI chat completions
type LLMService struct {
	*processors.BaseProcessor
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	apiURL      string
	context     *services.LLMContext
	ctx         context.Context
	cancel      context.CancelFunc

	// genCancel aborts the in-flight generation on interruption
	genMu     sync.Mutex
	genCancel context.CancelFunc
}

// LLMConfig holds configuration for OpenAI
type LLMConfig struct {
	APIKey       string
	Model        string // e.g., "gpt-4o", "gpt-4o-mini"
	SystemPrompt string
	Temperature  float64
	MaxTokens    int // response token cap, 0 uses the provider default
}

// NewLLMService creates a new OpenAI LLM service
func NewLLMService(config LLMConfig) *LLMService {
	s := &LLMService{
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		apiURL:      defaultAPIURL,
		context:     services.NewLLMContext(config.SystemPrompt),
	}
	s.BaseProcessor = processors.NewBaseProcessor("OpenAI", s)
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
	s.Log().Info("initialized with model %s", s.model)
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

	messages := []map[string]string{}
	if s.context.SystemPrompt != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": s.context.SystemPrompt,
		})
	}
	for _, msg := range s.context.Messages {
		messages = append(messages, map[string]string{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}

	requestBody := map[string]interface{}{
		"model":       s.model,
		"messages":    messages,
		"temperature": s.temperature,
		"stream":      true,
	}
	if s.maxTokens > 0 {
		requestBody["max_tokens"] = s.maxTokens
	}

	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(genCtx, "POST", s.apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
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
		return fmt.Errorf("OpenAI API error: %s", string(body))
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
		if data == "[DONE]" {
			break
		}

		var streamResp struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			continue
		}

		if len(streamResp.Choices) > 0 {
			content := streamResp.Choices[0].Delta.Content
			if content != "" {
				total += len(content)
				s.PushFrame(frames.NewLLMTextFrame(content), frames.Downstream)
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
