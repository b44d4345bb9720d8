package services

import (
	"context"

	"github.com/voxline-ai/voxline/src/processors"
)

// AIService is the base interface for all AI services (STT, TTS, LLM)
type AIService interface {
	processors.FrameProcessor

	// Service lifecycle
	Initialize(ctx context.Context) error
	Cleanup() error
}

// STTService converts speech to text
type STTService interface {
	AIService

	SetLanguage(lang string)
	SetModel(model string)
}

// TTSService converts text to speech
type TTSService interface {
	AIService

	SetVoice(voiceID string)
	SetModel(model string)
}

// LLMService provides language model capabilities
type LLMService interface {
	AIService

	SetModel(model string)
	SetSystemPrompt(prompt string)
	SetTemperature(temp float64)
}

// LLMMessage represents a message in the conversation
type LLMMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// LLMContext holds the conversation context handed to the LLM service
type LLMContext struct {
	Messages     []LLMMessage
	SystemPrompt string
	Model        string
	Temperature  float64
}

// NewLLMContext creates a new LLM context
func NewLLMContext(systemPrompt string) *LLMContext {
	return &LLMContext{
		Messages:     make([]LLMMessage, 0),
		SystemPrompt: systemPrompt,
		Temperature:  0.7,
	}
}

// NewConversationContext creates a context seeded with the "begin
// conversation" user-role message, so the model produces the opening
// greeting as its first response.
func NewConversationContext(systemPrompt, openingInstruction string) *LLMContext {
	ctx := NewLLMContext(systemPrompt)
	ctx.AddUserMessage(openingInstruction)
	return ctx
}

func (c *LLMContext) AddUserMessage(content string) {
	c.Messages = append(c.Messages, LLMMessage{Role: "user", Content: content})
}

func (c *LLMContext) AddAssistantMessage(content string) {
	c.Messages = append(c.Messages, LLMMessage{Role: "assistant", Content: content})
}

func (c *LLMContext) AddSystemMessage(content string) {
	c.Messages = append(c.Messages, LLMMessage{Role: "system", Content: content})
}

func (c *LLMContext) Clear() {
	c.Messages = make([]LLMMessage, 0)
}

// Clone creates a deep copy of the context
func (c *LLMContext) Clone() *LLMContext {
	clone := &LLMContext{
		SystemPrompt: c.SystemPrompt,
		Model:        c.Model,
		Temperature:  c.Temperature,
		Messages:     make([]LLMMessage, len(c.Messages)),
	}
	copy(clone.Messages, c.Messages)
	return clone
}
