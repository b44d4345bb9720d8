package registry

import (
	"fmt"
	"os"

	"github.com/voxline-ai/voxline/src/services"
	"github.com/voxline-ai/voxline/src/services/cartesia"
	"github.com/voxline-ai/voxline/src/services/deepgram"
	"github.com/voxline-ai/voxline/src/services/elevenlabs"
	"github.com/voxline-ai/voxline/src/services/gemini"
	"github.com/voxline-ai/voxline/src/services/openai"
)

// Config selects the concrete provider variants for one call-worker.
// API keys come from the environment, never from flags.
type Config struct {
	STTProvider string
	STTModel    string
	LLMProvider string
	LLMModel    string
	TTSProvider string
	TTSVoice    string

	SystemPrompt string
	Temperature  float64
	EnableSearch bool

	// OptimizeLatency trades answer length and transcription
	// confidence for faster turnaround across all three stages.
	OptimizeLatency bool
}

// responseTokenBudget caps LLM responses. The tight budget keeps
// generations short enough that synthesis starts sooner.
func responseTokenBudget(optimizeLatency bool) int {
	if optimizeLatency {
		return 800
	}
	return 2000
}

// sttEndpointing picks the Deepgram endpointing window in ms.
func sttEndpointing(optimizeLatency bool) int {
	if optimizeLatency {
		return 50
	}
	return 500
}

// NewSTT constructs the configured STT service
func NewSTT(cfg Config) (services.STTService, error) {
	switch cfg.STTProvider {
	case services.STTDeepgram:
		return deepgram.NewSTTService(deepgram.STTConfig{
			APIKey:      os.Getenv("DEEPGRAM_API_KEY"),
			Language:    "en-US",
			Model:       cfg.STTModel,
			Endpointing: sttEndpointing(cfg.OptimizeLatency),
		}), nil
	}
	return nil, fmt.Errorf("unsupported STT provider: %q", cfg.STTProvider)
}

// NewLLM constructs the configured LLM service
func NewLLM(cfg Config) (services.LLMService, error) {
	switch cfg.LLMProvider {
	case services.LLMGemini:
		return gemini.NewLLMService(gemini.LLMConfig{
			APIKey:       os.Getenv("GEMINI_API_KEY"),
			Model:        cfg.LLMModel,
			SystemPrompt: cfg.SystemPrompt,
			Temperature:  cfg.Temperature,
			MaxTokens:    responseTokenBudget(cfg.OptimizeLatency),
			EnableSearch: cfg.EnableSearch,
		}), nil
	case services.LLMOpenAI:
		return openai.NewLLMService(openai.LLMConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			Model:        cfg.LLMModel,
			SystemPrompt: cfg.SystemPrompt,
			Temperature:  cfg.Temperature,
			MaxTokens:    responseTokenBudget(cfg.OptimizeLatency),
		}), nil
	}
	return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.LLMProvider)
}

// NewTTS constructs the configured TTS service
func NewTTS(cfg Config) (services.TTSService, error) {
	switch cfg.TTSProvider {
	case services.TTSCartesia:
		return cartesia.NewTTSService(cartesia.TTSConfig{
			APIKey:  os.Getenv("CARTESIA_API_KEY"),
			VoiceID: cfg.TTSVoice,
		}), nil
	case services.TTSElevenLabs:
		return elevenlabs.NewTTSService(elevenlabs.TTSConfig{
			APIKey:       os.Getenv("ELEVENLABS_API_KEY"),
			VoiceID:      cfg.TTSVoice,
			Model:        "eleven_turbo_v2",
			UseStreaming: true,
			LowLatency:   cfg.OptimizeLatency,
		}), nil
	}
	return nil, fmt.Errorf("unsupported TTS provider: %q", cfg.TTSProvider)
}
