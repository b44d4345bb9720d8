package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/processors"
)

// TTSService provides text-to-speech using ElevenLabs. Streaming mode
// runs over the multi-stream websocket endpoint with per-utterance
// context ids; non-streaming mode falls back to the HTTP API.
type TTSService struct {
	*processors.BaseProcessor
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	useStreaming bool
	lowLatency   bool
	conn         *websocket.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	contextID    string

	isSpeaking bool
	mu         sync.Mutex
}

// TTSConfig holds configuration for ElevenLabs
type TTSConfig struct {
	APIKey       string
	VoiceID      string // e.g., "21m00Tcm4TlvDq8ikWAM" (Rachel)
	Model        string // e.g., "eleven_turbo_v2"
	OutputFormat string // "ulaw_8000", "alaw_8000", "pcm_16000", "pcm_22050", "pcm_24000", "pcm_44100" (default: "pcm_24000")
	UseStreaming bool   // Use WebSocket streaming for lower latency
	LowLatency   bool   // Trade quality for latency via optimize_streaming_latency
}

// NewTTSService creates a new ElevenLabs TTS service
func NewTTSService(config TTSConfig) *TTSService {
	outputFormat := config.OutputFormat
	if outputFormat == "" {
		outputFormat = "pcm_24000"
	}

	s := &TTSService{
		apiKey:       config.APIKey,
		voiceID:      config.VoiceID,
		model:        config.Model,
		outputFormat: outputFormat,
		useStreaming: config.UseStreaming,
		lowLatency:   config.LowLatency,
	}
	s.BaseProcessor = processors.NewBaseProcessor("ElevenLabsTTS", s)
	return s
}

func (s *TTSService) SetVoice(voiceID string) {
	s.voiceID = voiceID
}

func (s *TTSService) SetModel(model string) {
	s.model = model
}

func (s *TTSService) Initialize(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if !s.useStreaming {
		s.Log().Info("non-streaming mode initialized")
		return nil
	}

	s.contextID = uuid.New().String()

	wsURL := fmt.Sprintf("wss://api.elevenlabs.io/v1/text-to-speech/%s/multi-stream-input?model_id=%s&output_format=%s",
		s.voiceID, s.model, s.outputFormat)
	if s.lowLatency {
		wsURL += "&optimize_streaming_latency=3"
	}

	header := http.Header{}
	header.Set("xi-api-key", s.apiKey)

	var err error
	s.conn, _, err = websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return fmt.Errorf("failed to connect to ElevenLabs: %w", err)
	}

	// Initial config opens the context; the API key rides in the header
	config := map[string]interface{}{
		"text":       " ",
		"context_id": s.contextID,
		"voice_settings": map[string]interface{}{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}
	if err := s.conn.WriteJSON(config); err != nil {
		return fmt.Errorf("failed to send config: %w", err)
	}

	go s.receiveAudio()
	go s.keepaliveLoop()

	s.Log().Info("streaming mode connected (context: %s)", s.contextID)
	return nil
}

func (s *TTSService) Cleanup() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		if s.contextID != "" {
			s.conn.WriteJSON(map[string]interface{}{"close_socket": true})
		}
		s.conn.Close()
	}
	return nil
}

func (s *TTSService) keepaliveLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.conn != nil && s.contextID != "" {
				msg := map[string]interface{}{
					"text":       "",
					"context_id": s.contextID,
				}
				if err := s.conn.WriteJSON(msg); err != nil {
					s.Log().Warn("keepalive failed: %v", err)
					return
				}
			}
		}
	}
}

func (s *TTSService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		return s.PushFrame(frame, direction)

	case *frames.EndFrame:
		s.Log().Info("received EndFrame, cleaning up")
		if err := s.Cleanup(); err != nil {
			s.Log().Error("cleanup failed: %v", err)
		}
		return s.PushFrame(frame, direction)

	case *frames.InterruptionFrame:
		return s.handleInterruption(frame, direction)

	case *frames.TextFrame:
		// Forward after synthesis so the turn controller and assistant
		// aggregator downstream still see the response text
		if err := s.synthesizeInput(ctx, f.Text); err != nil {
			return err
		}
		return s.PushFrame(frame, direction)

	case *frames.LLMTextFrame:
		if err := s.synthesizeInput(ctx, f.Text); err != nil {
			return err
		}
		return s.PushFrame(frame, direction)

	case *frames.LLMFullResponseEndFrame:
		if s.useStreaming && s.conn != nil && s.contextID != "" {
			flushMsg := map[string]interface{}{
				"text":       "",
				"context_id": s.contextID,
				"flush":      true,
			}
			if err := s.conn.WriteJSON(flushMsg); err != nil {
				s.Log().Error("flush failed: %v", err)
			}
		}
		return s.PushFrame(frame, direction)
	}

	return s.PushFrame(frame, direction)
}

func (s *TTSService) handleInterruption(frame frames.Frame, direction frames.FrameDirection) error {
	s.mu.Lock()
	wasSpeaking := s.isSpeaking
	oldContextID := s.contextID
	s.isSpeaking = false
	s.mu.Unlock()

	// Close the context regardless of speaking state so abandoned
	// contexts do not accumulate on the ElevenLabs side
	if s.useStreaming && s.conn != nil && oldContextID != "" {
		closeMsg := map[string]interface{}{
			"context_id":    oldContextID,
			"close_context": true,
		}
		if err := s.conn.WriteJSON(closeMsg); err != nil {
			s.Log().Error("close context failed: %v", err)
		}

		// Open a fresh context for the next response
		s.contextID = uuid.New().String()
		openMsg := map[string]interface{}{
			"text":       " ",
			"context_id": s.contextID,
			"voice_settings": map[string]interface{}{
				"stability":        0.5,
				"similarity_boost": 0.75,
			},
		}
		if err := s.conn.WriteJSON(openMsg); err != nil {
			s.Log().Error("open context failed: %v", err)
		}
	}

	if wasSpeaking {
		s.PushFrame(frames.NewTTSStoppedFrame(), frames.Upstream)
	}
	return s.PushFrame(frame, direction)
}

func (s *TTSService) synthesizeInput(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if s.ctx == nil {
		s.Log().Debug("lazy initializing on first text frame")
		if err := s.Initialize(ctx); err != nil {
			s.Log().Error("initialize failed: %v", err)
			return s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
		}
	}

	s.mu.Lock()
	firstChunk := !s.isSpeaking
	s.isSpeaking = true
	s.mu.Unlock()
	if firstChunk {
		s.PushFrame(frames.NewTTSStartedFrame(), frames.Upstream)
		s.PushFrame(frames.NewTTSStartedFrame(), frames.Downstream)
	}

	s.Log().Debug("synthesizing: %s", text)

	if s.useStreaming && s.conn != nil {
		msg := map[string]interface{}{
			"text":                   text,
			"context_id":             s.contextID,
			"try_trigger_generation": true,
		}
		return s.conn.WriteJSON(msg)
	}
	return s.synthesizeHTTP(text)
}

func (s *TTSService) synthesizeHTTP(text string) error {
	url := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s?output_format=%s",
		s.voiceID, s.outputFormat)
	if s.lowLatency {
		url += "&optimize_streaming_latency=3"
	}

	requestBody := map[string]interface{}{
		"text":     text,
		"model_id": s.model,
		"voice_settings": map[string]interface{}{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}

	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(s.ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ElevenLabs API error: %s", string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	sampleRate := s.sampleRate()
	if err := s.PushFrame(frames.NewTTSAudioFrame(audioData, sampleRate), frames.Downstream); err != nil {
		return err
	}

	// HTTP mode delivers the whole utterance at once
	s.mu.Lock()
	s.isSpeaking = false
	s.mu.Unlock()
	s.PushFrame(frames.NewTTSStoppedFrame(), frames.Downstream)
	s.PushFrame(frames.NewTTSStoppedFrame(), frames.Upstream)
	return nil
}

func (s *TTSService) receiveAudio() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			messageType, message, err := s.conn.ReadMessage()
			if err != nil {
				s.Log().Error("read failed: %v", err)
				s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
				return
			}

			if messageType == websocket.BinaryMessage {
				s.PushFrame(frames.NewTTSAudioFrame(message, s.sampleRate()), frames.Downstream)
				continue
			}

			var response map[string]interface{}
			if err := json.Unmarshal(message, &response); err != nil {
				s.Log().Error("parse response failed: %v", err)
				continue
			}

			if isFinal, ok := response["isFinal"].(bool); ok && isFinal {
				s.mu.Lock()
				wasSpeaking := s.isSpeaking
				s.isSpeaking = false
				s.mu.Unlock()
				if wasSpeaking {
					s.PushFrame(frames.NewTTSStoppedFrame(), frames.Downstream)
					s.PushFrame(frames.NewTTSStoppedFrame(), frames.Upstream)
				}
				continue
			}

			// Context check drops audio from interrupted utterances
			if receivedCtxID, ok := response["contextId"].(string); ok && receivedCtxID != s.contextID {
				s.Log().Debug("ignoring message from stale context %s", receivedCtxID)
				continue
			}

			if audioB64, ok := response["audio"].(string); ok && audioB64 != "" {
				audioData, err := base64.StdEncoding.DecodeString(audioB64)
				if err != nil {
					s.Log().Error("decode audio failed: %v", err)
					continue
				}
				s.PushFrame(frames.NewTTSAudioFrame(audioData, s.sampleRate()), frames.Downstream)
			}
		}
	}
}

// sampleRate extracts the rate from the output format string
func (s *TTSService) sampleRate() int {
	switch s.outputFormat {
	case "ulaw_8000", "alaw_8000":
		return 8000
	case "pcm_16000":
		return 16000
	case "pcm_22050":
		return 22050
	case "pcm_44100":
		return 44100
	default:
		return 24000
	}
}
