package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/processors"
)

// TTSService provides text-to-speech using Cartesia's websocket API.
//
// Context lifecycle: every synthesis runs under a Cartesia context id.
// An interruption cancels the live context so audio from the aborted
// utterance is dropped, and a fresh id is minted for the next response.
type TTSService struct {
	*processors.BaseProcessor
	apiKey          string
	voiceID         string
	model           string
	cartesiaVersion string
	language        string
	sampleRate      int
	encoding        string
	container       string

	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	contextID string

	// Sentence aggregation keeps synthesis chunks prosodically whole
	textBuffer strings.Builder

	liveContexts map[string]bool
	contextMu    sync.RWMutex

	isSpeaking bool
	mu         sync.Mutex
}

// TTSConfig holds configuration for Cartesia TTS
type TTSConfig struct {
	APIKey          string
	VoiceID         string
	Model           string // e.g., "sonic-3"
	CartesiaVersion string // e.g., "2025-04-16"
	Language        string // e.g., "en"
	SampleRate      int    // e.g., 8000, 16000, 24000
	Encoding        string // e.g., "pcm_s16le", "pcm_mulaw"
	Container       string // e.g., "raw"
}

// NewTTSService creates a new Cartesia TTS service
func NewTTSService(config TTSConfig) *TTSService {
	model := config.Model
	if model == "" {
		model = "sonic-3"
	}
	cartesiaVersion := config.CartesiaVersion
	if cartesiaVersion == "" {
		cartesiaVersion = "2025-04-16"
	}
	language := config.Language
	if language == "" {
		language = "en"
	}
	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = 24000
	}
	encoding := config.Encoding
	if encoding == "" {
		encoding = "pcm_s16le"
	}
	container := config.Container
	if container == "" {
		container = "raw"
	}

	s := &TTSService{
		apiKey:          config.APIKey,
		voiceID:         config.VoiceID,
		model:           model,
		cartesiaVersion: cartesiaVersion,
		language:        language,
		sampleRate:      sampleRate,
		encoding:        encoding,
		container:       container,
		liveContexts:    make(map[string]bool),
	}
	s.BaseProcessor = processors.NewBaseProcessor("CartesiaTTS", s)
	return s
}

func (s *TTSService) SetVoice(voiceID string) {
	s.voiceID = voiceID
}

func (s *TTSService) SetModel(model string) {
	s.model = model
}

func (s *TTSService) dial() (*websocket.Conn, error) {
	wsURL := fmt.Sprintf("wss://api.cartesia.ai/tts/websocket?api_key=%s&cartesia_version=%s",
		s.apiKey, s.cartesiaVersion)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cartesia: %w", err)
	}
	return conn, nil
}

func (s *TTSService) Initialize(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.contextID = uuid.New().String()

	conn, err := s.dial()
	if err != nil {
		return err
	}
	s.conn = conn

	go s.receiveAudio()

	s.Log().Info("connected (context: %s)", s.contextID)
	return nil
}

func (s *TTSService) Cleanup() error {
	if s.cancel != nil {
		s.cancel()
	}
	time.Sleep(50 * time.Millisecond)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.contextMu.Lock()
	s.liveContexts = make(map[string]bool)
	s.contextMu.Unlock()
	return nil
}

func (s *TTSService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		// Eager connect so the first token costs no dial latency
		if s.ctx == nil {
			if err := s.Initialize(ctx); err != nil {
				s.Log().Error("initialize failed: %v", err)
				return s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
			}
		}
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
		return s.handleResponseEnd(ctx, frame, direction)
	}

	return s.PushFrame(frame, direction)
}

func (s *TTSService) handleInterruption(frame frames.Frame, direction frames.FrameDirection) error {
	s.mu.Lock()
	wasSpeaking := s.isSpeaking
	oldContextID := s.contextID
	s.isSpeaking = false
	s.textBuffer.Reset()
	s.contextID = ""
	s.mu.Unlock()

	// Cancel the live context even if nothing was audibly speaking yet,
	// otherwise abandoned contexts pile up on the Cartesia side
	if s.conn != nil && oldContextID != "" {
		s.Log().Debug("canceling context %s (was_speaking=%v)", oldContextID, wasSpeaking)
		cancelMsg := map[string]interface{}{
			"context_id": oldContextID,
			"cancel":     true,
		}
		if err := s.conn.WriteJSON(cancelMsg); err != nil {
			s.Log().Error("cancel context failed: %v", err)
		}
		s.dropContext(oldContextID)
	}

	if wasSpeaking {
		s.PushFrame(frames.NewTTSStoppedFrame(), frames.Upstream)
	}
	return s.PushFrame(frame, direction)
}

func (s *TTSService) handleResponseEnd(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if s.textBuffer.Len() > 0 {
		remaining := s.textBuffer.String()
		s.textBuffer.Reset()
		if err := s.synthesize(ctx, remaining); err != nil {
			s.Log().Error("synthesize remaining text failed: %v", err)
		}
	}

	if s.conn != nil && s.contextID != "" {
		// continue=false finalizes the context and flushes its audio
		if err := s.conn.WriteJSON(s.buildMessage("", false)); err != nil {
			s.Log().Error("flush failed: %v", err)
		}
		s.mu.Lock()
		s.contextID = ""
		s.mu.Unlock()
	}
	return s.PushFrame(frame, direction)
}

// synthesizeInput buffers streamed tokens and synthesizes whole
// sentences
func (s *TTSService) synthesizeInput(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	s.textBuffer.WriteString(text)
	sentences, remainder := extractSentences(s.textBuffer.String())
	s.textBuffer.Reset()
	s.textBuffer.WriteString(remainder)

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		s.Log().Debug("synthesizing: %s", sentence)
		if err := s.synthesize(ctx, sentence); err != nil {
			return err
		}
	}
	return nil
}

// extractSentences splits text into complete sentences and remainder
func extractSentences(text string) ([]string, string) {
	var sentences []string
	var current strings.Builder

	enders := map[rune]bool{'.': true, '!': true, '?': true, ';': true}

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if !enders[r] {
			continue
		}
		// Sentence boundary when at end of text or followed by a space
		if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	return sentences, current.String()
}

func (s *TTSService) synthesize(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if s.ctx == nil {
		if err := s.Initialize(ctx); err != nil {
			s.Log().Error("initialize failed: %v", err)
			return s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
		}
	}

	s.mu.Lock()
	if s.contextID == "" {
		s.contextID = uuid.New().String()
	}
	firstChunk := !s.isSpeaking
	s.isSpeaking = true
	contextID := s.contextID
	s.mu.Unlock()

	if firstChunk {
		// Upstream so the user aggregator tracks bot speaking state,
		// downstream for the turn controller and transport output
		s.PushFrame(frames.NewTTSStartedFrame(), frames.Upstream)
		s.PushFrame(frames.NewTTSStartedFrame(), frames.Downstream)
		s.trackContext(contextID)
	}

	if s.conn == nil {
		return fmt.Errorf("WebSocket connection not established")
	}
	return s.conn.WriteJSON(s.buildMessage(text, true))
}

func (s *TTSService) buildMessage(text string, continueTranscript bool) map[string]interface{} {
	return map[string]interface{}{
		"transcript": text,
		"continue":   continueTranscript,
		"context_id": s.contextID,
		"model_id":   s.model,
		"voice": map[string]interface{}{
			"mode": "id",
			"id":   s.voiceID,
		},
		"output_format": map[string]interface{}{
			"container":   s.container,
			"encoding":    s.encoding,
			"sample_rate": s.sampleRate,
		},
		"language": s.language,
	}
}

func (s *TTSService) trackContext(contextID string) {
	s.contextMu.Lock()
	defer s.contextMu.Unlock()
	s.liveContexts[contextID] = true
}

func (s *TTSService) dropContext(contextID string) {
	s.contextMu.Lock()
	defer s.contextMu.Unlock()
	delete(s.liveContexts, contextID)
}

func (s *TTSService) contextLive(contextID string) bool {
	s.contextMu.RLock()
	defer s.contextMu.RUnlock()
	return s.liveContexts[contextID]
}

func (s *TTSService) receiveAudio() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			if s.conn == nil {
				if err := s.reconnect(); err != nil {
					s.Log().Error("reconnection failed: %v", err)
					time.Sleep(time.Second)
					continue
				}
			}

			_, message, err := s.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					s.Log().Debug("connection closed normally")
					return
				}
				// Cartesia drops idle connections after 5 minutes
				s.Log().Warn("connection error, attempting reconnect: %v", err)
				if reconnectErr := s.reconnect(); reconnectErr != nil {
					s.Log().Error("reconnection failed: %v", reconnectErr)
					s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
					return
				}
				continue
			}

			var response map[string]interface{}
			if err := json.Unmarshal(message, &response); err != nil {
				s.Log().Error("parse response failed: %v", err)
				continue
			}
			msgType, ok := response["type"].(string)
			if !ok {
				continue
			}

			receivedCtxID, hasCtxID := response["context_id"].(string)
			if hasCtxID && !s.contextLive(receivedCtxID) {
				// Audio from an interrupted context, drop it
				s.Log().Debug("ignoring audio from stale context %s", receivedCtxID)
				continue
			}

			switch msgType {
			case "chunk":
				if audioB64, ok := response["data"].(string); ok && audioB64 != "" {
					audioData, err := base64.StdEncoding.DecodeString(audioB64)
					if err != nil {
						s.Log().Error("decode audio failed: %v", err)
						continue
					}
					s.PushFrame(frames.NewTTSAudioFrame(audioData, s.sampleRate), frames.Downstream)
				}

			case "done":
				s.Log().Debug("context %s completed", receivedCtxID)
				s.dropContext(receivedCtxID)

				s.mu.Lock()
				wasSpeaking := s.isSpeaking
				s.isSpeaking = false
				s.mu.Unlock()
				if wasSpeaking {
					s.PushFrame(frames.NewTTSStoppedFrame(), frames.Downstream)
					s.PushFrame(frames.NewTTSStoppedFrame(), frames.Upstream)
				}

			case "error":
				errorMsg, _ := response["error"].(string)
				s.Log().Error("Cartesia error: %s", errorMsg)
				s.PushFrame(frames.NewErrorFrame(fmt.Errorf("cartesia error: %s", errorMsg)), frames.Upstream)
			}
		}
	}
}

func (s *TTSService) reconnect() error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	conn, err := s.dial()
	if err != nil {
		return err
	}
	s.conn = conn
	s.Log().Info("reconnected")
	return nil
}
