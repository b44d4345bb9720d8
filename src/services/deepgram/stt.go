package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/processors"
)

// STTService provides speech-to-text using Deepgram's streaming API
type STTService struct {
	*processors.BaseProcessor
	apiKey      string
	language    string
	model       string
	encoding    string
	endpointing int
	conn        *websocket.Conn
	ctx         context.Context
	cancel      context.CancelFunc
	connMu      sync.Mutex // Protects concurrent WebSocket writes
}

// STTConfig holds configuration for Deepgram
type STTConfig struct {
	APIKey      string
	Language    string // e.g., "en-US"
	Model       string // e.g., "nova-2"
	Encoding    string // Supported: "mulaw"/"ulaw", "alaw", "linear16" (default: "linear16")
	Endpointing int    // Silence in ms before an utterance is finalized (0 uses the provider default)
}

// NewSTTService creates a new Deepgram STT service
func NewSTTService(config STTConfig) *STTService {
	encoding := config.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	encoding = normalizeEncoding(encoding)

	s := &STTService{
		apiKey:      config.APIKey,
		language:    config.Language,
		model:       config.Model,
		encoding:    encoding,
		endpointing: config.Endpointing,
	}
	s.BaseProcessor = processors.NewBaseProcessor("DeepgramSTT", s)
	return s
}

// normalizeEncoding converts codec name variations to Deepgram API format
func normalizeEncoding(encoding string) string {
	switch encoding {
	case "ulaw", "PCMU":
		return "mulaw"
	case "PCMA":
		return "alaw"
	case "pcm", "PCM":
		return "linear16"
	default:
		return encoding
	}
}

func (s *STTService) SetLanguage(lang string) {
	s.language = lang
}

func (s *STTService) SetModel(model string) {
	s.model = model
}

func (s *STTService) Initialize(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	sampleRate := "16000"
	if s.encoding == "mulaw" || s.encoding == "alaw" {
		// Telephony codecs are 8kHz
		sampleRate = "8000"
	}

	params := url.Values{}
	params.Set("language", s.language)
	params.Set("model", s.model)
	params.Set("encoding", s.encoding)
	params.Set("sample_rate", sampleRate)
	params.Set("channels", "1")
	params.Set("interim_results", "true")
	params.Set("vad_events", "true")
	params.Set("utterance_end_ms", "1000")
	if s.endpointing > 0 {
		params.Set("endpointing", strconv.Itoa(s.endpointing))
	}

	wsURL := fmt.Sprintf("wss://api.deepgram.com/v1/listen?%s", params.Encode())

	header := map[string][]string{
		"Authorization": {fmt.Sprintf("Token %s", s.apiKey)},
	}

	var err error
	s.conn, _, err = websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	go s.receiveTranscriptions()
	go s.keepaliveTask()

	s.Log().Info("connected and initialized")
	return nil
}

func (s *STTService) Cleanup() error {
	if s.cancel != nil {
		s.cancel()
	}

	// Let the reader goroutines observe the cancellation first
	time.Sleep(50 * time.Millisecond)

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}

func (s *STTService) reconnect(ctx context.Context) error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	return s.Initialize(ctx)
}

func (s *STTService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		// Lazy initialization on first audio, StartFrame passes through
		return s.PushFrame(frame, direction)

	case *frames.EndFrame:
		s.Log().Info("received EndFrame, cleaning up")
		if err := s.Cleanup(); err != nil {
			s.Log().Error("cleanup failed: %v", err)
		}
		return s.PushFrame(frame, direction)

	case *frames.InterruptionFrame:
		// Finalize flushes the current utterance so stale fragments do
		// not leak through after the interruption
		if s.conn != nil {
			s.connMu.Lock()
			err := s.conn.WriteJSON(map[string]interface{}{"type": "Finalize"})
			s.connMu.Unlock()
			if err != nil {
				s.Log().Error("finalize failed: %v", err)
			} else {
				s.Log().Debug("sent finalize to reset STT stream")
			}
		}
		return s.PushFrame(frame, direction)

	case *frames.AudioFrame:
		return s.handleAudio(ctx, f, direction)
	}

	return s.PushFrame(frame, direction)
}

func (s *STTService) handleAudio(ctx context.Context, frame *frames.AudioFrame, direction frames.FrameDirection) error {
	if s.conn == nil {
		s.Log().Debug("lazy initializing on first AudioFrame")
		if err := s.Initialize(ctx); err != nil {
			s.Log().Error("initialize failed: %v", err)
			return s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
		}
	}

	s.connMu.Lock()
	err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Data)
	s.connMu.Unlock()

	if err != nil {
		s.Log().Warn("send failed, attempting to reconnect: %v", err)
		if reconnectErr := s.reconnect(ctx); reconnectErr != nil {
			s.Log().Error("reconnection failed: %v", reconnectErr)
			return s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
		}

		s.connMu.Lock()
		retryErr := s.conn.WriteMessage(websocket.BinaryMessage, frame.Data)
		s.connMu.Unlock()
		if retryErr != nil {
			s.Log().Error("send failed after reconnect: %v", retryErr)
			return s.PushFrame(frames.NewErrorFrame(retryErr), frames.Upstream)
		}
	}

	// AudioFrames continue downstream for audio-based interruption
	// detection in the user aggregator
	return s.PushFrame(frame, direction)
}

func (s *STTService) receiveTranscriptions() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					s.Log().Debug("connection closed normally")
					return
				}
				s.Log().Error("read failed: %v", err)
				s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
				return
			}

			s.handleMessage(message)
		}
	}
}

// handleMessage parses one Deepgram message and pushes the matching
// frames. vad_events and utterance_end_ms produce the speech boundary
// messages the user aggregator tracks.
func (s *STTService) handleMessage(message []byte) {
	var response struct {
		Type    string `json:"type"`
		IsFinal bool   `json:"is_final"`
		Channel struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channel"`
	}
	if err := json.Unmarshal(message, &response); err != nil {
		s.Log().Error("parse response failed: %v", err)
		return
	}

	switch response.Type {
	case "SpeechStarted":
		s.Log().Debug("speech started")
		s.PushFrame(frames.NewUserStartedSpeakingFrame(), frames.Downstream)
		return
	case "UtteranceEnd":
		s.Log().Debug("utterance end")
		s.PushFrame(frames.NewUserStoppedSpeakingFrame(), frames.Downstream)
		return
	}

	if len(response.Channel.Alternatives) > 0 {
		text := response.Channel.Alternatives[0].Transcript
		if text != "" {
			s.Log().Debug("transcription (final=%v): %s", response.IsFinal, text)
			s.PushFrame(frames.NewTranscriptionFrame(text, response.IsFinal), frames.Downstream)
		}
	}
}

func (s *STTService) keepaliveTask() {
	// Deepgram closes the stream without audio or a message within
	// ~10 seconds; ping at half that
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.conn != nil {
				s.connMu.Lock()
				err := s.conn.WriteJSON(map[string]string{"type": "KeepAlive"})
				s.connMu.Unlock()
				if err != nil {
					s.Log().Warn("keepalive failed: %v", err)
					return
				}
			}
		}
	}
}
