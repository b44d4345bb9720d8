package transports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/logger"
	"github.com/voxline-ai/voxline/src/processors"
	"github.com/voxline-ai/voxline/src/serializers"
)

// WebSocketRoomTransport joins a room provider over a websocket and
// bridges its wire protocol to pipeline frames through an injected
// serializer.
type WebSocketRoomTransport struct {
	serializer serializers.FrameSerializer
	inputProc  *roomInputProcessor
	outputProc *roomOutputProcessor
	log        *logger.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu                  sync.RWMutex
	onParticipantJoined func(string)
	onParticipantLeft   func(string)
}

// NewWebSocketRoomTransport creates a transport speaking the given
// serializer's protocol.
func NewWebSocketRoomTransport(serializer serializers.FrameSerializer) *WebSocketRoomTransport {
	if serializer == nil {
		panic("WebSocketRoomTransport requires a serializer")
	}

	t := &WebSocketRoomTransport{
		serializer: serializer,
		log:        logger.WithPrefix("RoomTransport"),
	}
	t.inputProc = newRoomInputProcessor(t)
	t.outputProc = newRoomOutputProcessor(t)
	return t
}

// Input returns the input processor
func (t *WebSocketRoomTransport) Input() processors.FrameProcessor {
	return t.inputProc
}

// Output returns the output processor
func (t *WebSocketRoomTransport) Output() processors.FrameProcessor {
	return t.outputProc
}

// Join dials the room URL and starts the read loop
func (t *WebSocketRoomTransport) Join(ctx context.Context, room, token string) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, room, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to join room (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to join room: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	t.log.Info("joined room %s", room)

	t.wg.Add(1)
	go t.readLoop()

	return nil
}

// Leave disconnects from the room
func (t *WebSocketRoomTransport) Leave() error {
	t.mu.Lock()
	cancel := t.cancel
	conn := t.conn
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	t.wg.Wait()
	t.outputProc.cleanup()
	return nil
}

// CaptureTranscription asks the room to route the participant's audio
// to this connection.
func (t *WebSocketRoomTransport) CaptureTranscription(participantID string) error {
	msg := map[string]string{
		"event":         "capture_transcription",
		"participantId": participantID,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal capture request: %w", err)
	}
	return t.sendMessage(string(data))
}

// OnParticipantJoined registers a participant join callback
func (t *WebSocketRoomTransport) OnParticipantJoined(callback func(string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onParticipantJoined = callback
}

// OnParticipantLeft registers a participant leave callback
func (t *WebSocketRoomTransport) OnParticipantLeft(callback func(string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onParticipantLeft = callback
}

// readLoop reads room messages and feeds the deserialized frames into
// the pipeline head.
func (t *WebSocketRoomTransport) readLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		msgType, msgBytes, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Warn("read error: %v", err)
			}
			// The room went away; end the call downstream
			if pushErr := t.inputProc.pushFrame(frames.NewEndFrame()); pushErr != nil {
				t.log.Error("error pushing end frame: %v", pushErr)
			}
			return
		}

		var data interface{}
		if msgType == websocket.BinaryMessage {
			data = msgBytes
		} else {
			data = string(msgBytes)
		}

		frame, err := t.serializer.Deserialize(data)
		if err != nil {
			t.log.Warn("deserialization error: %v", err)
			continue
		}
		if frame == nil {
			continue
		}

		switch f := frame.(type) {
		case *frames.ParticipantJoinedFrame:
			t.log.Info("participant joined: %s", f.ParticipantID)
			t.mu.RLock()
			callback := t.onParticipantJoined
			t.mu.RUnlock()
			if callback != nil {
				callback(f.ParticipantID)
			}

		case *frames.ParticipantLeftFrame:
			t.log.Info("participant left: %s", f.ParticipantID)
			t.mu.RLock()
			callback := t.onParticipantLeft
			t.mu.RUnlock()
			if callback != nil {
				callback(f.ParticipantID)
			}
			if err := t.inputProc.pushFrame(f); err != nil {
				t.log.Error("error pushing participant left frame: %v", err)
			}

		default:
			if err := t.inputProc.pushFrame(frame); err != nil {
				t.log.Error("error pushing frame: %v", err)
			}
		}
	}
}

// sendMessage writes a serialized message to the room connection
func (t *WebSocketRoomTransport) sendMessage(data interface{}) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not joined to a room")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	switch v := data.(type) {
	case []byte:
		return conn.WriteMessage(websocket.BinaryMessage, v)
	case string:
		return conn.WriteMessage(websocket.TextMessage, []byte(v))
	default:
		return fmt.Errorf("unsupported data type for room message: %T", data)
	}
}

// roomInputProcessor emits inbound room frames into the pipeline
type roomInputProcessor struct {
	*processors.BaseProcessor
	transport *WebSocketRoomTransport
}

func newRoomInputProcessor(transport *WebSocketRoomTransport) *roomInputProcessor {
	p := &roomInputProcessor{transport: transport}
	p.BaseProcessor = processors.NewBaseProcessor("RoomInput", p)
	return p
}

func (p *roomInputProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if startFrame, ok := frame.(*frames.StartFrame); ok {
		p.HandleStartFrame(startFrame)
		p.Log().Info("interruptions: allowed=%v strategies=%d",
			p.InterruptionsAllowed(), len(p.InterruptionStrategies()))
	}
	return p.PushFrame(frame, direction)
}

func (p *roomInputProcessor) pushFrame(frame frames.Frame) error {
	return p.BaseProcessor.PushFrame(frame, frames.Downstream)
}

// audioChunk is a pre-serialized audio chunk ready to send
type audioChunk struct {
	data         interface{}
	size         int
	sendInterval time.Duration
}

// roomOutputProcessor sends outbound frames to the room. TTS audio is
// split into fixed-size chunks and paced at real-time playback speed so
// the room's jitter buffer is never flooded; an interruption discards
// everything not yet sent.
type roomOutputProcessor struct {
	*processors.BaseProcessor
	transport *WebSocketRoomTransport

	mu          sync.Mutex
	audioBuffer []byte
	chunkSize   int
	interrupted bool
	cleanupDone bool

	chunkQueue   chan *audioChunk
	senderCtx    context.Context
	senderCancel context.CancelFunc
	senderWg     sync.WaitGroup
	cleanupOnce  sync.Once
}

// 640 bytes of 16 kHz 16-bit PCM is 20 ms of audio
const defaultChunkSize = 640

func newRoomOutputProcessor(transport *WebSocketRoomTransport) *roomOutputProcessor {
	p := &roomOutputProcessor{
		transport:  transport,
		chunkSize:  defaultChunkSize,
		chunkQueue: make(chan *audioChunk, 1000),
	}
	p.BaseProcessor = processors.NewBaseProcessor("RoomOutput", p)

	p.senderCtx, p.senderCancel = context.WithCancel(context.Background())
	p.startChunkSender()
	return p
}

// calculateSendInterval computes the real-time pacing interval for a
// chunk of 16-bit PCM audio.
func calculateSendInterval(chunkSize, sampleRate int) time.Duration {
	if sampleRate == 0 {
		sampleRate = 16000
	}
	intervalSecs := float64(chunkSize) / float64(sampleRate*2)
	interval := time.Duration(intervalSecs * float64(time.Second))
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return interval
}

// startChunkSender consumes queued chunks and sends them with real-time
// pacing.
func (p *roomOutputProcessor) startChunkSender() {
	p.senderWg.Add(1)
	go func() {
		defer p.senderWg.Done()

		var nextSendTime time.Time
		firstChunk := true

		for {
			select {
			case <-p.senderCtx.Done():
				return

			case chunk := <-p.chunkQueue:
				now := time.Now()
				if firstChunk {
					nextSendTime = now
					firstChunk = false
				}

				sleepDuration := nextSendTime.Sub(now)
				if sleepDuration > 0 {
					time.Sleep(sleepDuration)
				}

				if err := p.transport.sendMessage(chunk.data); err != nil {
					p.Log().Error("error sending chunk: %v", err)
					errStr := err.Error()
					if strings.Contains(errStr, "broken pipe") ||
						strings.Contains(errStr, "connection reset") ||
						strings.Contains(errStr, "use of closed") {
						p.Log().Warn("connection lost, stopping sender")
						return
					}
				}

				if sleepDuration <= 0 {
					nextSendTime = time.Now().Add(chunk.sendInterval)
				} else {
					nextSendTime = nextSendTime.Add(chunk.sendInterval)
				}
			}
		}
	}()
}

// cleanup stops the sender goroutine. Safe to call multiple times.
func (p *roomOutputProcessor) cleanup() {
	p.cleanupOnce.Do(func() {
		p.mu.Lock()
		p.cleanupDone = true
		p.mu.Unlock()

		if p.senderCancel != nil {
			p.senderCancel()
		}
		p.senderWg.Wait()
	})
}

func (p *roomOutputProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		p.HandleStartFrame(f)
		return p.PushFrame(frame, direction)

	case *frames.EndFrame:
		p.Log().Info("end frame received, stopping sender")
		if data, err := p.transport.serializer.Serialize(frame); err == nil && data != nil {
			if err := p.transport.sendMessage(data); err != nil {
				p.Log().Warn("error sending leave message: %v", err)
			}
		}
		p.cleanup()
		return p.PushFrame(frame, direction)

	case *frames.TTSStartedFrame:
		// A fresh utterance lifts the interruption block
		p.mu.Lock()
		p.interrupted = false
		p.mu.Unlock()
		return p.PushFrame(frame, direction)

	case *frames.InterruptionFrame:
		if !p.InterruptionsAllowed() {
			return p.PushFrame(frame, direction)
		}
		return p.handleInterruption(frame, direction)

	case *frames.TTSAudioFrame:
		return p.handleAudioFrame(f)

	case *frames.AudioFrame:
		// Never echo the user's own audio back to the room
		return nil
	}

	data, err := p.transport.serializer.Serialize(frame)
	if err != nil {
		return fmt.Errorf("serialization error: %w", err)
	}
	if data != nil {
		if err := p.transport.sendMessage(data); err != nil {
			return fmt.Errorf("send error: %w", err)
		}
	}

	return p.PushFrame(frame, direction)
}

// handleInterruption discards all audio not yet sent and tells the room
// to drop its playback buffer.
func (p *roomOutputProcessor) handleInterruption(frame frames.Frame, direction frames.FrameDirection) error {
	p.mu.Lock()
	p.interrupted = true
	dropped := len(p.audioBuffer)
	p.audioBuffer = nil
	p.mu.Unlock()

	drained := 0
drainLoop:
	for {
		select {
		case <-p.chunkQueue:
			drained++
		default:
			break drainLoop
		}
	}
	p.Log().Info("interruption: dropped %d buffered bytes and %d queued chunks", dropped, drained)

	data, err := p.transport.serializer.Serialize(frame)
	if err != nil {
		return fmt.Errorf("serialization error: %w", err)
	}
	if data != nil {
		if err := p.transport.sendMessage(data); err != nil {
			return fmt.Errorf("send error: %w", err)
		}
	}

	return p.PushFrame(frame, direction)
}

// handleAudioFrame chunks TTS audio and queues it for paced sending
func (p *roomOutputProcessor) handleAudioFrame(audioFrame *frames.TTSAudioFrame) error {
	p.mu.Lock()
	if p.cleanupDone {
		p.mu.Unlock()
		return nil
	}
	if p.interrupted {
		p.mu.Unlock()
		p.Log().Debug("blocked %d audio bytes while interrupted", len(audioFrame.Data))
		return nil
	}

	chunkSize := p.chunkSize
	sendInterval := calculateSendInterval(chunkSize, audioFrame.SampleRate)

	currentData := append(p.audioBuffer, audioFrame.Data...)
	p.audioBuffer = nil
	p.mu.Unlock()

	for len(currentData) >= chunkSize {
		chunk := currentData[:chunkSize]
		currentData = currentData[chunkSize:]

		data, err := p.transport.serializer.Serialize(frames.NewTTSAudioFrame(chunk, audioFrame.SampleRate))
		if err != nil {
			p.Log().Error("serialization error: %v", err)
			continue
		}
		if data == nil {
			continue
		}

		select {
		case p.chunkQueue <- &audioChunk{data: data, size: chunkSize, sendInterval: sendInterval}:
		case <-p.senderCtx.Done():
			p.Log().Debug("sender stopped, discarding remaining audio")
			return nil
		}
	}

	// Keep the sub-chunk remainder for the next frame
	p.mu.Lock()
	if !p.interrupted {
		p.audioBuffer = currentData
	}
	p.mu.Unlock()

	return nil
}
