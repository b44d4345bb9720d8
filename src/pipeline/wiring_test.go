package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/processors"
	"github.com/voxline-ai/voxline/src/processors/aggregators"
	"github.com/voxline-ai/voxline/src/services"
	"github.com/voxline-ai/voxline/src/services/cartesia"
	"github.com/voxline-ai/voxline/src/turn"
)

type turnCapture struct {
	mu    sync.Mutex
	turns []turn.Turn
	added chan struct{}
}

func newTurnCapture() *turnCapture {
	return &turnCapture{added: make(chan struct{}, 8)}
}

func (s *turnCapture) RecordTurn(t turn.Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.mu.Unlock()
	select {
	case s.added <- struct{}{}:
	default:
	}
}

func (s *turnCapture) recorded() []turn.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]turn.Turn(nil), s.turns...)
}

// The production chain puts the synthesis stage before the turn
// controller and assistant aggregator, so response text must survive
// passing through it for any assistant turn to be captured at all.
func TestAssistantTurnCapturedBehindSynthesisStage(t *testing.T) {
	tts := cartesia.NewTTSService(cartesia.TTSConfig{})
	sink := newTurnCapture()
	controller := turn.NewController(sink)
	agg := aggregators.NewAssistantAggregator(services.NewLLMContext("persona"))
	textWatch := newFrameRecorder("LLMTextFrame")

	pipe := NewPipeline([]processors.FrameProcessor{tts, controller, agg, textWatch})
	if err := pipe.Initialize(nil); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pipe.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer pipe.Stop()

	pipe.QueueFrame(frames.NewLLMFullResponseStartFrame())
	// No sentence terminator, so the synthesis stage only buffers
	pipe.QueueFrame(frames.NewLLMTextFrame("Hello and welcome"))

	select {
	case <-textWatch.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("response text never made it past the synthesis stage")
	}

	pipe.QueueFrame(frames.NewTTSStoppedFrame())

	select {
	case <-sink.added:
	case <-time.After(5 * time.Second):
		t.Fatal("no turn recorded for a completed utterance")
	}

	turns := sink.recorded()
	if len(turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(turns))
	}
	got := turns[0]
	if got.Speaker != turn.SpeakerAssistant || got.Interrupted {
		t.Errorf("turn = %+v", got)
	}
	if got.Content != "Hello and welcome" {
		t.Errorf("content = %q, want the spoken text", got.Content)
	}
}

func TestInterruptedTurnKeepsPartialTextBehindSynthesisStage(t *testing.T) {
	llmCtx := services.NewLLMContext("persona")
	tts := cartesia.NewTTSService(cartesia.TTSConfig{})
	sink := newTurnCapture()
	controller := turn.NewController(sink)
	agg := aggregators.NewAssistantAggregator(llmCtx)
	textWatch := newFrameRecorder("LLMTextFrame")
	intWatch := newFrameRecorder("InterruptionFrame")

	pipe := NewPipeline([]processors.FrameProcessor{tts, controller, agg, textWatch, intWatch})
	if err := pipe.Initialize(nil); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pipe.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer pipe.Stop()

	pipe.QueueFrame(frames.NewLLMFullResponseStartFrame())
	pipe.QueueFrame(frames.NewLLMTextFrame("Let me explain"))

	select {
	case <-textWatch.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("response text never made it past the synthesis stage")
	}

	pipe.QueueFrame(frames.NewInterruptionFrame())

	select {
	case <-sink.added:
	case <-time.After(5 * time.Second):
		t.Fatal("no turn recorded for an interrupted utterance")
	}

	turns := sink.recorded()
	if len(turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(turns))
	}
	got := turns[0]
	if !got.Interrupted {
		t.Error("turn not marked interrupted")
	}
	if !strings.HasPrefix(got.Content, "Let me explain") {
		t.Errorf("content = %q, want the partial text, not just a marker", got.Content)
	}
	if !strings.HasSuffix(got.Content, turn.InterruptedMarker) {
		t.Errorf("content = %q, marker missing", got.Content)
	}

	// The aggregator behind the controller commits the same partial to
	// the conversation context
	select {
	case <-intWatch.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("interruption never passed the aggregator")
	}
	msgs := llmCtx.Messages
	if len(msgs) != 1 || msgs[0].Role != "assistant" || msgs[0].Content != "Let me explain" {
		t.Errorf("context messages = %+v", msgs)
	}
}
