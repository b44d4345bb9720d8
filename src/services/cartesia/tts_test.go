package cartesia

import (
	"context"
	"sync"
	"testing"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/processors"
)

type captureProcessor struct {
	*processors.BaseProcessor
	mu     sync.Mutex
	queued []frames.Frame
}

func newCapture() *captureProcessor {
	c := &captureProcessor{}
	c.BaseProcessor = processors.NewBaseProcessor("Capture", c)
	return c
}

func (c *captureProcessor) QueueFrame(frame frames.Frame, direction frames.FrameDirection) error {
	c.mu.Lock()
	c.queued = append(c.queued, frame)
	c.mu.Unlock()
	return nil
}

func (c *captureProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	return nil
}

func (c *captureProcessor) captured() []frames.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frames.Frame(nil), c.queued...)
}

// Streamed response text must pass through the synthesis stage so the
// turn controller and assistant aggregator behind it still see it.
func TestStreamedTextForwardsDownstream(t *testing.T) {
	svc := NewTTSService(TTSConfig{})
	down := newCapture()
	svc.Link(down)
	ctx := context.Background()

	if err := svc.HandleFrame(ctx, frames.NewLLMFullResponseStartFrame(), frames.Downstream); err != nil {
		t.Fatal(err)
	}
	// No sentence terminator, so the text only buffers and nothing is
	// sent to the synthesis backend
	if err := svc.HandleFrame(ctx, frames.NewLLMTextFrame("Hello there"), frames.Downstream); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleFrame(ctx, frames.NewTextFrame(" and welcome"), frames.Downstream); err != nil {
		t.Fatal(err)
	}

	var gotStart, gotLLMText, gotText bool
	for _, f := range down.captured() {
		switch tf := f.(type) {
		case *frames.LLMFullResponseStartFrame:
			gotStart = true
		case *frames.LLMTextFrame:
			if tf.Text == "Hello there" {
				gotLLMText = true
			}
		case *frames.TextFrame:
			if tf.Text == " and welcome" {
				gotText = true
			}
		}
	}
	if !gotStart || !gotLLMText || !gotText {
		t.Errorf("forwarded start=%v llmText=%v text=%v", gotStart, gotLLMText, gotText)
	}
	if svc.textBuffer.String() != "Hello there and welcome" {
		t.Errorf("buffer = %q", svc.textBuffer.String())
	}
}

func TestInterruptionResetsBufferAndForwards(t *testing.T) {
	svc := NewTTSService(TTSConfig{})
	down := newCapture()
	svc.Link(down)
	ctx := context.Background()

	if err := svc.HandleFrame(ctx, frames.NewLLMTextFrame("half finished thought"), frames.Downstream); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleFrame(ctx, frames.NewInterruptionFrame(), frames.Downstream); err != nil {
		t.Fatal(err)
	}

	if svc.textBuffer.Len() != 0 {
		t.Errorf("buffer not reset: %q", svc.textBuffer.String())
	}
	var gotInterruption bool
	for _, f := range down.captured() {
		if _, ok := f.(*frames.InterruptionFrame); ok {
			gotInterruption = true
		}
	}
	if !gotInterruption {
		t.Error("interruption frame not forwarded downstream")
	}
}

func TestExtractSentences(t *testing.T) {
	cases := []struct {
		in        string
		sentences []string
		remainder string
	}{
		{"Hello there. How are", []string{"Hello there."}, " How are"},
		{"One! Two? Three", []string{"One!", " Two?"}, " Three"},
		{"no boundary yet", nil, "no boundary yet"},
		{"Version 2.5 is out. Great", []string{"Version 2.5 is out."}, " Great"},
		{"Done.", []string{"Done."}, ""},
	}
	for _, tc := range cases {
		sentences, remainder := extractSentences(tc.in)
		if len(sentences) != len(tc.sentences) {
			t.Errorf("%q: sentences = %v, want %v", tc.in, sentences, tc.sentences)
			continue
		}
		for i := range sentences {
			if sentences[i] != tc.sentences[i] {
				t.Errorf("%q: sentence %d = %q, want %q", tc.in, i, sentences[i], tc.sentences[i])
			}
		}
		if remainder != tc.remainder {
			t.Errorf("%q: remainder = %q, want %q", tc.in, remainder, tc.remainder)
		}
	}
}
