package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/processors"
	"github.com/voxline-ai/voxline/src/services"
)

type captureProcessor struct {
	*processors.BaseProcessor
	mu     sync.Mutex
	queued []frames.Frame
	text   chan string
}

func newCapture() *captureProcessor {
	c := &captureProcessor{text: make(chan string, 32)}
	c.BaseProcessor = processors.NewBaseProcessor("Capture", c)
	return c
}

func (c *captureProcessor) QueueFrame(frame frames.Frame, direction frames.FrameDirection) error {
	c.mu.Lock()
	c.queued = append(c.queued, frame)
	c.mu.Unlock()
	if tf, ok := frame.(*frames.LLMTextFrame); ok {
		select {
		case c.text <- tf.Text:
		default:
		}
	}
	return nil
}

func (c *captureProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	return nil
}

func (c *captureProcessor) textCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.queued {
		if _, ok := f.(*frames.LLMTextFrame); ok {
			n++
		}
	}
	return n
}

func deltaChunk(text string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, text)
}

func TestInterruptionCancelsInFlightGeneration(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", deltaChunk("Our fund "))
		fl.Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
		fmt.Fprintf(w, "data: %s\n\n", deltaChunk("targets steady returns."))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()
	defer close(release)

	svc := NewLLMService(LLMConfig{APIKey: "test", Model: "gpt-4o-mini"})
	svc.apiURL = srv.URL
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	down := newCapture()
	svc.Link(down)

	llmCtx := services.NewLLMContext("persona")
	llmCtx.AddUserMessage("tell me about the fund")

	done := make(chan error, 1)
	go func() {
		done <- svc.HandleFrame(context.Background(), frames.NewLLMContextFrame(llmCtx), frames.Downstream)
	}()

	select {
	case <-down.text:
	case <-time.After(5 * time.Second):
		t.Fatal("first chunk never arrived")
	}

	if err := svc.HandleFrame(context.Background(), frames.NewInterruptionFrame(), frames.Downstream); err != nil {
		t.Fatalf("interruption: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("generation returned error after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not stop after interruption")
	}

	if got := down.textCount(); got != 1 {
		t.Errorf("text frames after cancel = %d, want 1", got)
	}
	// Only the aggregator after synthesis commits assistant text
	if len(llmCtx.Messages) != 1 {
		t.Errorf("context messages = %d, want 1", len(llmCtx.Messages))
	}
}
