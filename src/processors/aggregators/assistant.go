package aggregators

import (
	"context"
	"sync"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/services"
)

// AssistantAggregator accumulates streamed LLM text into assistant
// messages so the next LLM call sees the full conversation history.
type AssistantAggregator struct {
	*ContextAggregator

	mu      sync.Mutex
	started int // Nesting counter for overlapping LLM responses
}

// NewAssistantAggregator creates a new assistant aggregator
func NewAssistantAggregator(llmContext *services.LLMContext) *AssistantAggregator {
	a := &AssistantAggregator{}
	a.ContextAggregator = NewContextAggregator("AssistantAggregator", llmContext, "assistant", a)
	// LLM tokens carry their own whitespace
	a.SetAddSpaces(false)
	return a
}

func (a *AssistantAggregator) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		a.HandleStartFrame(f)
		return a.PushFrame(frame, direction)

	case *frames.InterruptionFrame:
		// Commit whatever was streamed before the cutoff so the model
		// knows what the user actually heard.
		a.mu.Lock()
		if len(a.aggregation) > 0 {
			if err := a.pushAggregationLocked(); err != nil {
				a.Log().Error("push aggregation on interruption failed: %v", err)
			}
		}
		a.started = 0
		a.Reset()
		a.mu.Unlock()

		a.HandleInterruptionFrame()
		return a.PushFrame(frame, direction)

	case *frames.LLMFullResponseStartFrame:
		a.mu.Lock()
		a.started++
		a.mu.Unlock()
		return a.PushFrame(frame, direction)

	case *frames.LLMFullResponseEndFrame:
		a.mu.Lock()
		a.started--
		var err error
		if a.started <= 0 {
			err = a.pushAggregationLocked()
		}
		a.mu.Unlock()
		if err != nil {
			a.Log().Error("push aggregation failed: %v", err)
		}
		return a.PushFrame(frame, direction)

	case *frames.TextFrame:
		a.mu.Lock()
		if a.started > 0 {
			a.AppendToAggregation(f.Text)
		}
		a.mu.Unlock()
		return a.PushFrame(frame, direction)

	case *frames.LLMTextFrame:
		a.mu.Lock()
		if a.started > 0 {
			a.AppendToAggregation(f.Text)
		}
		a.mu.Unlock()
		return a.PushFrame(frame, direction)
	}

	return a.PushFrame(frame, direction)
}

// pushAggregationLocked commits the accumulated response text to the
// context. Callers hold a.mu.
func (a *AssistantAggregator) pushAggregationLocked() error {
	if len(a.aggregation) == 0 {
		return nil
	}

	text := a.AggregationString()
	if err := a.Reset(); err != nil {
		return err
	}

	if text != "" {
		a.Context().AddAssistantMessage(text)
		a.Log().Debug("committed assistant message (%d chars)", len(text))
	}
	return nil
}
