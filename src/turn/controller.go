package turn

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/processors"
)

// InterruptedMarker is appended to the captured partial text of an
// assistant utterance that was cut off by the user.
const InterruptedMarker = "[interrupted]"

// State of the controller's per-utterance state machine
type State int

const (
	StateIdle     State = iota // No assistant speech outstanding
	StateSpeaking              // Assistant response is being emitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Controller is the single serialization point for "what counts as the
// current assistant turn". It watches the frame flow between the LLM/TTS
// stages and the transport output, accumulating the streamed assistant
// text so that on interruption it can close the turn with exactly the
// text that was emitted so far.
type Controller struct {
	*processors.BaseProcessor

	sink Sink

	mu      sync.Mutex
	state   State
	partial []string
}

// NewController creates a turn controller that forwards finalized
// assistant turns to sink.
func NewController(sink Sink) *Controller {
	c := &Controller{
		sink:  sink,
		state: StateIdle,
	}
	c.BaseProcessor = processors.NewBaseProcessor("TurnController", c)
	return c
}

// State returns the current state. Exposed for tests and diagnostics.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.LLMFullResponseStartFrame:
		c.mu.Lock()
		c.state = StateSpeaking
		c.partial = c.partial[:0]
		c.mu.Unlock()
		c.Log().Debug("idle -> speaking")

	case *frames.TextFrame:
		c.mu.Lock()
		if c.state == StateSpeaking {
			c.partial = append(c.partial, f.Text)
		}
		c.mu.Unlock()

	case *frames.LLMTextFrame:
		c.mu.Lock()
		if c.state == StateSpeaking {
			c.partial = append(c.partial, f.Text)
		}
		c.mu.Unlock()

	case *frames.TTSStoppedFrame:
		// Natural completion of the utterance
		if t, ok := c.closeTurn(false); ok {
			c.sink.RecordTurn(t)
			c.Log().Debug("speaking -> idle (completed)")
		}

	case *frames.InterruptionFrame:
		// Interruption while idle is a no-op, not an error
		if t, ok := c.closeTurn(true); ok {
			c.sink.RecordTurn(t)
			c.Log().Info("speaking -> interrupted -> idle, captured %d chars", len(t.Content))
		}
	}

	return c.PushFrame(frame, direction)
}

// closeTurn finalizes the in-flight assistant turn, if any. All buffered
// partial state is discarded regardless of outcome.
func (c *Controller) closeTurn(interrupted bool) (Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSpeaking {
		return Turn{}, false
	}

	content := strings.TrimSpace(strings.Join(c.partial, ""))
	c.state = StateIdle
	c.partial = c.partial[:0]

	if interrupted {
		if content == "" {
			// Provider exposed no partial text; record only that the
			// interruption occurred
			content = InterruptedMarker
		} else {
			content = content + " " + InterruptedMarker
		}
	} else if content == "" {
		return Turn{}, false
	}

	return Turn{
		Speaker:     SpeakerAssistant,
		Content:     content,
		Timestamp:   time.Now(),
		Final:       true,
		Interrupted: interrupted,
	}, true
}
