package aggregators

import (
	"context"
	"sync"
	"time"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/services"
	"github.com/voxline-ai/voxline/src/turn"
)

// UserAggregatorParams holds configuration for the user aggregator
type UserAggregatorParams struct {
	// AggregationTimeout flushes accumulated text when the STT keeps
	// quiet for this long after a final result.
	AggregationTimeout time.Duration
}

// DefaultUserAggregatorParams returns default parameters
func DefaultUserAggregatorParams() *UserAggregatorParams {
	return &UserAggregatorParams{
		AggregationTimeout: 500 * time.Millisecond,
	}
}

// UserAggregator accumulates final transcriptions into user turns,
// decides whether user speech interrupts the assistant, and pushes the
// updated context downstream to trigger the LLM.
type UserAggregator struct {
	*ContextAggregator

	mu           sync.Mutex
	userSpeaking bool
	botSpeaking  bool

	aggregationCtx    context.Context
	aggregationCancel context.CancelFunc
	aggregationEvent  chan struct{}

	sink   turn.Sink
	params *UserAggregatorParams
}

// NewUserAggregator creates a new user aggregator. Finalized user turns
// are reported to sink, which may be nil.
func NewUserAggregator(llmContext *services.LLMContext, sink turn.Sink, params *UserAggregatorParams) *UserAggregator {
	if params == nil {
		params = DefaultUserAggregatorParams()
	}

	u := &UserAggregator{
		aggregationEvent: make(chan struct{}, 1),
		sink:             sink,
		params:           params,
	}
	u.ContextAggregator = NewContextAggregator("UserAggregator", llmContext, "user", u)
	return u
}

func (u *UserAggregator) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		u.HandleStartFrame(f)
		u.Log().Info("interruptions: allowed=%v strategies=%d", u.InterruptionsAllowed(), len(u.InterruptionStrategies()))

		u.mu.Lock()
		u.aggregationCtx, u.aggregationCancel = context.WithCancel(ctx)
		u.mu.Unlock()
		go u.aggregationTaskHandler()

		return u.PushFrame(frame, direction)

	case *frames.EndFrame:
		u.mu.Lock()
		if u.aggregationCancel != nil {
			u.aggregationCancel()
		}
		u.mu.Unlock()
		return u.PushFrame(frame, direction)

	case *frames.TTSStartedFrame:
		u.mu.Lock()
		u.botSpeaking = true
		u.mu.Unlock()
		return u.PushFrame(frame, direction)

	case *frames.TTSStoppedFrame:
		u.mu.Lock()
		u.botSpeaking = false
		u.mu.Unlock()
		return u.PushFrame(frame, direction)

	case *frames.UserStartedSpeakingFrame:
		u.mu.Lock()
		u.userSpeaking = true
		u.mu.Unlock()
		return u.PushFrame(frame, direction)

	case *frames.UserStoppedSpeakingFrame:
		u.mu.Lock()
		u.userSpeaking = false
		u.mu.Unlock()
		return u.PushFrame(frame, direction)

	case *frames.AudioFrame:
		return u.handleAudio(f)

	case *frames.TranscriptionFrame:
		return u.handleTranscription(f)
	}

	return u.PushFrame(frame, direction)
}

// handleAudio feeds raw user audio to the interruption strategies so
// volume based detection can fire before any transcription arrives.
// Audio frames stop here; the stages below this one are text only.
func (u *UserAggregator) handleAudio(f *frames.AudioFrame) error {
	for _, strategy := range u.InterruptionStrategies() {
		if err := strategy.AppendAudio(f.Data, f.SampleRate); err != nil {
			u.Log().Warn("strategy append audio failed: %v", err)
		}
	}
	return nil
}

// handleTranscription accumulates final results and feeds every result,
// interim or final, to the interruption strategies. Transcription frames
// are consumed here; downstream sees only LLMContextFrames.
func (u *UserAggregator) handleTranscription(f *frames.TranscriptionFrame) error {
	if f.Text == "" {
		return nil
	}

	u.Log().Debug("transcription (final=%v): %q", f.IsFinal, f.Text)

	for _, strategy := range u.InterruptionStrategies() {
		if err := strategy.AppendText(f.Text); err != nil {
			u.Log().Warn("strategy append failed: %v", err)
		}
	}

	if !f.IsFinal {
		return nil
	}

	u.mu.Lock()
	u.AppendToAggregation(f.Text)
	speaking := u.userSpeaking
	u.mu.Unlock()

	select {
	case u.aggregationEvent <- struct{}{}:
	default:
	}

	if !speaking {
		if err := u.pushAggregation(); err != nil {
			u.Log().Error("push aggregation failed: %v", err)
		}
	}
	return nil
}

// pushAggregation flushes the accumulated user text. While the bot is
// speaking the configured strategies decide whether the text interrupts
// the assistant or gets discarded as backchannel noise.
func (u *UserAggregator) pushAggregation() error {
	u.mu.Lock()
	if len(u.aggregation) == 0 {
		u.mu.Unlock()
		return nil
	}
	botSpeaking := u.botSpeaking
	u.mu.Unlock()

	if botSpeaking && len(u.InterruptionStrategies()) > 0 {
		shouldInterrupt := u.shouldInterrupt()
		if !shouldInterrupt {
			u.Log().Debug("interruption conditions not met, discarding input")
			u.mu.Lock()
			err := u.Reset()
			u.mu.Unlock()
			return err
		}

		u.Log().Info("interruption conditions met")
		if err := u.PushInterruptionTaskFrame(); err != nil {
			return err
		}
	}

	return u.processAggregation()
}

// processAggregation turns the buffer into a user message and pushes the
// context downstream.
func (u *UserAggregator) processAggregation() error {
	u.mu.Lock()
	text := u.AggregationString()
	if err := u.Reset(); err != nil {
		u.mu.Unlock()
		return err
	}
	u.mu.Unlock()

	if text == "" {
		return nil
	}

	if u.sink != nil {
		u.sink.RecordTurn(turn.Turn{
			Speaker:   turn.SpeakerUser,
			Content:   text,
			Timestamp: time.Now(),
			Final:     true,
		})
	}

	u.Context().AddUserMessage(text)
	return u.PushContextFrame(frames.Downstream)
}

func (u *UserAggregator) shouldInterrupt() bool {
	for _, strategy := range u.InterruptionStrategies() {
		interrupt, err := strategy.ShouldInterrupt()
		if err != nil {
			u.Log().Warn("strategy check failed: %v", err)
			continue
		}
		if interrupt {
			for _, s := range u.InterruptionStrategies() {
				if err := s.Reset(); err != nil {
					u.Log().Warn("strategy reset failed: %v", err)
				}
			}
			return true
		}
	}
	return false
}

// aggregationTaskHandler flushes text that never got a closing final
// result, so a user who trails off still reaches the LLM.
func (u *UserAggregator) aggregationTaskHandler() {
	u.mu.Lock()
	ctx := u.aggregationCtx
	u.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return

		case <-time.After(u.params.AggregationTimeout):
			u.mu.Lock()
			pending := !u.userSpeaking && len(u.aggregation) > 0
			u.mu.Unlock()
			if pending {
				if err := u.pushAggregation(); err != nil {
					u.Log().Error("push aggregation on timeout failed: %v", err)
				}
			}

		case <-u.aggregationEvent:
			// Resets the timeout window relative to the last final result.
		}
	}
}
