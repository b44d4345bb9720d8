package frames

import "github.com/voxline-ai/voxline/src/interruptions"

// SystemFrame is the base for all system-level frames
type SystemFrame struct {
	*BaseFrame
}

func (f *SystemFrame) Category() FrameCategory {
	return SystemCategory
}

// StartFrame signals the beginning of pipeline execution
type StartFrame struct {
	*SystemFrame
	AllowInterruptions     bool
	InterruptionStrategies []interruptions.InterruptionStrategy
}

func NewStartFrame(allowInterruptions bool) *StartFrame {
	return &StartFrame{
		SystemFrame:        &SystemFrame{BaseFrame: NewBaseFrame("StartFrame")},
		AllowInterruptions: allowInterruptions,
	}
}

// NewStartFrameWithConfig creates a StartFrame that also carries the
// interruption strategies every stage should honor.
func NewStartFrameWithConfig(allowInterruptions bool, strategies []interruptions.InterruptionStrategy) *StartFrame {
	f := NewStartFrame(allowInterruptions)
	f.InterruptionStrategies = strategies
	return f
}

// EndFrame signals graceful shutdown after flushing all frames
type EndFrame struct {
	*SystemFrame
}

func NewEndFrame() *EndFrame {
	return &EndFrame{
		SystemFrame: &SystemFrame{BaseFrame: NewBaseFrame("EndFrame")},
	}
}

// CancelFrame signals immediate shutdown without flushing
type CancelFrame struct {
	*SystemFrame
}

func NewCancelFrame() *CancelFrame {
	return &CancelFrame{
		SystemFrame: &SystemFrame{BaseFrame: NewBaseFrame("CancelFrame")},
	}
}

// InterruptionFrame signals the user interrupted the assistant mid-utterance
type InterruptionFrame struct {
	*SystemFrame
}

func NewInterruptionFrame() *InterruptionFrame {
	return &InterruptionFrame{
		SystemFrame: &SystemFrame{BaseFrame: NewBaseFrame("InterruptionFrame")},
	}
}

// InterruptionTaskFrame travels upstream from the user aggregator to the
// pipeline task, which converts it into a downstream InterruptionFrame
type InterruptionTaskFrame struct {
	*SystemFrame
}

func NewInterruptionTaskFrame() *InterruptionTaskFrame {
	return &InterruptionTaskFrame{
		SystemFrame: &SystemFrame{BaseFrame: NewBaseFrame("InterruptionTaskFrame")},
	}
}

// ErrorFrame carries a stage-level error through the pipeline without
// aborting sibling stages
type ErrorFrame struct {
	*SystemFrame
	Error error
	Fatal bool
}

func NewErrorFrame(err error) *ErrorFrame {
	return &ErrorFrame{
		SystemFrame: &SystemFrame{BaseFrame: NewBaseFrame("ErrorFrame")},
		Error:       err,
	}
}

func NewFatalErrorFrame(err error) *ErrorFrame {
	f := NewErrorFrame(err)
	f.Fatal = true
	return f
}

// UserStartedSpeakingFrame signals VAD detected user speech
type UserStartedSpeakingFrame struct {
	*SystemFrame
}

func NewUserStartedSpeakingFrame() *UserStartedSpeakingFrame {
	return &UserStartedSpeakingFrame{
		SystemFrame: &SystemFrame{BaseFrame: NewBaseFrame("UserStartedSpeakingFrame")},
	}
}

// UserStoppedSpeakingFrame signals VAD detected end of user speech
type UserStoppedSpeakingFrame struct {
	*SystemFrame
}

func NewUserStoppedSpeakingFrame() *UserStoppedSpeakingFrame {
	return &UserStoppedSpeakingFrame{
		SystemFrame: &SystemFrame{BaseFrame: NewBaseFrame("UserStoppedSpeakingFrame")},
	}
}

// ParticipantJoinedFrame signals a remote participant entered the room
type ParticipantJoinedFrame struct {
	*SystemFrame
	ParticipantID string
}

func NewParticipantJoinedFrame(participantID string) *ParticipantJoinedFrame {
	return &ParticipantJoinedFrame{
		SystemFrame:   &SystemFrame{BaseFrame: NewBaseFrame("ParticipantJoinedFrame")},
		ParticipantID: participantID,
	}
}

// ParticipantLeftFrame signals the remote participant disconnected; the
// task treats it as end-of-call
type ParticipantLeftFrame struct {
	*SystemFrame
	ParticipantID string
}

func NewParticipantLeftFrame(participantID string) *ParticipantLeftFrame {
	return &ParticipantLeftFrame{
		SystemFrame:   &SystemFrame{BaseFrame: NewBaseFrame("ParticipantLeftFrame")},
		ParticipantID: participantID,
	}
}
