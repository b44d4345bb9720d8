package transports

import (
	"context"

	"github.com/voxline-ai/voxline/src/processors"
)

// Transport connects the pipeline to a room provider. Input frames flow
// from the room into the pipeline head; output frames flow from the
// pipeline tail back to the room.
type Transport interface {
	// Join connects to the room. The transport starts feeding inbound
	// frames into its input processor once joined.
	Join(ctx context.Context, room, token string) error

	// Leave disconnects from the room
	Leave() error

	// Input returns the processor that emits inbound room frames
	Input() processors.FrameProcessor

	// Output returns the processor that sends outbound frames to the room
	Output() processors.FrameProcessor

	// CaptureTranscription asks the room to deliver the participant's
	// audio to this transport. Called once per call start.
	CaptureTranscription(participantID string) error

	// OnParticipantJoined registers a participant join callback
	OnParticipantJoined(callback func(participantID string))

	// OnParticipantLeft registers a participant leave callback
	OnParticipantLeft(callback func(participantID string))
}
