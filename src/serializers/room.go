package serializers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/voxline-ai/voxline/src/frames"
)

// RoomFrameSerializer handles the JSON room protocol spoken by the
// websocket room provider: media events carry base64 PCM audio, control
// events carry participant lifecycle and playback commands.
type RoomFrameSerializer struct {
	participantID string
}

type roomMessage struct {
	Event         string     `json:"event"`
	ParticipantID string     `json:"participantId,omitempty"`
	Media         *roomMedia `json:"media,omitempty"`
}

type roomMedia struct {
	Payload    string `json:"payload"` // base64-encoded PCM audio
	SampleRate int    `json:"sampleRate,omitempty"`
}

// NewRoomFrameSerializer creates a new room protocol serializer
func NewRoomFrameSerializer() *RoomFrameSerializer {
	return &RoomFrameSerializer{}
}

// Type returns the serialization type (the room protocol is JSON text)
func (s *RoomFrameSerializer) Type() SerializerType {
	return SerializerTypeText
}

// Serialize converts a frame to a room protocol JSON message
func (s *RoomFrameSerializer) Serialize(frame frames.Frame) (interface{}, error) {
	switch f := frame.(type) {
	case *frames.TTSAudioFrame:
		msg := roomMessage{
			Event: "media",
			Media: &roomMedia{
				Payload:    base64.StdEncoding.EncodeToString(f.Data),
				SampleRate: f.SampleRate,
			},
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal media message: %w", err)
		}
		return string(data), nil

	case *frames.InterruptionFrame:
		// Tell the room to drop any audio it has buffered for playback
		msg := roomMessage{Event: "clear"}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal clear message: %w", err)
		}
		return string(data), nil

	case *frames.EndFrame:
		msg := roomMessage{Event: "leave"}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal leave message: %w", err)
		}
		return string(data), nil

	default:
		return nil, nil
	}
}

// Deserialize converts a room protocol JSON message to a frame
func (s *RoomFrameSerializer) Deserialize(data interface{}) (frames.Frame, error) {
	var jsonData string
	switch v := data.(type) {
	case string:
		jsonData = v
	case []byte:
		jsonData = string(v)
	default:
		return nil, fmt.Errorf("expected string or []byte, got %T", data)
	}

	var msg roomMessage
	if err := json.Unmarshal([]byte(jsonData), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room message: %w", err)
	}

	switch msg.Event {
	case "media":
		if msg.Media == nil {
			return nil, fmt.Errorf("media event missing media data")
		}
		audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio payload: %w", err)
		}
		sampleRate := msg.Media.SampleRate
		if sampleRate == 0 {
			sampleRate = 16000
		}
		return frames.NewAudioFrame(audio, sampleRate), nil

	case "participant_joined":
		s.participantID = msg.ParticipantID
		return frames.NewParticipantJoinedFrame(msg.ParticipantID), nil

	case "participant_left":
		return frames.NewParticipantLeftFrame(msg.ParticipantID), nil

	default:
		// Unknown events carry nothing for the pipeline
		return nil, nil
	}
}

// Cleanup releases any resources (none for the room serializer)
func (s *RoomFrameSerializer) Cleanup() error {
	return nil
}

// ParticipantID returns the id of the last participant that joined
func (s *RoomFrameSerializer) ParticipantID() string {
	return s.participantID
}
