package serializers

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/voxline-ai/voxline/src/frames"
)

func TestDeserializeMediaEvent(t *testing.T) {
	s := NewRoomFrameSerializer()

	msg := `{"event":"media","media":{"payload":"AQIDBA==","sampleRate":8000}}`
	frame, err := s.Deserialize(msg)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	audio, ok := frame.(*frames.AudioFrame)
	if !ok {
		t.Fatalf("got %T, want *frames.AudioFrame", frame)
	}
	if !bytes.Equal(audio.Data, []byte{1, 2, 3, 4}) {
		t.Errorf("audio data = %v", audio.Data)
	}
	if audio.SampleRate != 8000 {
		t.Errorf("sample rate = %d, want 8000", audio.SampleRate)
	}
}

func TestDeserializeParticipantLifecycle(t *testing.T) {
	s := NewRoomFrameSerializer()

	frame, err := s.Deserialize(`{"event":"participant_joined","participantId":"caller-1"}`)
	if err != nil {
		t.Fatalf("deserialize joined: %v", err)
	}
	joined, ok := frame.(*frames.ParticipantJoinedFrame)
	if !ok || joined.ParticipantID != "caller-1" {
		t.Fatalf("joined frame = %#v", frame)
	}
	if s.ParticipantID() != "caller-1" {
		t.Errorf("tracked participant = %q", s.ParticipantID())
	}

	frame, err = s.Deserialize(`{"event":"participant_left","participantId":"caller-1"}`)
	if err != nil {
		t.Fatalf("deserialize left: %v", err)
	}
	left, ok := frame.(*frames.ParticipantLeftFrame)
	if !ok || left.ParticipantID != "caller-1" {
		t.Fatalf("left frame = %#v", frame)
	}
}

func TestDeserializeUnknownEventIsIgnored(t *testing.T) {
	s := NewRoomFrameSerializer()

	frame, err := s.Deserialize(`{"event":"keepalive"}`)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if frame != nil {
		t.Fatalf("unknown event produced %T", frame)
	}
}

func TestSerializeInterruptionSendsClear(t *testing.T) {
	s := NewRoomFrameSerializer()

	data, err := s.Serialize(frames.NewInterruptionFrame())
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	var msg map[string]interface{}
	if err := json.Unmarshal([]byte(data.(string)), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg["event"] != "clear" {
		t.Errorf("event = %v, want clear", msg["event"])
	}
}

func TestSerializeTTSAudioRoundTrips(t *testing.T) {
	s := NewRoomFrameSerializer()

	pcm := []byte{0, 1, 0, 2, 0, 3}
	data, err := s.Serialize(frames.NewTTSAudioFrame(pcm, 16000))
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	frame, err := s.Deserialize(data)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	audio, ok := frame.(*frames.AudioFrame)
	if !ok {
		t.Fatalf("got %T", frame)
	}
	if !bytes.Equal(audio.Data, pcm) || audio.SampleRate != 16000 {
		t.Errorf("round trip = %v @ %d", audio.Data, audio.SampleRate)
	}
}

func TestSerializeIgnoresUnrelatedFrames(t *testing.T) {
	s := NewRoomFrameSerializer()

	data, err := s.Serialize(frames.NewTextFrame("hello"))
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if data != nil {
		t.Fatalf("text frame serialized to %v", data)
	}
}
