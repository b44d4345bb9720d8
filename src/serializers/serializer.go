package serializers

import (
	"github.com/voxline-ai/voxline/src/frames"
)

// SerializerType defines the serialization format type
type SerializerType string

const (
	SerializerTypeBinary SerializerType = "binary"
	SerializerTypeText   SerializerType = "text"
)

// FrameSerializer converts frames to and from a room provider's wire
// format. The transport stays protocol-agnostic; plugging a different
// serializer adapts it to a different provider.
type FrameSerializer interface {
	// Type returns the serialization type (binary or text)
	Type() SerializerType

	// Serialize converts a frame to its wire representation. A nil
	// result with nil error means the frame has no wire equivalent.
	Serialize(frame frames.Frame) (interface{}, error)

	// Deserialize converts wire data back to a frame. A nil frame with
	// nil error means the message carries nothing for the pipeline.
	Deserialize(data interface{}) (frames.Frame, error)

	// Cleanup releases any resources held by the serializer
	Cleanup() error
}
