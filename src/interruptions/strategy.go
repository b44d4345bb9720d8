package interruptions

import "sync"

// InterruptionStrategy determines when user speech should cut off an
// in-flight assistant utterance
type InterruptionStrategy interface {
	// AppendAudio adds audio data for analysis
	// Not all strategies need to handle audio
	AppendAudio(audio []byte, sampleRate int) error

	// AppendText adds transcribed text for analysis
	// Not all strategies need to handle text
	AppendText(text string) error

	// ShouldInterrupt decides, based on the accumulated audio/text,
	// whether the user should interrupt the assistant
	ShouldInterrupt() (bool, error)

	// Reset clears the accumulated state
	Reset() error
}

// BaseInterruptionStrategy provides no-op defaults for strategies that
// only care about one input kind
type BaseInterruptionStrategy struct {
	mu sync.Mutex
}

func (b *BaseInterruptionStrategy) AppendAudio(audio []byte, sampleRate int) error {
	return nil
}

func (b *BaseInterruptionStrategy) AppendText(text string) error {
	return nil
}

func (b *BaseInterruptionStrategy) Reset() error {
	return nil
}
