package turn

import "time"

// Speaker identifies who produced a turn
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one attributed utterance in a call's transcript. Turns are
// never mutated after creation; an interruption produces a new closing
// turn rather than editing history.
type Turn struct {
	Speaker     Speaker
	Content     string
	Timestamp   time.Time
	Final       bool
	Interrupted bool
}

// Sink receives finalized turns. Implemented by the transcript recorder.
type Sink interface {
	RecordTurn(t Turn)
}
