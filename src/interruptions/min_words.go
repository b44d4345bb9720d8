package interruptions

import (
	"strings"

	"github.com/voxline-ai/voxline/src/logger"
)

// MinWordsInterruptionStrategy interrupts once the user has spoken at
// least a minimum number of words, filtering out coughs and backchannel
// noises that VAD alone would treat as an interruption.
type MinWordsInterruptionStrategy struct {
	BaseInterruptionStrategy
	minWords int
	text     string
}

// NewMinWordsInterruptionStrategy creates a new minimum words strategy
func NewMinWordsInterruptionStrategy(minWords int) *MinWordsInterruptionStrategy {
	return &MinWordsInterruptionStrategy{minWords: minWords}
}

func (m *MinWordsInterruptionStrategy) AppendText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Appends arrive as separate phrases; keep a word boundary between them
	if m.text != "" && !strings.HasSuffix(m.text, " ") {
		m.text += " "
	}
	m.text += text
	return nil
}

func (m *MinWordsInterruptionStrategy) ShouldInterrupt() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wordCount := len(strings.Fields(m.text))
	interrupt := wordCount >= m.minWords

	logger.Debug("[MinWordsStrategy] should_interrupt=%v num_spoken_words=%d min_words=%d",
		interrupt, wordCount, m.minWords)

	return interrupt, nil
}

func (m *MinWordsInterruptionStrategy) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.text = ""
	return nil
}
