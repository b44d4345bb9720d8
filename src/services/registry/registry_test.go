package registry

import "testing"

func TestLatencyTuning(t *testing.T) {
	if got := responseTokenBudget(true); got != 800 {
		t.Errorf("responseTokenBudget(true) = %d, want 800", got)
	}
	if got := responseTokenBudget(false); got != 2000 {
		t.Errorf("responseTokenBudget(false) = %d, want 2000", got)
	}
	if got := sttEndpointing(true); got != 50 {
		t.Errorf("sttEndpointing(true) = %d, want 50", got)
	}
	if got := sttEndpointing(false); got != 500 {
		t.Errorf("sttEndpointing(false) = %d, want 500", got)
	}
}

func TestUnsupportedProviders(t *testing.T) {
	if _, err := NewSTT(Config{STTProvider: "whisperx"}); err == nil {
		t.Error("NewSTT accepted an unknown provider")
	}
	if _, err := NewLLM(Config{LLMProvider: "llama-local"}); err == nil {
		t.Error("NewLLM accepted an unknown provider")
	}
	if _, err := NewTTS(Config{TTSProvider: "espeak"}); err == nil {
		t.Error("NewTTS accepted an unknown provider")
	}
}
