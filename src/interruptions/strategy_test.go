package interruptions

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestMinWordsBelowThresholdDoesNotInterrupt(t *testing.T) {
	s := NewMinWordsInterruptionStrategy(3)

	if err := s.AppendText("uh"); err != nil {
		t.Fatalf("append: %v", err)
	}

	interrupt, err := s.ShouldInterrupt()
	if err != nil {
		t.Fatalf("should interrupt: %v", err)
	}
	if interrupt {
		t.Error("one word triggered an interruption at min_words=3")
	}
}

func TestMinWordsAccumulatesAcrossAppends(t *testing.T) {
	s := NewMinWordsInterruptionStrategy(3)

	s.AppendText("wait ")
	s.AppendText("one moment")

	interrupt, err := s.ShouldInterrupt()
	if err != nil {
		t.Fatalf("should interrupt: %v", err)
	}
	if !interrupt {
		t.Error("three accumulated words did not trigger an interruption")
	}
}

func TestMinWordsResetClearsText(t *testing.T) {
	s := NewMinWordsInterruptionStrategy(2)

	s.AppendText("stop right there")
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	interrupt, _ := s.ShouldInterrupt()
	if interrupt {
		t.Error("reset strategy still wants to interrupt")
	}
}

// sineWave produces 16-bit PCM samples loud enough to clear the default
// energy threshold.
func sineWave(samples int, freq float64, sampleRate int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(20000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestVADIgnoresSilence(t *testing.T) {
	s := NewVADBasedInterruptionStrategy(nil)

	silence := make([]byte, 640)
	if err := s.AppendAudio(silence, 16000); err != nil {
		t.Fatalf("append: %v", err)
	}

	interrupt, err := s.ShouldInterrupt()
	if err != nil {
		t.Fatalf("should interrupt: %v", err)
	}
	if interrupt {
		t.Error("silence triggered an interruption")
	}
}

func TestVADInterruptsOnSustainedVoice(t *testing.T) {
	s := NewVADBasedInterruptionStrategy(&VADBasedInterruptionStrategyParams{
		MinDuration:     10 * time.Millisecond,
		EnergyThreshold: 0.02,
		ZeroCrossRate:   0.01,
	})

	voice := sineWave(320, 440, 16000)
	if err := s.AppendAudio(voice, 16000); err != nil {
		t.Fatalf("append: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if err := s.AppendAudio(voice, 16000); err != nil {
		t.Fatalf("append: %v", err)
	}

	interrupt, err := s.ShouldInterrupt()
	if err != nil {
		t.Fatalf("should interrupt: %v", err)
	}
	if !interrupt {
		t.Error("sustained voice did not trigger an interruption")
	}
}

func TestVADShortBurstDoesNotInterrupt(t *testing.T) {
	s := NewVADBasedInterruptionStrategy(&VADBasedInterruptionStrategyParams{
		MinDuration:     500 * time.Millisecond,
		EnergyThreshold: 0.02,
		ZeroCrossRate:   0.01,
	})

	voice := sineWave(320, 440, 16000)
	if err := s.AppendAudio(voice, 16000); err != nil {
		t.Fatalf("append: %v", err)
	}

	interrupt, err := s.ShouldInterrupt()
	if err != nil {
		t.Fatalf("should interrupt: %v", err)
	}
	if interrupt {
		t.Error("brief voice burst triggered an interruption")
	}
}
