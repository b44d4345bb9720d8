package interruptions

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// VADBasedInterruptionStrategy interrupts on sustained voice activity.
// It uses short-term energy plus zero-crossing rate so brief noise
// bursts do not trigger an interruption.
type VADBasedInterruptionStrategy struct {
	BaseInterruptionStrategy

	minDuration     time.Duration
	energyThreshold float64
	zeroCrossRate   float64

	speechStartTime time.Time
	isSpeaking      bool
	vmu             sync.Mutex
}

// VADBasedInterruptionStrategyParams holds configuration for VAD-based interruption
type VADBasedInterruptionStrategyParams struct {
	MinDuration     time.Duration // Minimum sustained speech (default: 300ms)
	EnergyThreshold float64       // Energy threshold (default: 0.02)
	ZeroCrossRate   float64       // ZCR threshold (default: 0.1)
}

// NewVADBasedInterruptionStrategy creates a new VAD-based interruption strategy
func NewVADBasedInterruptionStrategy(params *VADBasedInterruptionStrategyParams) *VADBasedInterruptionStrategy {
	if params == nil {
		params = &VADBasedInterruptionStrategyParams{
			MinDuration:     300 * time.Millisecond,
			EnergyThreshold: 0.02,
			ZeroCrossRate:   0.1,
		}
	}

	return &VADBasedInterruptionStrategy{
		minDuration:     params.MinDuration,
		energyThreshold: params.EnergyThreshold,
		zeroCrossRate:   params.ZeroCrossRate,
	}
}

func (v *VADBasedInterruptionStrategy) AppendAudio(audio []byte, sampleRate int) error {
	v.vmu.Lock()
	defer v.vmu.Unlock()

	energy := calculateRMS(audio)
	zcr := calculateZeroCrossingRate(audio)

	hasVoice := energy > v.energyThreshold && zcr > v.zeroCrossRate

	if hasVoice {
		if !v.isSpeaking {
			v.isSpeaking = true
			v.speechStartTime = time.Now()
		}
	} else {
		v.isSpeaking = false
	}

	return nil
}

func (v *VADBasedInterruptionStrategy) ShouldInterrupt() (bool, error) {
	v.vmu.Lock()
	defer v.vmu.Unlock()

	if !v.isSpeaking {
		return false, nil
	}

	return time.Since(v.speechStartTime) >= v.minDuration, nil
}

func (v *VADBasedInterruptionStrategy) Reset() error {
	v.vmu.Lock()
	defer v.vmu.Unlock()

	v.isSpeaking = false
	v.speechStartTime = time.Time{}

	return nil
}

// calculateRMS computes the normalized root-mean-square of 16-bit PCM samples
func calculateRMS(audio []byte) float64 {
	if len(audio) < 2 {
		return 0.0
	}

	var sum float64
	samples := 0
	for i := 0; i+1 < len(audio); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(audio[i:]))
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
		samples++
	}

	if samples == 0 {
		return 0.0
	}
	return math.Sqrt(sum / float64(samples))
}

// calculateZeroCrossingRate computes how often the signal changes sign.
// Speech has a different ZCR profile than stationary noise.
func calculateZeroCrossingRate(audio []byte) float64 {
	if len(audio) < 4 {
		return 0.0
	}

	zeroCrossings := 0
	samples := 0
	var prevPositive bool
	for i := 0; i+1 < len(audio); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(audio[i:]))
		positive := sample >= 0
		if samples > 0 && positive != prevPositive {
			zeroCrossings++
		}
		prevPositive = positive
		samples++
	}

	if samples <= 1 {
		return 0.0
	}
	return float64(zeroCrossings) / float64(samples-1)
}
