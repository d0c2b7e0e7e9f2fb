package audio

import (
	"math"
	"time"
)

// VADConfig tunes the energy-based voice activity detector.
type VADConfig struct {
	SpeechThresholdDB float64
	SilenceTimeout    time.Duration
	MinSpeechDuration time.Duration
	PreSpeechBuffer   time.Duration
	SampleRate        int
}

// DefaultVADConfig returns defaults tuned for close-mic conversational
// speech at 16 kHz.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SpeechThresholdDB: -32,
		SilenceTimeout:    900 * time.Millisecond,
		MinSpeechDuration: 400 * time.Millisecond,
		PreSpeechBuffer:   250 * time.Millisecond,
		SampleRate:        16000,
	}
}

// VAD delimits utterances by RMS energy: a span starts when energy crosses
// the speech threshold and ends after SilenceTimeout of quiet. A small
// pre-speech ring is prepended so soft onsets are not clipped.
type VAD struct {
	cfg          VADConfig
	inSpeech     bool
	speechStart  time.Time
	lastSpeech   time.Time
	span         []float32
	preSpeech    []float32
	preSpeechCap int
}

// NewVAD creates a detector with the given config.
func NewVAD(cfg VADConfig) *VAD {
	capSamples := int(cfg.PreSpeechBuffer.Seconds() * float64(cfg.SampleRate))
	return &VAD{cfg: cfg, preSpeechCap: capSamples}
}

// Segment is a completed speech span.
type Segment struct {
	Complete bool
	Samples  []float32
}

// Feed processes one chunk of samples and reports a completed speech span,
// if any. Spans shorter than MinSpeechDuration are discarded as blips.
func (v *VAD) Feed(samples []float32) Segment {
	now := time.Now()
	if energyDB(samples) >= v.cfg.SpeechThresholdDB {
		v.onSpeech(samples, now)
		return Segment{}
	}
	return v.onSilence(samples, now)
}

// Active reports whether a speech span is currently open.
func (v *VAD) Active() bool { return v.inSpeech }

// Flush returns whatever speech is buffered and resets the detector. Used
// when the client signals utterance completion explicitly or the session
// ends mid-span.
func (v *VAD) Flush() []float32 {
	span := v.span
	v.span = nil
	v.inSpeech = false
	v.preSpeech = nil
	if len(span) == 0 {
		return nil
	}
	return span
}

func (v *VAD) onSpeech(samples []float32, now time.Time) {
	if !v.inSpeech {
		v.inSpeech = true
		v.speechStart = now
		v.span = append(v.span, v.preSpeech...)
		v.preSpeech = nil
	}
	v.lastSpeech = now
	v.span = append(v.span, samples...)
}

func (v *VAD) onSilence(samples []float32, now time.Time) Segment {
	if !v.inSpeech {
		v.preSpeech = append(v.preSpeech, samples...)
		if overflow := len(v.preSpeech) - v.preSpeechCap; overflow > 0 {
			v.preSpeech = v.preSpeech[overflow:]
		}
		return Segment{}
	}

	v.span = append(v.span, samples...)
	if now.Sub(v.lastSpeech) < v.cfg.SilenceTimeout {
		return Segment{}
	}

	v.inSpeech = false
	span := v.span
	v.span = nil

	if now.Sub(v.speechStart) < v.cfg.MinSpeechDuration {
		return Segment{}
	}
	return Segment{Complete: true, Samples: span}
}

func energyDB(samples []float32) float64 {
	if len(samples) == 0 {
		return -100
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1e-10 {
		return -100
	}
	return 20 * math.Log10(rms)
}
