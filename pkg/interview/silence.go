package interview

import (
	"sync"
	"time"
)

// SilenceDetector classifies incoming PCM frames as speech or silence and
// tracks the duration of continuous silence.
//
// The first CalibrationWindow of audio establishes a baseline noise floor;
// subsequent frames count as speech when their RMS energy exceeds the floor
// times BaselineMultiplier, with MinEnergy as an absolute lower bound so
// near-silent rooms do not produce false positives. A Hangover interval
// keeps the detector in the speaking state across brief mid-sentence pauses.
type SilenceDetector struct {
	config SilenceConfig
	audio  AudioConfig

	mu sync.Mutex

	calibrating   bool
	calibratedMs  int
	noiseSum      float64
	noiseFrames   int
	baseline      float64
	speaking      bool
	lastSpeech    time.Time
	silenceStart  time.Time
	sawFirstFrame bool

	// Callbacks for events
	onSpeechStart func()
	onSilence     func(duration time.Duration)

	now func() time.Time
}

// NewSilenceDetector creates a detector for the given audio format.
func NewSilenceDetector(config SilenceConfig, audio AudioConfig) *SilenceDetector {
	return &SilenceDetector{
		config:      config,
		audio:       audio,
		calibrating: config.CalibrationWindow > 0,
		now:         time.Now,
	}
}

// SetCallbacks sets the event callbacks for the detector.
func (d *SilenceDetector) SetCallbacks(
	onSpeechStart func(),
	onSilence func(duration time.Duration),
) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSpeechStart = onSpeechStart
	d.onSilence = onSilence
}

// ProcessAudio classifies one PCM frame. Frames received during calibration
// only feed the noise floor and are never classified.
func (d *SilenceDetector) ProcessAudio(pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	energy := RMSEnergy(pcm)
	frameMs := d.audio.DurationMs(len(pcm))

	d.mu.Lock()
	nowT := d.now()

	if !d.sawFirstFrame {
		d.sawFirstFrame = true
		d.silenceStart = nowT
	}

	if d.calibrating {
		d.noiseSum += energy
		d.noiseFrames++
		d.calibratedMs += frameMs
		if time.Duration(d.calibratedMs)*time.Millisecond >= d.config.CalibrationWindow {
			if d.noiseFrames > 0 {
				d.baseline = d.noiseSum / float64(d.noiseFrames)
			}
			d.calibrating = false
			d.silenceStart = nowT
		}
		d.mu.Unlock()
		return
	}

	threshold := d.threshold()

	if energy > threshold {
		d.lastSpeech = nowT
		if !d.speaking {
			d.speaking = true
			cb := d.onSpeechStart
			d.mu.Unlock()
			if cb != nil {
				go cb()
			}
			return
		}
		d.mu.Unlock()
		return
	}

	// Below threshold. Stay in the speaking state through the hangover so a
	// breath between words does not restart the silence clock.
	if d.speaking {
		if nowT.Sub(d.lastSpeech) < d.config.Hangover {
			d.mu.Unlock()
			return
		}
		d.speaking = false
		d.silenceStart = d.lastSpeech.Add(d.config.Hangover)
	}

	duration := nowT.Sub(d.silenceStart)
	cb := d.onSilence
	d.mu.Unlock()
	if cb != nil {
		go cb(duration)
	}
}

// CurrentSilence returns the duration of continuous silence. It is zero
// while speech is active or calibration has not finished.
func (d *SilenceDetector) CurrentSilence() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.calibrating || d.speaking || !d.sawFirstFrame {
		return 0
	}
	s := d.now().Sub(d.silenceStart)
	if s < 0 {
		return 0
	}
	return s
}

// Speaking reports whether the detector currently classifies the input as speech.
func (d *SilenceDetector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// Baseline returns the calibrated noise floor, or 0 while calibrating.
func (d *SilenceDetector) Baseline() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calibrating {
		return 0
	}
	return d.baseline
}

// Reset restarts the silence clock for a new listening stage. Calibration
// is retained; the room has not changed between questions.
func (d *SilenceDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speaking = false
	d.lastSpeech = time.Time{}
	d.silenceStart = d.now()
	d.sawFirstFrame = true
}

// threshold must be called with the mutex held.
func (d *SilenceDetector) threshold() float64 {
	t := d.baseline * d.config.BaselineMultiplier
	if t < d.config.MinEnergy {
		t = d.config.MinEnergy
	}
	return t
}
