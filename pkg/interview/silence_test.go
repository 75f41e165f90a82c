package interview

import (
	"encoding/binary"
	"testing"
	"time"
)

// makePCM builds a 16-bit LE mono frame with a constant sample amplitude.
func makePCM(amplitude int16, samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

// testClock is a manually advanced time source.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDetector(config SilenceConfig) (*SilenceDetector, *testClock) {
	clock := newTestClock()
	d := NewSilenceDetector(config, DefaultAudioConfig())
	d.now = clock.now
	return d, clock
}

func TestSilenceDetector_CalibrationEstablishesBaseline(t *testing.T) {
	config := DefaultSilenceConfig()
	config.CalibrationWindow = 100 * time.Millisecond
	d, _ := newTestDetector(config)

	// 50ms frames of quiet room noise. 16kHz mono 16-bit: 50ms = 800 samples.
	quiet := makePCM(100, 800)
	d.ProcessAudio(quiet)
	if d.Baseline() != 0 {
		t.Error("Expected no baseline before calibration window fills")
	}
	d.ProcessAudio(quiet)

	baseline := d.Baseline()
	if baseline <= 0 {
		t.Fatalf("Expected positive baseline after calibration, got %f", baseline)
	}
	want := RMSEnergy(quiet)
	if baseline < want*0.99 || baseline > want*1.01 {
		t.Errorf("Expected baseline near %f, got %f", want, baseline)
	}
}

func TestSilenceDetector_CalibrationFramesNotClassified(t *testing.T) {
	config := DefaultSilenceConfig()
	config.CalibrationWindow = 100 * time.Millisecond
	d, clock := newTestDetector(config)

	// A loud frame during calibration must not flip the speaking state.
	d.ProcessAudio(makePCM(20000, 400))
	if d.Speaking() {
		t.Error("Expected no speech classification during calibration")
	}
	clock.advance(25 * time.Millisecond)
	if d.CurrentSilence() != 0 {
		t.Error("Expected zero silence duration during calibration")
	}
}

func TestSilenceDetector_SpeechOnset(t *testing.T) {
	config := DefaultSilenceConfig()
	config.CalibrationWindow = 0 // skip calibration
	d, _ := newTestDetector(config)

	started := make(chan struct{}, 1)
	d.SetCallbacks(func() { started <- struct{}{} }, nil)

	d.ProcessAudio(makePCM(20000, 800))
	if !d.Speaking() {
		t.Error("Expected speaking state after loud frame")
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Error("Expected speech-start callback")
	}
}

func TestSilenceDetector_HangoverBridgesPauses(t *testing.T) {
	config := DefaultSilenceConfig()
	config.CalibrationWindow = 0
	config.Hangover = 400 * time.Millisecond
	d, clock := newTestDetector(config)

	loud := makePCM(20000, 800)
	quiet := makePCM(10, 800)

	d.ProcessAudio(loud)

	// A quiet frame inside the hangover keeps the speaking state.
	clock.advance(200 * time.Millisecond)
	d.ProcessAudio(quiet)
	if !d.Speaking() {
		t.Error("Expected speaking state to survive a pause shorter than the hangover")
	}
	if d.CurrentSilence() != 0 {
		t.Error("Expected zero silence while hangover is active")
	}

	// Past the hangover the state flips and the silence clock is backdated
	// to the end of the hangover, not the frame that observed the flip.
	clock.advance(800 * time.Millisecond)
	d.ProcessAudio(quiet)
	if d.Speaking() {
		t.Error("Expected silence after the hangover elapsed")
	}
	got := d.CurrentSilence()
	want := 600 * time.Millisecond // 1000ms since last speech minus 400ms hangover
	if got != want {
		t.Errorf("Expected silence duration %v, got %v", want, got)
	}
}

func TestSilenceDetector_MinEnergyFloor(t *testing.T) {
	config := DefaultSilenceConfig()
	config.CalibrationWindow = 0
	config.MinEnergy = 0.01
	d, _ := newTestDetector(config)

	// Baseline is zero, so the threshold must fall back to MinEnergy.
	// Amplitude 200/32768 ~ 0.006 RMS, below the floor.
	d.ProcessAudio(makePCM(200, 800))
	if d.Speaking() {
		t.Error("Expected frame below the absolute energy floor to be silence")
	}

	// Amplitude 600/32768 ~ 0.018 RMS, above the floor.
	d.ProcessAudio(makePCM(600, 800))
	if !d.Speaking() {
		t.Error("Expected frame above the absolute energy floor to be speech")
	}
}

func TestSilenceDetector_ResetRetainsCalibration(t *testing.T) {
	config := DefaultSilenceConfig()
	config.CalibrationWindow = 100 * time.Millisecond
	d, clock := newTestDetector(config)

	quiet := makePCM(100, 800)
	d.ProcessAudio(quiet)
	d.ProcessAudio(quiet)
	baseline := d.Baseline()
	if baseline <= 0 {
		t.Fatal("Expected calibration to complete")
	}

	d.ProcessAudio(makePCM(20000, 800))
	if !d.Speaking() {
		t.Fatal("Expected speaking state before reset")
	}

	d.Reset()
	if d.Speaking() {
		t.Error("Expected reset to clear the speaking state")
	}
	if d.Baseline() != baseline {
		t.Error("Expected reset to retain the calibrated baseline")
	}

	// The silence clock restarts at the reset, not at the last speech.
	clock.advance(300 * time.Millisecond)
	if got := d.CurrentSilence(); got != 300*time.Millisecond {
		t.Errorf("Expected 300ms of silence after reset, got %v", got)
	}
}
