package interview

import (
	"testing"
)

func TestRMSEnergy(t *testing.T) {
	if got := RMSEnergy(nil); got != 0 {
		t.Errorf("Expected 0 for empty input, got %f", got)
	}
	if got := RMSEnergy(makePCM(0, 160)); got != 0 {
		t.Errorf("Expected 0 for digital silence, got %f", got)
	}

	// Constant full-scale samples normalize to ~1.0.
	got := RMSEnergy(makePCM(32767, 160))
	if got < 0.99 || got > 1.0 {
		t.Errorf("Expected ~1.0 for full-scale input, got %f", got)
	}

	half := RMSEnergy(makePCM(16384, 160))
	if half < 0.49 || half > 0.51 {
		t.Errorf("Expected ~0.5 for half-scale input, got %f", half)
	}
}

func TestPeakAmplitude(t *testing.T) {
	pcm := makePCM(1000, 160)
	// Spike one sample.
	pcm[100] = 0xFF
	pcm[101] = 0x7F // 32767 LE

	got := PeakAmplitude(pcm)
	if got < 0.99 || got > 1.0 {
		t.Errorf("Expected peak ~1.0, got %f", got)
	}
}

func TestAudioBuffer_TrimsOldestOnOverflow(t *testing.T) {
	config := DefaultAudioConfig()  // 16kHz mono 16-bit = 32 bytes/ms
	b := NewAudioBuffer(config, 10) // 320 bytes max

	first := makePCM(1, 100)  // 200 bytes
	second := makePCM(2, 100) // 200 bytes
	b.Write(first)
	b.Write(second)

	if b.Len() != 320 {
		t.Errorf("Expected buffer trimmed to 320 bytes, got %d", b.Len())
	}
	if b.DurationMs() != 10 {
		t.Errorf("Expected 10ms of audio, got %dms", b.DurationMs())
	}

	// The newest bytes survive the trim.
	data := b.Read()
	tail := data[len(data)-2:]
	if tail[0] != 2 || tail[1] != 0 {
		t.Errorf("Expected newest samples at the tail, got %v", tail)
	}
}
