package interview

import (
	"context"
	"fmt"
	"sync"
)

// RecordedClip is one finalized answer recording.
type RecordedClip struct {
	SessionID  string  `json:"session_id"`
	QuestionID string  `json:"question_id"`
	PCM        []byte  `json:"-"`
	DurationMs int     `json:"duration_ms"`
	Peak       float64 `json:"peak"`
}

// ClipSink receives finalized clips, e.g. for upload to media storage.
type ClipSink func(clip RecordedClip)

// ClipRecorder is a Recorder that buffers one answer's PCM in memory and
// hands the finished clip to a sink. The buffer is bounded; a rambling
// answer keeps only its most recent maxDurationMs of audio.
type ClipRecorder struct {
	mu         sync.Mutex
	config     AudioConfig
	maxMs      int
	sink       ClipSink
	buf        *AudioBuffer
	sessionID  string
	questionID string
	peak       float64
}

func NewClipRecorder(config AudioConfig, maxDurationMs int, sink ClipSink) *ClipRecorder {
	return &ClipRecorder{
		config: config,
		maxMs:  maxDurationMs,
		sink:   sink,
	}
}

// Start begins a fresh recording for one question.
func (r *ClipRecorder) Start(_ context.Context, sessionID, questionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = NewAudioBuffer(r.config, r.maxMs)
	r.sessionID = sessionID
	r.questionID = questionID
	r.peak = 0
	return nil
}

// Write appends PCM to the in-flight recording.
func (r *ClipRecorder) Write(pcm []byte) error {
	r.mu.Lock()
	buf := r.buf
	if p := PeakAmplitude(pcm); p > r.peak {
		r.peak = p
	}
	r.mu.Unlock()

	if buf == nil {
		return fmt.Errorf("recorder not started")
	}
	buf.Write(pcm)
	return nil
}

// Stop finalizes the clip and delivers it to the sink. Stop without a
// preceding Start is a no-op.
func (r *ClipRecorder) Stop() error {
	r.mu.Lock()
	buf := r.buf
	clip := RecordedClip{
		SessionID:  r.sessionID,
		QuestionID: r.questionID,
		Peak:       r.peak,
	}
	r.buf = nil
	r.mu.Unlock()

	if buf == nil {
		return nil
	}
	clip.PCM = buf.Read()
	clip.DurationMs = buf.DurationMs()
	if r.sink != nil {
		r.sink(clip)
	}
	return nil
}
