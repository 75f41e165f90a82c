package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/prepdeck/interviewd/pkg/interview/store"
)

// Deps are the injected collaborators for an orchestrator. Questions is
// required; everything else is optional and its absence narrows
// functionality rather than failing the session.
type Deps struct {
	Questions   QuestionProvider
	Analyzer    FeedbackAnalyzer
	Narrator    Narrator
	Transcriber Transcriber
	Recorder    Recorder
	Snapshots   store.Store
	Completion  CompletionSink
	Integrity   []SignalSource
	Logger      *slog.Logger
}

type submitTrigger int

const (
	submitManual submitTrigger = iota
	submitAuto
	submitSkip
)

// Orchestrator drives an interview session through its stage machine and
// coordinates the silence detector, integrity monitor, and snapshot store.
// It is the only component with write access to session progression.
type Orchestrator struct {
	config      SessionConfig
	audioConfig AudioConfig

	// Collaborators
	questions   QuestionProvider
	analyzer    FeedbackAnalyzer
	narrator    Narrator
	transcriber Transcriber
	recorder    Recorder
	snapshots   store.Store
	completion  CompletionSink

	// Components
	silence   *SilenceDetector
	integrity *IntegrityMonitor
	countdown *Countdown
	answers   *Stopwatch

	// State
	mu            sync.RWMutex
	stage         Stage
	generation    uint64
	session       *Session
	profile       CandidateProfile
	responses     []Response
	followUps     []FollowUpExchange
	reviews       []ReviewExchange
	transcript    strings.Builder
	structured    string
	structuredLng string
	autoSubmitted bool // auto-submit guard, reset on each listening entry
	violationBase int  // violations carried over from a recovered snapshot
	paused        bool
	pausedAt      time.Time
	pauseKind     ViolationKind
	recoverable   *store.Snapshot
	reviewPrompts []string
	reviewIdx     int
	followUp      *FollowUpQuestion
	transcribing  bool
	recording     bool
	autosaveOn    bool
	completedAt   time.Time

	// Stage-scoped timer cancels
	pollCancel     context.CancelFunc
	autosaveCancel context.CancelFunc

	// Channels
	events chan Event
	audio  chan []byte
	done   chan struct{}
	closed atomic.Bool

	// ending is set before teardown begins so in-flight delayed callbacks
	// become no-ops instead of re-entering the state machine.
	ending       atomic.Bool
	completeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	logger       *slog.Logger
	debugEnabled bool
}

// NewOrchestrator creates an orchestrator in the loading stage.
func NewOrchestrator(config SessionConfig, deps Deps) *Orchestrator {
	audioConfig := AudioConfig{
		SampleRate:    config.SampleRate,
		Channels:      config.Channels,
		BitsPerSample: 16,
	}
	if audioConfig.SampleRate == 0 {
		audioConfig.SampleRate = 16000
	}
	if audioConfig.Channels == 0 {
		audioConfig.Channels = 1
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		config:      config,
		audioConfig: audioConfig,
		questions:   deps.Questions,
		analyzer:    deps.Analyzer,
		narrator:    deps.Narrator,
		transcriber: deps.Transcriber,
		recorder:    deps.Recorder,
		snapshots:   deps.Snapshots,
		completion:  deps.Completion,
		silence:     NewSilenceDetector(config.Silence, audioConfig),
		integrity:   NewIntegrityMonitor(deps.Integrity...),
		answers:     NewStopwatch(),
		stage:       StageLoading,
		events:      make(chan Event, 100),
		audio:       make(chan []byte, 100),
		done:        make(chan struct{}),
		logger:      logger,
	}
	return o
}

// EnableDebug enables debug event emission.
func (o *Orchestrator) EnableDebug() {
	o.debugEnabled = true
}

// Events returns the channel for receiving session events.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Stage returns the current session stage.
func (o *Orchestrator) Stage() Stage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stage
}

// SessionID returns the session identifier, or "" before Start.
func (o *Orchestrator) SessionID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session == nil {
		return ""
	}
	return o.session.ID
}

// TimeRemaining returns the session seconds left.
func (o *Orchestrator) TimeRemaining() int {
	if o.countdown == nil {
		return 0
	}
	return o.countdown.Remaining()
}

// ViolationCount returns the accumulated violation count, including any
// carried over from a recovered snapshot.
func (o *Orchestrator) ViolationCount() int {
	o.mu.RLock()
	base := o.violationBase
	o.mu.RUnlock()
	return base + o.integrity.Count()
}

// CurrentQuestionIndex returns the current question index.
func (o *Orchestrator) CurrentQuestionIndex() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session == nil {
		return 0
	}
	return o.session.CurrentIndex
}

// Responses returns a copy of the responses recorded so far.
func (o *Orchestrator) Responses() []Response {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Response, len(o.responses))
	copy(out, o.responses)
	return out
}

// Start initializes the session: fetches the question list, creates the
// session record, and checks for a recoverable snapshot. Setup failures are
// returned to the caller and no stage transition is attempted.
func (o *Orchestrator) Start(ctx context.Context, userID string, profile CandidateProfile) error {
	o.mu.Lock()
	if o.stage != StageLoading {
		o.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	if o.questions == nil {
		o.mu.Unlock()
		return fmt.Errorf("question provider is required")
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.profile = profile
	o.mu.Unlock()

	qs, err := o.questions.GenerateQuestions(o.ctx, o.config, profile)
	if err != nil {
		return fmt.Errorf("generate questions: %w", err)
	}
	if len(qs) == 0 {
		return fmt.Errorf("question provider returned no questions")
	}

	total := int(o.config.TotalDuration / time.Second)
	o.mu.Lock()
	o.session = &Session{
		ID:                   uuid.NewString(),
		UserID:               userID,
		SessionType:          o.config.SessionType,
		Questions:            qs,
		TimeRemainingSeconds: total,
		Stage:                StageLoading,
	}
	o.countdown = NewCountdown(total)
	o.mu.Unlock()

	o.countdown.SetCallbacks(o.onTimeTick, o.onTimeExpired)
	o.integrity.SetCallbacks(o.onViolation, o.onIntegrityPause)
	o.integrity.Start(o.ctx)
	o.silence.SetCallbacks(o.onSpeechStart, nil)

	go o.audioLoop()

	// Look for an incomplete prior session before offering a fresh start.
	if o.snapshots != nil {
		snap, err := o.snapshots.FindRecoverable(o.ctx, userID, o.config.SessionType)
		if err != nil {
			o.logger.Warn("recovery lookup failed", "error", err)
		} else if snap != nil && !snap.Stale(o.config.Autosave.Staleness) {
			o.mu.Lock()
			o.recoverable = snap
			o.mu.Unlock()
			o.emit(&RecoveryOfferedEvent{
				SessionID:    snap.SessionID,
				CurrentIndex: snap.CurrentIndex,
				LastSaved:    snap.LastSaved,
			})
		}
	}

	o.setStage(StageReady)
	o.emit(&SessionReadyEvent{
		SessionID:     o.SessionID(),
		QuestionCount: len(qs),
		TotalSeconds:  total,
		MediaEnabled:  o.transcriber != nil || o.recorder != nil,
	})
	return nil
}

// Begin starts the interview on user request. A pending recovery offer that
// was neither accepted nor declined is treated as declined.
func (o *Orchestrator) Begin() error {
	o.mu.Lock()
	if o.stage != StageReady {
		stage := o.stage
		o.mu.Unlock()
		return fmt.Errorf("cannot begin in stage %s", stage)
	}
	if o.session == nil {
		o.mu.Unlock()
		return fmt.Errorf("no session")
	}
	pending := o.recoverable
	o.recoverable = nil
	o.session.StartedAt = time.Now()
	o.mu.Unlock()

	if pending != nil && o.snapshots != nil {
		if err := o.snapshots.Clear(o.ctx, pending.SessionID); err != nil {
			o.logger.Warn("discard declined snapshot", "error", err)
		}
	}

	o.countdown.Start(o.ctx)
	o.integrity.SetFullscreen(true)
	o.emit(&FullscreenRequestEvent{})
	o.startAutosave()
	o.presentQuestion()
	return nil
}

// AcceptRecovery restores the offered snapshot and resumes directly into
// listening for the saved question.
func (o *Orchestrator) AcceptRecovery() error {
	o.mu.Lock()
	if o.stage != StageReady {
		stage := o.stage
		o.mu.Unlock()
		return fmt.Errorf("cannot recover in stage %s", stage)
	}
	snap := o.recoverable
	if snap == nil {
		o.mu.Unlock()
		return fmt.Errorf("no recoverable snapshot")
	}
	o.recoverable = nil

	o.session.ID = snap.SessionID
	o.session.CurrentIndex = snap.CurrentIndex
	o.session.TimeRemainingSeconds = snap.TimeRemainingSeconds
	o.session.StartedAt = snap.StartedAt
	o.session.TotalViolationTimeSeconds = snap.TotalViolationTimeSeconds
	o.violationBase = snap.ViolationCount
	o.transcript.Reset()
	o.transcript.WriteString(snap.Transcript)
	o.structured = snap.StructuredAnswer
	o.mu.Unlock()

	o.countdown.SetRemaining(snap.TimeRemainingSeconds)
	o.countdown.Start(o.ctx)
	o.integrity.SetFullscreen(true)
	o.emit(&FullscreenRequestEvent{})
	o.startAutosave()

	// Skip narration on recovery; the candidate has already heard the
	// question once.
	o.setStage(StageQuestion)
	q := o.currentQuestion()
	if q == nil {
		return o.failFast("recovered snapshot has no current question")
	}
	o.emit(&QuestionPresentedEvent{Index: snap.CurrentIndex, Question: q})
	o.enterListening(false)
	return nil
}

// DeclineRecovery discards the offered snapshot and leaves the session
// ready for a fresh start.
func (o *Orchestrator) DeclineRecovery() error {
	o.mu.Lock()
	snap := o.recoverable
	o.recoverable = nil
	o.mu.Unlock()

	if snap == nil {
		return nil
	}
	if o.snapshots != nil {
		if err := o.snapshots.Clear(o.ctx, snap.SessionID); err != nil {
			return fmt.Errorf("discard snapshot: %w", err)
		}
	}
	return nil
}

// SendAudio feeds candidate PCM audio into the session.
func (o *Orchestrator) SendAudio(data []byte) error {
	if o.closed.Load() {
		return fmt.Errorf("session closed")
	}

	select {
	case o.audio <- data:
		return nil
	case <-o.done:
		return fmt.Errorf("session closed")
	default:
		// Buffer full, drop audio
		o.debug("AUDIO", "buffer full, dropping chunk")
		return nil
	}
}

// AppendTranscript adds externally transcribed text to the in-progress
// answer. Hosts whose speech-to-text runs client-side use this instead of
// a Transcriber collaborator.
func (o *Orchestrator) AppendTranscript(text string, isFinal bool) {
	if text == "" || o.ending.Load() {
		return
	}
	o.mu.Lock()
	if o.stage == StageListening || o.stage == StageFollowUp || o.stage == StageCodeReview {
		o.transcript.WriteString(text)
	}
	o.mu.Unlock()
	o.emit(&TranscriptDeltaEvent{Delta: text, IsFinal: isFinal})
}

// SetStructuredAnswer records the in-progress structured answer for the
// current question.
func (o *Orchestrator) SetStructuredAnswer(code, language string) {
	o.mu.Lock()
	o.structured = code
	o.structuredLng = language
	o.mu.Unlock()
}

// SubmitAnswer commits the in-progress answer for the current stage:
// the question answer in listening, the prompt answer in code review, or
// the follow-up answer in follow-up.
func (o *Orchestrator) SubmitAnswer() error {
	o.mu.RLock()
	stage := o.stage
	o.mu.RUnlock()

	switch stage {
	case StageListening:
		return o.submit(submitManual, 0)
	case StageCodeReview:
		return o.submitReviewAnswer()
	case StageFollowUp:
		return o.submitFollowUpAnswer()
	default:
		return fmt.Errorf("cannot submit in stage %s", stage)
	}
}

// Skip abandons the current question with a skip-marker response.
func (o *Orchestrator) Skip() error {
	return o.submit(submitSkip, 0)
}

// Pause suspends the session (user-requested, e.g. before the violation
// dialog is shown by the host).
func (o *Orchestrator) Pause() {
	o.pauseSession("")
}

// Resume continues after a pause: re-enters fullscreen if needed, resumes
// narration, and restarts capture when a listening stage is live.
func (o *Orchestrator) Resume() {
	if o.ending.Load() {
		return
	}

	o.mu.Lock()
	if !o.paused {
		o.mu.Unlock()
		return
	}
	o.paused = false
	pausedFor := time.Since(o.pausedAt)
	o.session.TotalViolationTimeSeconds += int(pausedFor / time.Second)
	stage := o.stage
	o.mu.Unlock()

	o.countdown.Resume()
	o.answers.Resume()
	if o.narrator != nil {
		o.narrator.Resume()
	}
	switch stage {
	case StageListening:
		// Time spent in the pause dialog is not candidate silence; restart
		// the clock or a long pause auto-submits on resume.
		o.silence.Reset()
		o.startTranscriber()
	case StageCodeReview, StageFollowUp:
		o.startTranscriber()
	}
	o.integrity.SetFullscreen(true)
	o.emit(&FullscreenRequestEvent{})
	o.emit(&SessionResumedEvent{PausedSeconds: int(pausedFor / time.Second)})
}

// EndNow terminates the session immediately. Idempotent: the completion
// sink fires exactly once no matter how many times this is called.
func (o *Orchestrator) EndNow() {
	o.complete("ended_by_user")
}

// Close releases resources. A session still in progress is NOT completed:
// its last snapshot is written and kept, so a reconnecting client gets the
// recovery offer. Completed sessions have already cleared theirs.
func (o *Orchestrator) Close() error {
	if o.closed.Swap(true) {
		return nil // Already closed
	}

	o.mu.RLock()
	stage := o.stage
	o.mu.RUnlock()
	if !o.ending.Load() && stage != StageLoading && stage != StageReady {
		o.saveSnapshot()
	}
	o.ending.Store(true)

	if o.cancel != nil {
		o.cancel()
	}
	o.stopCapture()
	if o.narrator != nil {
		o.narrator.Stop()
	}
	o.stopAutosave()
	o.integrity.Stop()
	if o.countdown != nil {
		o.countdown.Stop()
	}

	close(o.done)
	close(o.events)
	return nil
}

// presentQuestion narrates the current question and schedules the listening
// transition after the narration lead-in.
func (o *Orchestrator) presentQuestion() {
	q := o.currentQuestion()
	if q == nil {
		_ = o.failFast("no question at current index")
		return
	}

	if !o.setStage(StageQuestion) {
		return
	}

	o.mu.RLock()
	index := o.session.CurrentIndex
	o.mu.RUnlock()
	o.emit(&QuestionPresentedEvent{Index: index, Question: q})

	if o.narrator != nil {
		text := q.Text
		go func() {
			if err := o.narrator.Speak(o.ctx, text); err != nil {
				o.debug("NARRATE", "speak failed: "+err.Error())
			}
		}()
	}

	o.scheduleStageTask(o.config.NarrationLeadIn, func() {
		o.enterListening(true)
	})
}

// enterListening begins answer capture for the current question.
func (o *Orchestrator) enterListening(fromQuestion bool) {
	q := o.currentQuestion()
	if q == nil {
		_ = o.failFast("no question at current index")
		return
	}

	if !o.setStage(StageListening) {
		return
	}

	o.mu.Lock()
	o.autoSubmitted = false // guard resets only on listening entry
	if fromQuestion {
		o.transcript.Reset()
		o.structured = ""
		o.structuredLng = ""
	}
	o.mu.Unlock()

	o.answers.Restart()
	o.silence.Reset()
	o.startTranscriber()
	o.startRecorder(q.ID)

	autoSubmit := !q.RequiresStructuredAnswer
	if autoSubmit {
		o.startSilencePoll()
	}
	o.emit(&ListeningStartedEvent{QuestionID: q.ID, AutoSubmit: autoSubmit})
}

// startSilencePoll runs the 100ms auto-submit polling loop for the current
// listening stage. The loop's context is cancelled on stage exit.
func (o *Orchestrator) startSilencePoll() {
	ctx, cancel := context.WithCancel(o.ctx)

	o.mu.Lock()
	o.pollCancel = cancel
	gen := o.generation
	o.mu.Unlock()

	threshold := o.config.Silence.AutoSubmitThreshold
	interval := o.config.Silence.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		lastSeconds := -1
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.done:
				return
			case <-ticker.C:
				if o.ending.Load() {
					return
				}

				o.mu.RLock()
				stale := o.generation != gen
				fired := o.autoSubmitted
				paused := o.paused
				o.mu.RUnlock()
				if stale {
					return
				}
				if fired || paused {
					continue
				}

				silence := o.silence.CurrentSilence()
				left := threshold - silence
				if left < 0 {
					left = 0
				}
				secs := int((left + time.Second - 1) / time.Second)
				if secs != lastSeconds {
					lastSeconds = secs
					o.emit(&SilenceCountdownEvent{
						SecondsLeft:     secs,
						SilenceDuration: silence.Seconds(),
					})
				}

				if left == 0 {
					o.mu.Lock()
					if o.autoSubmitted || o.generation != gen {
						o.mu.Unlock()
						continue
					}
					o.autoSubmitted = true
					o.mu.Unlock()

					o.debug("SILENCE", "threshold reached, auto-submitting")
					if err := o.submit(submitAuto, silence); err != nil {
						o.debug("SILENCE", "auto-submit rejected: "+err.Error())
					}
					return
				}
			}
		}
	}()
}

// submit commits the current answer exactly once and moves to processing.
// The stage check and transition happen under one lock so a double submit
// (double-click, or poll racing a manual submit) yields a single Response.
func (o *Orchestrator) submit(trigger submitTrigger, silenceDur time.Duration) error {
	o.mu.Lock()
	if o.stage != StageListening {
		stage := o.stage
		o.mu.Unlock()
		return fmt.Errorf("cannot submit in stage %s", stage)
	}
	q := o.session.CurrentQuestion()
	if q == nil {
		o.mu.Unlock()
		return fmt.Errorf("no question at current index")
	}

	o.advanceStageLocked(StageProcessing)

	resp := Response{
		ID:              uuid.NewString(),
		QuestionID:      q.ID,
		FreeformAnswer:  strings.TrimSpace(o.transcript.String()),
		Language:        o.structuredLng,
		DurationSeconds: o.answers.ElapsedSeconds(),
		AutoSubmitted:   trigger == submitAuto,
		Skipped:         trigger == submitSkip,
		SubmittedAt:     time.Now(),
	}
	if q.RequiresStructuredAnswer {
		resp.StructuredAnswer = o.structured
	}
	if trigger == submitAuto {
		resp.SilenceDurationSeconds = silenceDur.Seconds()
	}
	o.responses = append(o.responses, resp)
	question := *q
	o.mu.Unlock()

	o.stopCapture()
	o.emit(&StageChangedEvent{From: StageListening, To: StageProcessing})
	o.emit(&AnswerSubmittedEvent{
		QuestionID:    resp.QuestionID,
		ResponseID:    resp.ID,
		AutoSubmitted: resp.AutoSubmitted,
		Skipped:       resp.Skipped,
	})
	o.saveSnapshot()

	go o.process(question, resp)
	return nil
}

// process routes a submitted answer to feedback, code review, or follow-up.
// Analyzer failures advance to the next question rather than stalling the
// session.
func (o *Orchestrator) process(q Question, resp Response) {
	if o.ending.Load() {
		return
	}

	if resp.Skipped || o.analyzer == nil {
		o.enterFeedback(q, nil)
		return
	}

	if q.RequiresStructuredAnswer && resp.StructuredAnswer != "" {
		prompts, err := o.analyzer.GenerateReviewPrompts(o.ctx, resp.StructuredAnswer, resp.Language, q)
		if err != nil {
			o.debug("ANALYZE", "review prompts failed: "+err.Error())
		}
		if len(prompts) > 0 {
			o.enterCodeReview(q, prompts)
			return
		}
	} else {
		fu, err := o.analyzer.AnalyzeFollowUp(o.ctx, q, resp.FreeformAnswer, o.candidateProfile())
		if err != nil {
			o.debug("ANALYZE", "follow-up analysis failed: "+err.Error())
		}
		if fu != nil {
			o.enterFollowUp(q, fu)
			return
		}
	}

	fb, err := o.analyzer.Analyze(o.ctx, q, resp.FreeformAnswer)
	if err != nil {
		o.debug("ANALYZE", "feedback failed: "+err.Error())
		fb = nil
	}
	o.enterFeedback(q, fb)
}

func (o *Orchestrator) enterFeedback(q Question, fb *Feedback) {
	if !o.setStage(StageFeedback) {
		return
	}
	o.emit(&FeedbackEvent{QuestionID: q.ID, Feedback: fb})
	o.scheduleStageTask(o.config.FeedbackHold, o.nextQuestion)
}

func (o *Orchestrator) enterCodeReview(q Question, prompts []string) {
	if !o.setStage(StageCodeReview) {
		return
	}
	o.mu.Lock()
	o.reviewPrompts = prompts
	o.reviewIdx = 0
	o.transcript.Reset()
	o.mu.Unlock()
	o.startTranscriber()
	o.presentReviewPrompt(q.ID)
}

func (o *Orchestrator) presentReviewPrompt(questionID string) {
	o.mu.RLock()
	idx := o.reviewIdx
	total := len(o.reviewPrompts)
	var prompt string
	if idx < total {
		prompt = o.reviewPrompts[idx]
	}
	o.mu.RUnlock()

	if idx >= total {
		o.nextQuestion()
		return
	}

	o.emit(&ReviewPromptEvent{QuestionID: questionID, Prompt: prompt, Index: idx, Total: total})
	if o.narrator != nil {
		go func() {
			if err := o.narrator.Speak(o.ctx, prompt); err != nil {
				o.debug("NARRATE", "speak failed: "+err.Error())
			}
		}()
	}
}

// submitReviewAnswer records the answer to the current review prompt and
// presents the next one, or advances when prompts are exhausted.
func (o *Orchestrator) submitReviewAnswer() error {
	o.mu.Lock()
	if o.stage != StageCodeReview {
		stage := o.stage
		o.mu.Unlock()
		return fmt.Errorf("cannot submit review answer in stage %s", stage)
	}
	q := o.session.CurrentQuestion()
	if q == nil || o.reviewIdx >= len(o.reviewPrompts) {
		o.mu.Unlock()
		return fmt.Errorf("no review prompt pending")
	}
	o.reviews = append(o.reviews, ReviewExchange{
		QuestionID: q.ID,
		Prompt:     o.reviewPrompts[o.reviewIdx],
		Answer:     strings.TrimSpace(o.transcript.String()),
	})
	o.reviewIdx++
	o.transcript.Reset()
	questionID := q.ID
	exhausted := o.reviewIdx >= len(o.reviewPrompts)
	o.mu.Unlock()

	if exhausted {
		o.stopTranscriber()
		o.nextQuestion()
		return nil
	}
	o.presentReviewPrompt(questionID)
	return nil
}

func (o *Orchestrator) enterFollowUp(q Question, fu *FollowUpQuestion) {
	if !o.setStage(StageFollowUp) {
		return
	}
	o.mu.Lock()
	o.followUp = fu
	o.transcript.Reset()
	o.mu.Unlock()

	o.emit(&FollowUpEvent{QuestionID: q.ID, FollowUp: fu})
	if o.narrator != nil {
		text := fu.Text
		go func() {
			if err := o.narrator.Speak(o.ctx, text); err != nil {
				o.debug("NARRATE", "speak failed: "+err.Error())
			}
		}()
	}
	o.startTranscriber()
}

// submitFollowUpAnswer records the single free-text answer to the pending
// follow-up and advances to the next question.
func (o *Orchestrator) submitFollowUpAnswer() error {
	o.mu.Lock()
	if o.stage != StageFollowUp || o.followUp == nil {
		stage := o.stage
		o.mu.Unlock()
		return fmt.Errorf("no follow-up pending in stage %s", stage)
	}
	q := o.session.CurrentQuestion()
	if q != nil {
		o.followUps = append(o.followUps, FollowUpExchange{
			QuestionID: q.ID,
			Prompt:     o.followUp.Text,
			Answer:     strings.TrimSpace(o.transcript.String()),
		})
	}
	o.followUp = nil
	o.transcript.Reset()
	o.mu.Unlock()

	o.stopTranscriber()
	o.nextQuestion()
	return nil
}

// nextQuestion advances the index, completing the session when the list is
// exhausted.
func (o *Orchestrator) nextQuestion() {
	if o.ending.Load() {
		return
	}

	o.mu.Lock()
	o.session.CurrentIndex++
	done := o.session.CurrentIndex >= len(o.session.Questions)
	o.mu.Unlock()

	o.saveSnapshot()
	if done {
		o.complete("questions_exhausted")
		return
	}
	o.presentQuestion()
}

// complete terminates the session. Guarded so the completion sink and
// snapshot clear run exactly once.
func (o *Orchestrator) complete(reason string) {
	o.completeOnce.Do(func() {
		o.ending.Store(true)

		o.stopCapture()
		if o.narrator != nil {
			o.narrator.Stop()
		}
		if o.countdown != nil {
			o.countdown.Stop()
		}
		o.stopAutosave()

		o.mu.Lock()
		from := o.stage
		o.stage = StageCompleted
		o.generation++
		o.completedAt = time.Now()
		if o.session != nil {
			o.session.Stage = StageCompleted
			o.session.TimeRemainingSeconds = o.TimeRemaining()
			o.session.ViolationCount = o.violationBase + o.integrity.Count()
		}
		session := o.session
		o.mu.Unlock()

		o.emit(&FullscreenExitRequestEvent{})
		o.emit(&StageChangedEvent{From: from, To: StageCompleted})

		if session == nil {
			return
		}

		// The snapshot is only cleared on normal completion; abnormal
		// termination leaves it behind as the recovery trigger.
		if o.snapshots != nil {
			if err := o.snapshots.Clear(context.Background(), session.ID); err != nil {
				o.logger.Warn("clear snapshot", "session_id", session.ID, "error", err)
			}
		}

		summary := o.buildSummary(reason)
		if o.completion != nil {
			o.completion.OnComplete(session.ID, summary)
		}
		o.emit(&SessionCompletedEvent{SessionID: session.ID, Reason: reason, Summary: summary})
	})
}

func (o *Orchestrator) buildSummary(reason string) *Summary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	duration := 0
	if !o.session.StartedAt.IsZero() {
		end := o.completedAt
		if end.IsZero() {
			end = time.Now()
		}
		duration = int(end.Sub(o.session.StartedAt) / time.Second)
	}

	responses := make([]Response, len(o.responses))
	copy(responses, o.responses)

	return &Summary{
		SessionID:                 o.session.ID,
		UserID:                    o.session.UserID,
		DurationSeconds:           duration,
		Responses:                 responses,
		FollowUps:                 append([]FollowUpExchange(nil), o.followUps...),
		Reviews:                   append([]ReviewExchange(nil), o.reviews...),
		Violations:                o.integrity.Events(),
		ViolationCount:            o.violationBase + o.integrity.Count(),
		TotalViolationTimeSeconds: o.session.TotalViolationTimeSeconds,
		Reason:                    reason,
	}
}

// failFast reports a missing required input without entering a timed stage.
func (o *Orchestrator) failFast(msg string) error {
	o.emit(&ErrorEvent{Code: "invalid_state", Message: msg})
	return fmt.Errorf("%s", msg)
}

// setStage validates and applies a stage transition, bumping the generation
// so delayed tasks scheduled for the previous stage become no-ops.
// Returns false when the transition is illegal or the session is ending.
func (o *Orchestrator) setStage(to Stage) bool {
	if o.ending.Load() && to != StageCompleted {
		return false
	}

	o.mu.Lock()
	from := o.stage
	ok := o.advanceStageLocked(to)
	o.mu.Unlock()

	if !ok {
		o.debug("SESSION", fmt.Sprintf("illegal transition %s -> %s", from, to))
		return false
	}
	return true
}

// advanceStageLocked must be called with the mutex held.
func (o *Orchestrator) advanceStageLocked(to Stage) bool {
	if !canTransition(o.stage, to) {
		return false
	}
	from := o.stage
	o.stage = to
	o.generation++
	if o.session != nil {
		o.session.Stage = to
	}
	if from != to && to != StageProcessing {
		// submit emits the processing stage event itself, after the
		// Response is committed.
		o.emit(&StageChangedEvent{From: from, To: to})
	}
	return true
}

// scheduleStageTask runs fn after delay unless the stage has changed or
// teardown has started in the meantime.
func (o *Orchestrator) scheduleStageTask(delay time.Duration, fn func()) {
	o.mu.RLock()
	gen := o.generation
	o.mu.RUnlock()

	time.AfterFunc(delay, func() {
		if o.ending.Load() {
			return
		}
		o.mu.RLock()
		stale := o.generation != gen
		o.mu.RUnlock()
		if stale {
			return
		}
		fn()
	})
}

// audioLoop fans incoming audio out to the recorder, transcriber, and
// silence detector. The stream is shared by reference, never duplicated.
func (o *Orchestrator) audioLoop() {
	for {
		select {
		case <-o.done:
			return
		case <-o.ctx.Done():
			return
		case data := <-o.audio:
			o.processAudio(data)
		}
	}
}

func (o *Orchestrator) processAudio(data []byte) {
	o.mu.RLock()
	stage := o.stage
	paused := o.paused
	transcribing := o.transcribing
	recording := o.recording
	o.mu.RUnlock()

	if paused || (stage != StageListening && stage != StageFollowUp && stage != StageCodeReview) {
		return
	}

	if transcribing && o.transcriber != nil {
		if err := o.transcriber.Write(data); err != nil {
			o.debug("STT", "write failed: "+err.Error())
		}
	}
	if recording && o.recorder != nil {
		if err := o.recorder.Write(data); err != nil {
			o.debug("AUDIO", "record write failed: "+err.Error())
		}
	}
	if stage == StageListening {
		o.silence.ProcessAudio(data)
	}
}

// startTranscriber begins speech-to-text. A start failure is a capture
// failure: logged, and the session continues text-only.
func (o *Orchestrator) startTranscriber() {
	if o.transcriber == nil {
		return
	}
	o.mu.Lock()
	if o.transcribing {
		o.mu.Unlock()
		return
	}
	o.transcribing = true
	o.mu.Unlock()

	err := o.transcriber.Start(o.ctx,
		func(text string) { o.emit(&TranscriptDeltaEvent{Delta: text}) },
		func(text string) { o.AppendTranscript(text, true) },
		func(err error) { o.debug("STT", "error: "+err.Error()) },
	)
	if err != nil {
		o.mu.Lock()
		o.transcribing = false
		o.mu.Unlock()
		o.logger.Warn("transcriber start failed, continuing text-only", "error", err)
	}
}

func (o *Orchestrator) stopTranscriber() {
	if o.transcriber == nil {
		return
	}
	o.mu.Lock()
	was := o.transcribing
	o.transcribing = false
	o.mu.Unlock()
	if was {
		o.transcriber.Stop()
	}
}

func (o *Orchestrator) startRecorder(questionID string) {
	if o.recorder == nil {
		return
	}
	o.mu.Lock()
	if o.recording {
		o.mu.Unlock()
		return
	}
	o.recording = true
	o.mu.Unlock()

	if err := o.recorder.Start(o.ctx, o.SessionID(), questionID); err != nil {
		o.mu.Lock()
		o.recording = false
		o.mu.Unlock()
		o.logger.Warn("recorder start failed, continuing without media", "error", err)
	}
}

func (o *Orchestrator) stopRecorder() {
	if o.recorder == nil {
		return
	}
	o.mu.Lock()
	was := o.recording
	o.recording = false
	o.mu.Unlock()
	if was {
		if err := o.recorder.Stop(); err != nil {
			o.debug("AUDIO", "record stop failed: "+err.Error())
		}
	}
}

// stopCapture halts all capture and the silence poll. Called on stage exit
// and teardown; no capture timer outlives its stage.
func (o *Orchestrator) stopCapture() {
	o.mu.Lock()
	cancel := o.pollCancel
	o.pollCancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	o.stopTranscriber()
	o.stopRecorder()
}

// startAutosave begins the periodic snapshot loop. Runs once per session.
func (o *Orchestrator) startAutosave() {
	if o.snapshots == nil {
		return
	}
	o.mu.Lock()
	if o.autosaveOn {
		o.mu.Unlock()
		return
	}
	o.autosaveOn = true
	ctx, cancel := context.WithCancel(o.ctx)
	o.autosaveCancel = cancel
	o.mu.Unlock()

	interval := o.config.Autosave.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-o.done:
				return
			case <-ticker.C:
				o.saveSnapshot()
			}
		}
	}()
}

func (o *Orchestrator) stopAutosave() {
	o.mu.Lock()
	cancel := o.autosaveCancel
	o.autosaveCancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// saveSnapshot serializes the current mutable session fields plus the
// in-progress answer. Persistence failures are logged, never fatal.
func (o *Orchestrator) saveSnapshot() {
	if o.snapshots == nil || o.ending.Load() {
		return
	}

	o.mu.RLock()
	if o.session == nil {
		o.mu.RUnlock()
		return
	}
	snap := &store.Snapshot{
		SessionID:                 o.session.ID,
		UserID:                    o.session.UserID,
		SessionType:               o.session.SessionType,
		Stage:                     o.stage.String(),
		CurrentIndex:              o.session.CurrentIndex,
		TimeRemainingSeconds:      o.countdown.Remaining(),
		ViolationCount:            o.violationBase + o.integrity.Count(),
		TotalViolationTimeSeconds: o.session.TotalViolationTimeSeconds,
		Transcript:                o.transcript.String(),
		StructuredAnswer:          o.structured,
		StartedAt:                 o.session.StartedAt,
		LastSaved:                 time.Now(),
	}
	o.mu.RUnlock()

	if err := o.snapshots.Save(o.ctx, snap); err != nil {
		o.logger.Warn("autosave failed", "session_id", snap.SessionID, "error", err)
		return
	}
	o.emit(&SnapshotSavedEvent{SessionID: snap.SessionID, SavedAt: snap.LastSaved})
}

// onTimeTick is the countdown's per-second callback.
func (o *Orchestrator) onTimeTick(remaining int) {
	o.mu.Lock()
	if o.session != nil {
		o.session.TimeRemainingSeconds = remaining
	}
	o.mu.Unlock()
	o.emit(&TimeTickEvent{RemainingSeconds: remaining})
}

func (o *Orchestrator) onTimeExpired() {
	o.complete("time_expired")
}

func (o *Orchestrator) onSpeechStart() {
	o.emit(&SpeechStartedEvent{})
}

// onViolation is the integrity monitor's violation callback.
func (o *Orchestrator) onViolation(ev ViolationEvent) {
	o.mu.Lock()
	if o.session != nil {
		o.session.ViolationCount = o.violationBase + o.integrity.Count()
	}
	o.mu.Unlock()
	o.emit(&IntegrityViolationEvent{Kind: ev.Kind, ViolationCount: o.ViolationCount()})
}

// onIntegrityPause is invoked for every integrity signal, violation or not.
func (o *Orchestrator) onIntegrityPause(kind ViolationKind) {
	o.pauseSession(kind)
}

func (o *Orchestrator) pauseSession(kind ViolationKind) {
	if o.ending.Load() {
		return
	}

	o.mu.Lock()
	if o.paused {
		o.mu.Unlock()
		return
	}
	st := o.stage
	if st == StageLoading || st == StageReady || st == StageCompleted {
		o.mu.Unlock()
		return
	}
	o.paused = true
	o.pausedAt = time.Now()
	o.pauseKind = kind
	o.mu.Unlock()

	o.countdown.Pause()
	o.answers.Pause()
	o.stopTranscriber()
	if o.narrator != nil {
		o.narrator.Pause()
	}
	o.saveSnapshot()
	o.emit(&SessionPausedEvent{Kind: kind})
}

func (o *Orchestrator) currentQuestion() *Question {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session == nil {
		return nil
	}
	return o.session.CurrentQuestion()
}

func (o *Orchestrator) candidateProfile() CandidateProfile {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.profile
}

// emit sends an event to the events channel.
func (o *Orchestrator) emit(event Event) {
	if o.closed.Load() {
		return
	}
	select {
	case o.events <- event:
	case <-o.done:
	default:
		// Channel full, drop event
	}
}

// debug logs a debug message if debug mode is enabled.
func (o *Orchestrator) debug(category, message string) {
	if o.debugEnabled {
		o.logger.Debug(message, "category", category)
		o.emit(&DebugEvent{Category: category, Message: message})
	}
}
