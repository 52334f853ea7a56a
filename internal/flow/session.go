// Package flow implements the NamePlay dialogue engine: a form step, a paced
// chat that walks the question catalog, and the hand-off to name generation.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/NamePlay/internal/models"
)

// ConfirmationText is appended once the generated result is ready.
const ConfirmationText = "결과가 나왔어요! 🎉"

// DefaultGenerateTimeout bounds a single generation call.
const DefaultGenerateTimeout = 30 * time.Second

var (
	ErrNotInForm        = errors.New("session is not in the form step")
	ErrFormIncomplete   = errors.New("age and gender are required")
	ErrNotInChat        = errors.New("session is not in the chat step")
	ErrBusy             = errors.New("session is waiting for a scheduled transition")
	ErrNotAwaitingInput = errors.New("session is not awaiting input")
	ErrEmptyInput       = models.ErrEmptyInput
	ErrNotInResult      = errors.New("session has no result yet")
	ErrClosed           = errors.New("session is closed")
)

// Generator turns a completed answer record into a result. Implementations must
// always return a usable result; failures are expected to degrade to a fallback.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) models.GenerationResult
}

// FeedbackSink receives ratings left on results.
type FeedbackSink interface {
	AddFeedback(fb models.Feedback) error
}

// Delays holds the pacing of a session.
type Delays struct {
	Greeting time.Duration // greeting -> first question
	Typing   time.Duration // user answer -> next question
	Confirm  time.Duration // result ready -> confirmation message
	Result   time.Duration // confirmation message -> result step
}

// DefaultDelays returns the production pacing.
func DefaultDelays() Delays {
	return Delays{
		Greeting: time.Second,
		Typing:   time.Second,
		Confirm:  time.Second,
		Result:   time.Second,
	}
}

// EventType identifies what changed in a session.
type EventType string

const (
	EventMessage EventType = "message"
	EventTyping  EventType = "typing"
	EventState   EventType = "state"
	EventResult  EventType = "result"
)

// Event is delivered to the session observer after every change.
type Event struct {
	Type      EventType
	SessionID string
	Message   models.Message
	Typing    bool
	State     models.DialogueState
	Result    models.GenerationResult
}

// Observer receives session events in the order they happened. It must not call back into the session.
type Observer func(Event)

// SessionOpts holds configuration options for a Session.
type SessionOpts struct {
	Catalog         *Catalog
	Timer           Timer
	Delays          *Delays
	Observer        Observer
	Feedback        FeedbackSink
	GenerateTimeout time.Duration
}

// SessionOption defines a configuration option for a Session.
type SessionOption func(*SessionOpts)

// WithCatalog overrides the question catalog.
func WithCatalog(c Catalog) SessionOption {
	return func(o *SessionOpts) { o.Catalog = &c }
}

// WithTimer overrides the scheduler used for pacing.
func WithTimer(t Timer) SessionOption {
	return func(o *SessionOpts) { o.Timer = t }
}

// WithDelays overrides the pacing.
func WithDelays(d Delays) SessionOption {
	return func(o *SessionOpts) { o.Delays = &d }
}

// WithObserver registers a callback for session events.
func WithObserver(fn Observer) SessionOption {
	return func(o *SessionOpts) { o.Observer = fn }
}

// WithFeedbackSink sets where ratings are sent.
func WithFeedbackSink(sink FeedbackSink) SessionOption {
	return func(o *SessionOpts) { o.Feedback = sink }
}

// WithGenerateTimeout bounds the generation call.
func WithGenerateTimeout(d time.Duration) SessionOption {
	return func(o *SessionOpts) { o.GenerateTimeout = d }
}

// Snapshot is a copy of the session state for rendering.
type Snapshot struct {
	ID            string                   `json:"id"`
	State         models.DialogueState     `json:"state"`
	Messages      []models.Message         `json:"messages"`
	Typing        bool                     `json:"typing"`
	AwaitingInput bool                     `json:"awaiting_input"`
	QuestionIndex int                      `json:"question_index"`
	Answers       models.AnswerRecord      `json:"answers"`
	Result        *models.GenerationResult `json:"result,omitempty"`
}

// Session is one dialogue run from the form step to the result step.
// All mutation happens under mu; delayed steps carry the generation token they
// were scheduled under and are dropped if the session was reset since.
type Session struct {
	id              string
	catalog         Catalog
	timer           Timer
	generator       Generator
	delays          Delays
	observer        Observer
	feedback        FeedbackSink
	generateTimeout time.Duration

	mu            sync.Mutex
	emitMu        sync.Mutex
	events        []Event
	state         models.DialogueState
	answers       models.AnswerRecord
	messages      []models.Message
	nextMessageID int64
	questionIndex int
	awaiting      bool
	typing        bool
	generating    bool
	pendingTimer  string
	result        *models.GenerationResult
	generation    uint64
	cancelGen     context.CancelFunc
	closed        bool
}

// NewSession creates a session in the form step.
func NewSession(id string, generator Generator, opts ...SessionOption) *Session {
	var cfg SessionOpts
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		id:              id,
		generator:       generator,
		observer:        cfg.Observer,
		feedback:        cfg.Feedback,
		generateTimeout: cfg.GenerateTimeout,
		state:           models.StateForm,
		answers:         models.NewAnswerRecord(),
	}
	if cfg.Catalog != nil {
		s.catalog = *cfg.Catalog
	} else {
		s.catalog = DefaultCatalog()
	}
	if cfg.Timer != nil {
		s.timer = cfg.Timer
	} else {
		s.timer = NewSimpleTimer()
	}
	if cfg.Delays != nil {
		s.delays = *cfg.Delays
	} else {
		s.delays = DefaultDelays()
	}
	if s.generateTimeout <= 0 {
		s.generateTimeout = DefaultGenerateTimeout
	}

	slog.Debug("Session created", "id", id, "questions", s.catalog.Len())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SubmitForm leaves the form step once age and gender are both present.
// The greeting is shown at once and the first question after the greeting delay.
func (s *Session) SubmitForm(age, gender string) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state != models.StateForm {
		s.mu.Unlock()
		return ErrNotInForm
	}
	age, gender = strings.TrimSpace(age), strings.TrimSpace(gender)
	if age == "" || gender == "" {
		s.mu.Unlock()
		slog.Debug("Session.SubmitForm: guard failed", "id", s.id, "age_set", age != "", "gender_set", gender != "")
		return ErrFormIncomplete
	}

	s.answers.Age = age
	s.answers.Gender = gender
	s.setStateLocked(models.StateChat)
	s.questionIndex = 0
	s.appendMessageLocked(models.SenderSystem, s.catalog.Greeting().Prompt, models.MessageKindText)
	s.setTypingLocked(true)
	s.scheduleLocked(s.delays.Greeting, s.revealNextLocked)

	slog.Info("Session.SubmitForm: chat started", "id", s.id)
	s.unlockAndEmit()
	return nil
}

// Submit answers the current question. Input is cut to models.MaxAnswerLength
// characters before anything else; blank input is rejected.
func (s *Session) Submit(input string) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state != models.StateChat {
		s.mu.Unlock()
		return ErrNotInChat
	}
	if s.busyLocked() {
		s.mu.Unlock()
		slog.Debug("Session.Submit: ignored while busy", "id", s.id)
		return ErrBusy
	}
	if !s.awaiting {
		s.mu.Unlock()
		return ErrNotAwaitingInput
	}

	captured := models.TruncateAnswer(input)
	if strings.TrimSpace(captured) == "" {
		s.mu.Unlock()
		return ErrEmptyInput
	}

	q, _ := s.catalog.At(s.questionIndex)
	s.appendMessageLocked(models.SenderUser, captured, models.MessageKindText)
	s.answers.Answers[q.Field] = captured
	s.awaiting = false
	s.setTypingLocked(true)
	s.scheduleLocked(s.delays.Typing, s.revealNextLocked)

	slog.Debug("Session.Submit: answer captured", "id", s.id, "question", q.ID, "field", q.Field, "truncated", captured != input)
	s.unlockAndEmit()
	return nil
}

// Reset discards everything and returns the session to the form step.
// Steps scheduled before the reset become no-ops.
func (s *Session) Reset() {
	s.mu.Lock()
	s.invalidateLocked()
	s.answers = models.NewAnswerRecord()
	s.messages = nil
	s.questionIndex = 0
	s.awaiting = false
	s.result = nil
	s.setTypingLocked(false)
	s.setStateLocked(models.StateForm)
	slog.Info("Session.Reset: session reset", "id", s.id, "generation", s.generation)
	s.unlockAndEmit()
}

// Close cancels pending work. A closed session rejects further input.
func (s *Session) Close() {
	s.mu.Lock()
	s.invalidateLocked()
	s.closed = true
	s.mu.Unlock()
	slog.Debug("Session.Close: session closed", "id", s.id)
}

// Rate forwards a rating of the top result to the feedback sink and returns
// the acknowledgement text for it.
func (s *Session) Rate(r models.Rating) (string, error) {
	s.mu.Lock()
	if s.state != models.StateResult || s.result == nil {
		s.mu.Unlock()
		return "", ErrNotInResult
	}
	fb := models.Feedback{
		SessionID: s.id,
		Name:      s.result.TopName(),
		Rating:    r,
		CreatedAt: time.Now(),
	}
	s.mu.Unlock()

	if s.feedback != nil {
		if err := s.feedback.AddFeedback(fb); err != nil {
			slog.Error("Session.Rate: failed to record feedback", "id", s.id, "error", err)
			return "", fmt.Errorf("failed to record feedback: %w", err)
		}
	}
	slog.Info("Session.Rate: feedback recorded", "id", s.id, "name", fb.Name, "rating", r)
	return r.Acknowledgement(), nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]models.Message, len(s.messages))
	copy(msgs, s.messages)
	snap := Snapshot{
		ID:            s.id,
		State:         s.state,
		Messages:      msgs,
		Typing:        s.typing,
		AwaitingInput: s.awaiting,
		QuestionIndex: s.questionIndex,
		Answers:       s.answers.Clone(),
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

// State returns the current step.
func (s *Session) State() models.DialogueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// revealNextLocked runs when a typing delay elapses. It shows the next
// question, or hands the answers to the generator once the catalog is exhausted.
func (s *Session) revealNextLocked() func() {
	next := s.questionIndex + 1
	if q, ok := s.catalog.At(next); ok {
		s.questionIndex = next
		s.appendMessageLocked(models.SenderSystem, q.Prompt, models.MessageKindText)
		s.setTypingLocked(false)
		s.awaiting = true
		return nil
	}

	if !s.catalog.Complete(s.answers) {
		// Unreachable through Submit; kept so a broken catalog cannot produce a half-empty request.
		slog.Error("Session: catalog exhausted with missing answers", "id", s.id)
	}
	req := models.NewGenerationRequest(s.answers)
	ctx, cancel := context.WithTimeout(context.Background(), s.generateTimeout)
	s.cancelGen = cancel
	s.generating = true
	token := s.generation
	slog.Info("Session: all questions answered, generating result", "id", s.id)
	return func() { s.generate(ctx, cancel, token, req) }
}

func (s *Session) generate(ctx context.Context, cancel context.CancelFunc, token uint64, req models.GenerationRequest) {
	defer cancel()
	res := s.generator.Generate(ctx, req)

	s.mu.Lock()
	if token != s.generation {
		s.mu.Unlock()
		slog.Debug("Session: discarding result of a reset session", "id", s.id)
		return
	}
	s.generating = false
	s.cancelGen = nil
	s.result = &res
	s.events = append(s.events, Event{Type: EventResult, SessionID: s.id, Result: res})
	s.scheduleLocked(s.delays.Confirm, s.confirmLocked)
	s.unlockAndEmit()
}

func (s *Session) confirmLocked() func() {
	s.appendMessageLocked(models.SenderSystem, ConfirmationText, models.MessageKindResult)
	s.scheduleLocked(s.delays.Result, s.finishLocked)
	return nil
}

func (s *Session) finishLocked() func() {
	s.setTypingLocked(false)
	s.setStateLocked(models.StateResult)
	slog.Info("Session: result ready", "id", s.id, "top_name", s.result.TopName())
	return nil
}

// scheduleLocked arranges for step to run after delay under the current generation token.
func (s *Session) scheduleLocked(delay time.Duration, step func() func()) {
	token := s.generation
	id, err := s.timer.ScheduleAfter(delay, func() { s.runScheduled(token, step) })
	if err != nil {
		slog.Error("Session: failed to schedule step, running it now", "id", s.id, "error", err)
		go s.runScheduled(token, step)
		return
	}
	s.pendingTimer = id
}

func (s *Session) runScheduled(token uint64, step func() func()) {
	s.mu.Lock()
	if token != s.generation {
		s.mu.Unlock()
		slog.Debug("Session: dropping stale scheduled step", "id", s.id, "token", token)
		return
	}
	s.pendingTimer = ""
	after := step()
	s.unlockAndEmit()
	if after != nil {
		after()
	}
}

func (s *Session) invalidateLocked() {
	s.generation++
	if s.pendingTimer != "" {
		if err := s.timer.Cancel(s.pendingTimer); err != nil {
			slog.Warn("Session: failed to cancel pending timer", "id", s.id, "timer", s.pendingTimer, "error", err)
		}
		s.pendingTimer = ""
	}
	if s.cancelGen != nil {
		s.cancelGen()
		s.cancelGen = nil
	}
	s.generating = false
}

func (s *Session) usableLocked() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Session) busyLocked() bool {
	return s.pendingTimer != "" || s.generating
}

func (s *Session) appendMessageLocked(sender models.Sender, content string, kind models.MessageKind) {
	s.nextMessageID++
	msg := models.Message{
		ID:        s.nextMessageID,
		Sender:    sender,
		Content:   content,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, msg)
	s.events = append(s.events, Event{Type: EventMessage, SessionID: s.id, Message: msg})
}

func (s *Session) setTypingLocked(typing bool) {
	if s.typing == typing {
		return
	}
	s.typing = typing
	s.events = append(s.events, Event{Type: EventTyping, SessionID: s.id, Typing: typing})
}

func (s *Session) setStateLocked(state models.DialogueState) {
	if s.state == state {
		return
	}
	s.state = state
	s.events = append(s.events, Event{Type: EventState, SessionID: s.id, State: state})
}

// unlockAndEmit releases mu and delivers queued events. emitMu is taken before
// mu is released so observers see events in the order they were queued.
func (s *Session) unlockAndEmit() {
	events := s.events
	s.events = nil
	if s.observer == nil || len(events) == 0 {
		s.mu.Unlock()
		return
	}
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	for _, ev := range events {
		s.observer(ev)
	}
}
