package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raushankrgupta/virtual-tryon/models"
	"go.uber.org/zap"
)

// Outcome summarises a finished run for history and notification hooks.
type Outcome struct {
	RunID     string
	UserID    string
	Subject   models.Selection
	Garment   models.Selection
	ResultURL string
	Attempts  int
	Duration  time.Duration
	Err       error
}

// Status returns the history status of the outcome.
func (o Outcome) Status() string {
	switch {
	case o.Err != nil:
		return models.TryOnStatusFailed
	case o.ResultURL == "":
		return models.TryOnStatusEmpty
	}
	return models.TryOnStatusCompleted
}

// Recorder is notified after every run that reached the network.
type Recorder interface {
	Record(ctx context.Context, outcome Outcome) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, outcome Outcome) error

func (f RecorderFunc) Record(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

// Screen holds the state of one session and runs its try-on workflow.
// At most one job is active per screen.
type Screen struct {
	UserID    string
	Submitter *Submitter
	Poller    *Poller
	Recorders []Recorder
	// OnChange, when set before use, receives every new state.
	OnChange func(State)

	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu    sync.Mutex
	state State
}

// NewScreen creates an idle screen for userID.
func NewScreen(userID string, submitter *Submitter, poller *Poller, logger *zap.Logger, recorders ...Recorder) *Screen {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Screen{
		UserID:    userID,
		Submitter: submitter,
		Poller:    poller,
		Recorders: recorders,
		logger:    logger.With(zap.String("user_id", userID)),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// State returns a snapshot of the current state.
func (s *Screen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View renders the current state.
func (s *Screen) View() View {
	return Render(s.State())
}

// DismissAlert clears the pending alert.
func (s *Screen) DismissAlert() {
	s.update(State.DismissAlert)
}

// Picker is a source of image selections.
type Picker interface {
	Pick(ctx context.Context, role models.Role) (models.Selection, bool, error)
}

// Pick asks p for an image for role. A cancelled pick leaves the
// previous selection in place and reports false.
func (s *Screen) Pick(ctx context.Context, p Picker, role models.Role) (bool, error) {
	sel, ok, err := p.Pick(ctx, role)
	if err != nil {
		s.logger.Error("Image pick failed", zap.String("role", string(role)), zap.Error(err))
		return false, err
	}
	if !ok {
		s.logger.Info("Image pick cancelled", zap.String("role", string(role)))
		return false, nil
	}
	s.Select(sel)
	return true, nil
}

// Select stores an already picked image.
func (s *Screen) Select(sel models.Selection) {
	if sel.PickedAt.IsZero() {
		sel.PickedAt = s.now()
	}
	s.update(func(st State) State { return st.WithSelection(sel) })
	s.logger.Info("Image selected", zap.String("role", string(sel.Role)), zap.String("reference", sel.Reference))
}

type run struct {
	id        string
	startedAt time.Time
	subject   models.Selection
	garment   models.Selection
}

// SendToAPI runs one try-on job to completion. Every failure is alerted
// on the screen before it is returned.
func (s *Screen) SendToAPI(ctx context.Context) error {
	r, err := s.begin()
	if err != nil {
		return err
	}
	return s.execute(ctx, r)
}

// Launch validates and starts a job like SendToAPI but runs it in the
// background. The returned channel receives the job's error, or nil,
// once it finishes.
func (s *Screen) Launch(ctx context.Context) (string, <-chan error, error) {
	r, err := s.begin()
	if err != nil {
		return "", nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- s.execute(ctx, r)
	}()
	return r.id, done, nil
}

// begin checks the preconditions and moves the screen into loading.
func (s *Screen) begin() (run, error) {
	s.mu.Lock()
	r, err := s.beginLocked()
	st := s.state
	s.mu.Unlock()

	if !errors.Is(err, ErrBusy) {
		s.notify(st)
	}
	return r, err
}

// beginLocked requires s.mu.
func (s *Screen) beginLocked() (run, error) {
	if s.state.Loading {
		return run{}, ErrBusy
	}
	if !s.state.Ready() {
		s.state = s.state.WithAlert(ErrMissingSelection.Error())
		s.logger.Warn("Try-on requested without both images")
		return run{}, newError(KindValidation, "workflow.send", "", ErrMissingSelection)
	}
	r := run{
		id:        s.newID(),
		startedAt: s.now(),
		subject:   *s.state.Subject,
		garment:   *s.state.Garment,
	}
	s.state = s.state.Start(r.id, r.startedAt)
	return r, nil
}

func (s *Screen) execute(ctx context.Context, r run) error {
	logger := s.logger.With(zap.String("run_id", r.id))
	outcome := Outcome{RunID: r.id, UserID: s.UserID, Subject: r.subject, Garment: r.garment}
	defer func() {
		outcome.Duration = s.now().Sub(r.startedAt)
		logger.Info("Execution time", zap.Duration("duration", outcome.Duration), zap.String("status", outcome.Status()))
		s.record(ctx, logger, outcome)
	}()

	job, err := s.Submitter.Submit(ctx, r.id, &r.subject, &r.garment, func(msg string) {
		s.update(func(st State) State { return st.WithMessage(msg) })
	})
	if err != nil {
		outcome.Err = err
		logger.Error("Error calling API", zap.Error(err))
		s.update(func(st State) State { return st.Failed(fmt.Sprintf("Error calling API: %s", Message(err))) })
		return err
	}

	s.update(State.Polling)
	res, err := s.Poller.Poll(ctx, r.id, job, func(attempt int, msg string) {
		s.update(func(st State) State { return st.WithAttempt(attempt, msg) })
	})
	outcome.Attempts = res.Attempts
	if err != nil {
		outcome.Err = err
		logger.Error("Error getting result", zap.Error(err), zap.Int("attempts", res.Attempts))
		s.update(func(st State) State { return st.Failed(fmt.Sprintf("Error getting result: %s", Message(err))) })
		return err
	}

	outcome.ResultURL = res.URL
	if res.URL == "" {
		logger.Warn("Job completed without a result image", zap.Int("attempts", res.Attempts))
	}
	s.update(func(st State) State { return st.Done(res.URL) })
	return nil
}

func (s *Screen) update(fn func(State) State) {
	s.mu.Lock()
	s.state = fn(s.state)
	st := s.state
	s.mu.Unlock()
	s.notify(st)
}

func (s *Screen) notify(st State) {
	if s.OnChange != nil {
		s.OnChange(st)
	}
}

func (s *Screen) record(ctx context.Context, logger *zap.Logger, outcome Outcome) {
	// Hooks run after the caller's context may be gone.
	ctx = context.WithoutCancel(ctx)
	for _, r := range s.Recorders {
		if err := r.Record(ctx, outcome); err != nil {
			logger.Warn("Failed to record outcome", zap.Error(err))
		}
	}
}
