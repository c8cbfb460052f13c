package workflow

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/raushankrgupta/virtual-tryon/inference"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts  = 30
	DefaultPollInterval = 2000 * time.Millisecond
	MsgInProgress       = "In progress"
)

// Poller pulls increments from a job handle until a result appears, the
// job completes or the attempt budget runs out. Single fetch errors are
// not retried.
type Poller struct {
	MaxAttempts int
	Interval    time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	Logger      *zap.Logger
}

// NewPoller creates a Poller with the default budget and interval.
func NewPoller(logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultPollInterval,
		Sleep:       sleepContext,
		Logger:      logger.Named("poller"),
	}
}

// PollResult describes how polling ended.
type PollResult struct {
	URL      string
	Attempts int
	// Completed is true when the job signalled completion without a
	// result image.
	Completed bool
}

// Poll consumes job and closes it on every exit path. onUpdate, when
// set, is called after each fetch with the attempt number and the status
// text derived from the increment ("" when the increment had no data).
func (p *Poller) Poll(ctx context.Context, runID string, job inference.Job, onUpdate func(attempt int, msg string)) (PollResult, error) {
	defer job.Close()
	if onUpdate == nil {
		onUpdate = func(int, string) {}
	}
	logger := p.Logger.With(zap.String("run_id", runID))

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		inc, err := job.Next(ctx)
		if errors.Is(err, io.EOF) {
			logger.Info("Job completed", zap.Int("attempt", attempt))
			onUpdate(attempt, "")
			return PollResult{Attempts: attempt, Completed: true}, nil
		}
		if err != nil {
			return PollResult{Attempts: attempt}, newError(KindPoll, "workflow.poll", runID, err)
		}

		logger.Debug("Iterator value", zap.Int("attempt", attempt), zap.String("type", inc.Type), zap.Int("items", len(inc.Data)))

		if inc.HasData() {
			text := inc.PrimaryText()
			if text == "" {
				text = MsgInProgress
			}
			onUpdate(attempt, "Processing: "+text)

			if url, ok := inc.ResultURL(); ok {
				logger.Info("Received result", zap.Int("attempt", attempt), zap.String("url", url))
				return PollResult{URL: url, Attempts: attempt}, nil
			}
		} else {
			onUpdate(attempt, "")
		}

		if attempt == p.MaxAttempts {
			break
		}
		if err := p.Sleep(ctx, p.Interval); err != nil {
			return PollResult{Attempts: attempt}, newError(KindPoll, "workflow.poll", runID, err)
		}
	}

	return PollResult{Attempts: p.MaxAttempts}, newError(KindPollTimeout, "workflow.poll", runID, ErrPollTimeout)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
