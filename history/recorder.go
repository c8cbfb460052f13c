package history

import (
	"context"
	"net/http"
	"time"

	"github.com/raushankrgupta/virtual-tryon/models"
	"github.com/raushankrgupta/virtual-tryon/storage"
	"github.com/raushankrgupta/virtual-tryon/utils"
	"github.com/raushankrgupta/virtual-tryon/workflow"
	"go.uber.org/zap"
)

// Saver persists try-on records.
type Saver interface {
	Save(ctx context.Context, t *models.TryOn) error
}

// Recorder mirrors result images into the object store and saves a
// record of every run.
type Recorder struct {
	Saver      Saver
	Store      storage.ObjectStore
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewRecorder creates a Recorder. saver or store may be nil to skip
// persistence or mirroring.
func NewRecorder(saver Saver, store storage.ObjectStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		Saver:      saver,
		Store:      store,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     logger.Named("history"),
	}
}

// Record implements workflow.Recorder.
func (r *Recorder) Record(ctx context.Context, outcome workflow.Outcome) error {
	logger := utils.WithOperation(r.Logger, "history.record", outcome.RunID)
	record := Build(outcome)

	if outcome.ResultURL != "" && r.Store != nil {
		key, err := utils.DownloadToStore(ctx, r.HTTPClient, r.Store, outcome.ResultURL, "results/"+outcome.RunID)
		if err != nil {
			// The remote URL stays usable for a while; keep the record.
			logger.Warn("Failed to mirror result", zap.String("url", outcome.ResultURL), zap.Error(err))
		} else {
			record.ResultKey = key
			logger.Info("Result mirrored", zap.String("key", key))
		}
	}

	if r.Saver == nil {
		return nil
	}
	return r.Saver.Save(ctx, &record)
}

// Build converts an outcome into its history record.
func Build(outcome workflow.Outcome) models.TryOn {
	record := models.TryOn{
		RunID:            outcome.RunID,
		UserID:           outcome.UserID,
		SubjectReference: outcome.Subject.Reference,
		GarmentReference: outcome.Garment.Reference,
		ResultURL:        outcome.ResultURL,
		Status:           outcome.Status(),
		Attempts:         outcome.Attempts,
		DurationMillis:   outcome.Duration.Milliseconds(),
		CreatedAt:        time.Now(),
	}
	if outcome.Err != nil {
		record.Error = workflow.Message(outcome.Err)
	}
	return record
}

// FailureNotifier emails the operator about failed runs.
type FailureNotifier struct {
	Mailer        *utils.Mailer
	OperatorEmail string
}

// Record implements workflow.Recorder. Successful and empty runs are
// ignored.
func (n *FailureNotifier) Record(ctx context.Context, outcome workflow.Outcome) error {
	if outcome.Err == nil || n.Mailer == nil || n.OperatorEmail == "" {
		return nil
	}
	return n.Mailer.SendFailureReport(ctx, n.OperatorEmail, utils.FailureReport{
		RunID:   outcome.RunID,
		UserID:  outcome.UserID,
		Subject: outcome.Subject.Reference,
		Garment: outcome.Garment.Reference,
		Error:   workflow.Message(outcome.Err),
	})
}
