package workflow

import (
	"context"
	"fmt"

	"github.com/raushankrgupta/virtual-tryon/inference"
	"github.com/raushankrgupta/virtual-tryon/models"
	"go.uber.org/zap"
)

const (
	DefaultSpace    = "Kwai-Kolors/Kolors-Virtual-Try-On"
	DefaultEndpoint = "/tryon"

	// Trailing positional arguments of the try-on endpoint. Their meaning
	// is not documented by the hosted app; they are passed through as-is.
	DefaultIntParam  = 0
	DefaultBoolParam = true
)

const (
	MsgConnecting = "Connecting to Gradio client..."
	MsgSubmitting = "Submitting job..."
)

// Resolver turns a local reference into the bytes to upload.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (inference.Blob, error)
}

// Submitter connects to the inference service and submits one job.
type Submitter struct {
	Connector inference.Connector
	Resolver  Resolver
	Space     string
	Endpoint  string
	IntParam  int
	BoolParam bool
	Logger    *zap.Logger
}

// NewSubmitter creates a Submitter for the default space and endpoint.
func NewSubmitter(connector inference.Connector, resolver Resolver, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		Connector: connector,
		Resolver:  resolver,
		Space:     DefaultSpace,
		Endpoint:  DefaultEndpoint,
		IntParam:  DefaultIntParam,
		BoolParam: DefaultBoolParam,
		Logger:    logger.Named("submitter"),
	}
}

// Submit uploads both images and returns the job handle. onStatus, when
// set, receives the status text of each step.
func (s *Submitter) Submit(ctx context.Context, runID string, subject, garment *models.Selection, onStatus func(string)) (inference.Job, error) {
	if subject == nil || garment == nil {
		return nil, newError(KindValidation, "workflow.submit", runID, ErrMissingSelection)
	}
	if onStatus == nil {
		onStatus = func(string) {}
	}
	logger := s.Logger.With(zap.String("run_id", runID))

	onStatus(MsgConnecting)
	client, err := s.Connector.Connect(ctx, s.Space)
	if err != nil {
		return nil, newError(KindConnection, "workflow.connect", runID, err)
	}
	logger.Info("Connected to Gradio client", zap.String("space", s.Space))

	onStatus(MsgSubmitting)
	subjectBlob, err := s.Resolver.Resolve(ctx, subject.Reference)
	if err != nil {
		return nil, newError(KindSubmission, "workflow.resolve_subject", runID, err)
	}
	garmentBlob, err := s.Resolver.Resolve(ctx, garment.Reference)
	if err != nil {
		return nil, newError(KindSubmission, "workflow.resolve_garment", runID, err)
	}

	job, err := client.Submit(ctx, s.Endpoint, []any{subjectBlob, garmentBlob, s.IntParam, s.BoolParam})
	if err != nil {
		return nil, newError(KindSubmission, "workflow.submit", runID, err)
	}
	if job == nil {
		return nil, newError(KindSubmission, "workflow.submit", runID, ErrInvalidJob)
	}
	logger.Info("Job submitted",
		zap.String("endpoint", s.Endpoint),
		zap.Int("subject_bytes", len(subjectBlob.Data)),
		zap.Int("garment_bytes", len(garmentBlob.Data)),
	)
	return job, nil
}

func (s *Submitter) String() string {
	return fmt.Sprintf("%s%s", s.Space, s.Endpoint)
}
