// Package api exposes the try-on workflow over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/raushankrgupta/virtual-tryon/history"
	"github.com/raushankrgupta/virtual-tryon/models"
	"github.com/raushankrgupta/virtual-tryon/storage"
	"github.com/raushankrgupta/virtual-tryon/stream"
	"github.com/raushankrgupta/virtual-tryon/workflow"
	"go.uber.org/zap"
)

// Gallery lists finished runs of a user.
type Gallery interface {
	List(ctx context.Context, userID string, page, limit int) (history.Page, error)
}

// UserStore keeps accounts created by Google sign-in.
type UserStore interface {
	Upsert(ctx context.Context, user models.User) (models.User, error)
	Get(ctx context.Context, id string) (models.User, error)
}

// FeedbackStore saves ratings of finished runs.
type FeedbackStore interface {
	Save(ctx context.Context, f *models.Feedback) error
}

// SnapshotSource reports what the stream viewer shows.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (stream.Snapshot, error)
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	Sessions *Sessions
	Store    storage.ObjectStore
	Gallery  Gallery
	Users    UserStore
	Feedback FeedbackStore
	Stream   SnapshotSource
	Auth     *Auth
	Logger   *zap.Logger

	// ShortLinks resolves shortened product URLs before they are fetched.
	ShortLinks func(ctx context.Context, url string) (string, error)

	// Runs started over HTTP outlive their request and use this context.
	background context.Context
	runs       sync.WaitGroup
}

// NewServer creates a Server. Runs started by its handlers are bound to
// background.
func NewServer(background context.Context, sessions *Sessions, store storage.ObjectStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Sessions:   sessions,
		Store:      store,
		Logger:     logger.Named("api"),
		background: background,
	}
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	protect := s.Auth.Middleware

	mux.Handle("POST /selections/{role}", protect(http.HandlerFunc(s.SelectionHandler)))
	mux.Handle("POST /try-on", protect(http.HandlerFunc(s.TryOnHandler)))
	mux.Handle("GET /status", protect(http.HandlerFunc(s.StatusHandler)))
	mux.Handle("POST /alert/dismiss", protect(http.HandlerFunc(s.DismissAlertHandler)))
	mux.Handle("GET /gallery", protect(http.HandlerFunc(s.GalleryHandler)))
	mux.Handle("GET /profile", protect(http.HandlerFunc(s.ProfileHandler)))
	mux.Handle("POST /feedback", protect(http.HandlerFunc(s.FeedbackHandler)))
	mux.HandleFunc("GET /stream/snapshot", s.StreamSnapshotHandler)
	mux.HandleFunc("GET /auth/google/login", s.GoogleLoginHandler)
	mux.HandleFunc("GET /auth/google/callback", s.GoogleCallbackHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Wait blocks until every background run has finished or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// statusFor maps a workflow error to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, workflow.ErrBusy) {
		return http.StatusConflict
	}
	switch workflow.KindOf(err) {
	case workflow.KindValidation:
		return http.StatusBadRequest
	case workflow.KindConnection, workflow.KindSubmission, workflow.KindPoll:
		return http.StatusBadGateway
	case workflow.KindPollTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
