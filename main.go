package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raushankrgupta/virtual-tryon/api"
	"github.com/raushankrgupta/virtual-tryon/bootstrap"
	"github.com/raushankrgupta/virtual-tryon/config"
	"github.com/raushankrgupta/virtual-tryon/history"
	"github.com/raushankrgupta/virtual-tryon/storage"
	"github.com/raushankrgupta/virtual-tryon/stream"
	"github.com/raushankrgupta/virtual-tryon/utils"
	"github.com/raushankrgupta/virtual-tryon/workflow"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		// The logger is not configured yet.
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		os.Stderr.WriteString("failed to initialise logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := bootstrap.ObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	connector, err := bootstrap.Connector(cfg, store, logger)
	if err != nil {
		return err
	}

	recorder := history.NewRecorder(nil, store, logger)
	recorders := []workflow.Recorder{recorder}
	if mailer := utils.NewMailer(cfg.SendGridAPIKey, logger); mailer != nil && cfg.OperatorEmail != "" {
		recorders = append(recorders, &history.FailureNotifier{Mailer: mailer, OperatorEmail: cfg.OperatorEmail})
	}

	sessions := api.NewSessions(func(userID string) *workflow.Screen {
		submitter, poller := bootstrap.Workflow(cfg, connector, store, logger)
		return workflow.NewScreen(userID, submitter, poller, logger, recorders...)
	})

	// In-flight runs finish during shutdown instead of being cancelled.
	server := api.NewServer(context.WithoutCancel(ctx), sessions, store, logger)
	server.Auth = api.NewAuth(cfg.AuthEnabled, cfg.JWTSecret, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	server.ShortLinks = utils.ResolveShortenedURL

	if cfg.MongoURI != "" {
		client, err := utils.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		logger.Info("Connected to MongoDB", zap.String("db", cfg.DBName))

		tryOns := history.NewStore(client, cfg.DBName)
		recorder.Saver = tryOns
		server.Gallery = tryOns
		server.Users = history.NewUsers(client, cfg.DBName)
		server.Feedback = history.NewFeedbacks(client, cfg.DBName)
	} else {
		logger.Warn("MONGO_URI is not set; history and gallery are disabled")
	}

	if cfg.StreamEnabled {
		viewer, err := startStream(ctx, cfg, logger)
		if err != nil {
			return err
		}
		server.Stream = viewer
	}

	mux := server.Routes()
	if local, ok := store.(*storage.LocalStore); ok {
		mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(local.Dir()))))
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           utils.LatencyMiddleware(logger, utils.CORSMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("Server starting",
		zap.String("port", cfg.Port),
		zap.String("backend", cfg.Backend),
		zap.String("object_store", cfg.ObjectStore),
	)
	return serve(ctx, httpServer, server, logger)
}

// startStream opens the stream viewer in the background. The browser is
// closed when ctx ends.
func startStream(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stream.Viewer, error) {
	browser, err := bootstrap.Browser(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	viewer := stream.NewViewer(browser, cfg.StreamURL, logger)
	go func() {
		defer browser.Close()
		if err := viewer.Run(ctx); err != nil {
			logger.Error("Stream viewer stopped", zap.Error(err))
		}
	}()
	return viewer, nil
}

// serve runs httpServer until ctx is cancelled, then drains requests and
// background runs.
func serve(ctx context.Context, httpServer *http.Server, server *api.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := server.Wait(shutdownCtx); err != nil {
		logger.Warn("Background runs still active at shutdown", zap.Error(err))
	}
	return <-errCh
}
