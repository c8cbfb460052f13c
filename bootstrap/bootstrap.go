// Package bootstrap builds the service components from configuration.
// The HTTP server and the CLI share it.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/raushankrgupta/virtual-tryon/config"
	"github.com/raushankrgupta/virtual-tryon/inference"
	"github.com/raushankrgupta/virtual-tryon/inference/gemini"
	"github.com/raushankrgupta/virtual-tryon/inference/gradio"
	"github.com/raushankrgupta/virtual-tryon/picker"
	"github.com/raushankrgupta/virtual-tryon/storage"
	"github.com/raushankrgupta/virtual-tryon/stream"
	"github.com/raushankrgupta/virtual-tryon/workflow"
	"go.uber.org/zap"
)

// ObjectStore opens the store selected by OBJECT_STORE.
func ObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.ObjectStore {
	case "s3":
		return storage.NewS3Store(ctx, cfg.AWSRegion, cfg.AWSBucketName, cfg.S3Prefix)
	case "minio":
		return storage.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	case "local", "":
		return storage.NewLocalStore(cfg.LocalStoreDir, strings.TrimRight(cfg.PublicURL, "/")+"/files")
	}
	return nil, fmt.Errorf("unknown OBJECT_STORE %q", cfg.ObjectStore)
}

// Connector returns the inference backend selected by TRYON_BACKEND.
func Connector(cfg *config.Config, store storage.ObjectStore, logger *zap.Logger) (inference.Connector, error) {
	switch cfg.Backend {
	case "gemini":
		return gemini.NewConnector(cfg.GeminiAPIKey, cfg.GeminiModel, store, logger), nil
	case "gradio", "":
		return gradio.NewConnector(cfg.HFAPIURL, cfg.HFToken, logger), nil
	}
	return nil, fmt.Errorf("unknown TRYON_BACKEND %q", cfg.Backend)
}

// Workflow returns the submitter and poller configured for one screen.
func Workflow(cfg *config.Config, connector inference.Connector, store storage.ObjectStore, logger *zap.Logger) (*workflow.Submitter, *workflow.Poller) {
	submitter := workflow.NewSubmitter(connector, picker.NewResolver(store), logger)
	if cfg.GradioSpace != "" {
		submitter.Space = cfg.GradioSpace
	}
	if cfg.GradioEndpoint != "" {
		submitter.Endpoint = cfg.GradioEndpoint
	}
	submitter.IntParam = cfg.IntParam
	submitter.BoolParam = cfg.BoolParam

	poller := workflow.NewPoller(logger)
	poller.MaxAttempts = cfg.MaxAttempts
	poller.Interval = cfg.PollInterval
	return submitter, poller
}

// Browser starts the headless browser selected by STREAM_DRIVER.
func Browser(ctx context.Context, cfg *config.Config, logger *zap.Logger) (stream.Browser, error) {
	opts := stream.DefaultOptions()
	if cfg.StreamUserAgent != "" {
		opts.UserAgent = cfg.StreamUserAgent
	}
	switch cfg.StreamDriver {
	case "selenium":
		return stream.NewSeleniumBrowser(stream.SeleniumConfig{DriverPath: cfg.ChromeDriverPath}, opts, logger)
	case "chromedp", "":
		return stream.NewChromeBrowser(ctx, opts, logger)
	}
	return nil, fmt.Errorf("unknown STREAM_DRIVER %q", cfg.StreamDriver)
}
