// Package gemini runs try-on generation on Gemini and exposes it through
// the same job handle as hosted apps, so the poller treats both alike.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/raushankrgupta/virtual-tryon/inference"
	"github.com/raushankrgupta/virtual-tryon/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	DefaultModel             = "gemini-3-pro-image-preview"
	DefaultHeartbeatInterval = 5 * time.Second
)

const tryOnPrompt = `
Dress the person in the first image in the garment shown in the second image.
Keep the person's face, body shape, pose and background unchanged.
Show the garment with its real colour, texture and fit.
Return only the edited image.
`

// Connector creates Gemini clients. Generated images are stored in Store
// and reported by presigned URL.
type Connector struct {
	APIKey            string
	Model             string
	Store             storage.ObjectStore
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewConnector creates a Gemini connector.
func NewConnector(apiKey, model string, store storage.ObjectStore, logger *zap.Logger) *Connector {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		APIKey:            apiKey,
		Model:             model,
		Store:             store,
		HeartbeatInterval: DefaultHeartbeatInterval,
		Logger:            logger.Named("gemini"),
	}
}

// Connect creates a Gemini client. space is only logged: the model is
// fixed by configuration.
func (c *Connector) Connect(ctx context.Context, space string) (inference.Client, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	if c.Store == nil {
		return nil, fmt.Errorf("gemini backend needs an object store for results")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.Logger.Info("connected to gemini", zap.String("model", c.Model), zap.String("space", space))
	return &Client{
		generate:  modelGenerator(client, c.Model),
		close:     client.Close,
		store:     c.Store,
		heartbeat: c.HeartbeatInterval,
		logger:    c.Logger,
	}, nil
}

// generateFunc produces the try-on image from the subject and garment.
type generateFunc func(ctx context.Context, subject, garment inference.Blob) ([]byte, string, error)

// Client submits generation jobs.
type Client struct {
	generate  generateFunc
	close     func() error
	store     storage.ObjectStore
	heartbeat time.Duration
	logger    *zap.Logger
}

// Submit starts generation in the background. The first two arguments
// must be the subject and garment blobs; remaining arguments are opaque
// parameters of the hosted app and are ignored here.
func (c *Client) Submit(ctx context.Context, endpoint string, args []any) (inference.Job, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("expected subject and garment images, got %d arguments", len(args))
	}
	subject, err := blobArg(args[0])
	if err != nil {
		return nil, fmt.Errorf("argument 0: %w", err)
	}
	garment, err := blobArg(args[1])
	if err != nil {
		return nil, fmt.Errorf("argument 1: %w", err)
	}

	// Generation outlives the submit call; the job owns its lifetime.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
	j := &job{
		done:      make(chan struct{}),
		cancel:    cancel,
		heartbeat: c.heartbeat,
	}
	go func() {
		defer close(j.done)
		defer cancel()
		if c.close != nil {
			defer c.close()
		}
		j.url, j.err = c.run(jobCtx, subject, garment)
	}()

	c.logger.Info("generation started", zap.String("endpoint", endpoint))
	return j, nil
}

func (c *Client) run(ctx context.Context, subject, garment inference.Blob) (string, error) {
	data, contentType, err := c.generate(ctx, subject, garment)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("results/gemini/%s%s", uuid.NewString(), extension(contentType))
	if _, err := c.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("failed to store generated image: %w", err)
	}
	return c.store.PresignGet(ctx, key, storage.DefaultPresignExpiry)
}

func modelGenerator(client *genai.Client, modelName string) generateFunc {
	model := client.GenerativeModel(modelName)
	return func(ctx context.Context, subject, garment inference.Blob) ([]byte, string, error) {
		resp, err := model.GenerateContent(ctx,
			genai.Text(tryOnPrompt),
			genai.Blob{MIMEType: mimeType(subject), Data: subject.Data},
			genai.Blob{MIMEType: mimeType(garment), Data: garment.Data},
		)
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate content: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return nil, "", fmt.Errorf("no content generated")
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if blob, ok := part.(genai.Blob); ok && strings.HasPrefix(blob.MIMEType, "image/") {
				return blob.Data, blob.MIMEType, nil
			}
		}
		return nil, "", fmt.Errorf("model returned no image")
	}
}

type job struct {
	done      chan struct{}
	cancel    context.CancelFunc
	heartbeat time.Duration

	url      string
	err      error
	reported bool
}

// Next waits up to one heartbeat interval for the generation result.
func (j *job) Next(ctx context.Context) (inference.Increment, error) {
	if j.reported {
		return inference.Increment{}, io.EOF
	}

	timer := time.NewTimer(j.heartbeat)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return inference.Increment{}, ctx.Err()
	case <-timer.C:
		return inference.NewIncrement("generating", "Generating try-on image")
	case <-j.done:
		j.reported = true
		if j.err != nil {
			return inference.Increment{}, j.err
		}
		return inference.NewIncrement("complete", map[string]string{"url": j.url})
	}
}

// Close abandons generation if it is still running.
func (j *job) Close() error {
	j.cancel()
	return nil
}

func blobArg(arg any) (inference.Blob, error) {
	switch v := arg.(type) {
	case inference.Blob:
		return v, nil
	case *inference.Blob:
		return *v, nil
	}
	return inference.Blob{}, fmt.Errorf("expected image, got %T", arg)
}

func mimeType(b inference.Blob) string {
	if b.ContentType != "" {
		return b.ContentType
	}
	return http.DetectContentType(b.Data)
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ".jpg"
}
