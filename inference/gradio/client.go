// Package gradio talks to models hosted as Gradio apps (for example
// Hugging Face Spaces) through the queue-backed /call API.
package gradio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/raushankrgupta/virtual-tryon/inference"
	"go.uber.org/zap"
)

const (
	DefaultHubURL  = "https://huggingface.co"
	connectTimeout = 30 * time.Second
)

// Connector resolves a space name to its app root and verifies the app
// is reachable.
type Connector struct {
	HTTPClient *http.Client
	HubURL     string
	Token      string
	Logger     *zap.Logger
}

// NewConnector creates a Connector. token may be empty for public spaces.
func NewConnector(hubURL, token string, logger *zap.Logger) *Connector {
	if hubURL == "" {
		hubURL = DefaultHubURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		// No client-wide timeout: result streams stay open for the whole job.
		HTTPClient: &http.Client{},
		HubURL:     strings.TrimRight(hubURL, "/"),
		Token:      token,
		Logger:     logger.Named("gradio"),
	}
}

// Client is a connected Gradio app
type Client struct {
	root      string
	apiPrefix string
	version   string
	http      *http.Client
	token     string
	logger    *zap.Logger
}

type appConfig struct {
	Version   string `json:"version"`
	APIPrefix string `json:"api_prefix"`
}

// Connect resolves space (either "owner/name" or an absolute app URL)
// and loads the app config.
func (c *Connector) Connect(ctx context.Context, space string) (inference.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	root, err := c.resolveRoot(ctx, space)
	if err != nil {
		return nil, err
	}

	var cfg appConfig
	if err := c.getJSON(ctx, root+"/config", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load app config: %w", err)
	}

	c.Logger.Info("connected to gradio app",
		zap.String("space", space),
		zap.String("root", root),
		zap.String("version", cfg.Version),
	)

	return &Client{
		root:      root,
		apiPrefix: "/" + strings.Trim(cfg.APIPrefix, "/"),
		version:   cfg.Version,
		http:      c.HTTPClient,
		token:     c.Token,
		logger:    c.Logger,
	}, nil
}

func (c *Connector) resolveRoot(ctx context.Context, space string) (string, error) {
	if strings.HasPrefix(space, "http://") || strings.HasPrefix(space, "https://") {
		return strings.TrimRight(space, "/"), nil
	}
	if strings.Count(space, "/") != 1 {
		return "", fmt.Errorf("invalid space name %q", space)
	}

	var host struct {
		Subdomain string `json:"subdomain"`
		Host      string `json:"host"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/api/spaces/%s/host", c.HubURL, space), &host); err != nil {
		return "", fmt.Errorf("failed to resolve space %s: %w", space, err)
	}
	if host.Host == "" {
		return "", fmt.Errorf("space %s has no host", space)
	}
	return strings.TrimRight(host.Host, "/"), nil
}

func (c *Connector) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	setAuth(req, c.Token)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Submit uploads Blob arguments, queues the call and returns a handle on
// its result stream. endpoint is the API name, e.g. "/tryon".
func (c *Client) Submit(ctx context.Context, endpoint string, args []any) (inference.Job, error) {
	name := strings.Trim(endpoint, "/")
	if name == "" {
		return nil, fmt.Errorf("empty endpoint")
	}

	payload := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case inference.Blob:
			fd, err := c.upload(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			payload[i] = fd
		case *inference.Blob:
			fd, err := c.upload(ctx, *v)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			payload[i] = fd
		default:
			payload[i] = v
		}
	}

	body, err := json.Marshal(map[string]any{"data": payload})
	if err != nil {
		return nil, err
	}

	callURL := c.apiURL("/call/" + name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var queued struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		return nil, fmt.Errorf("failed to decode call response: %w", err)
	}
	if queued.EventID == "" {
		return nil, fmt.Errorf("call response has no event_id")
	}

	c.logger.Info("job queued", zap.String("endpoint", endpoint), zap.String("event_id", queued.EventID))

	return &job{
		client:    c,
		streamURL: callURL + "/" + url.PathEscape(queued.EventID),
		eventID:   queued.EventID,
	}, nil
}

// fileData is the wire form of an uploaded file argument or output.
type fileData struct {
	Path     string            `json:"path"`
	URL      string            `json:"url,omitempty"`
	OrigName string            `json:"orig_name,omitempty"`
	MimeType string            `json:"mime_type,omitempty"`
	Size     int               `json:"size,omitempty"`
	Meta     map[string]string `json:"meta"`
}

func (c *Client) upload(ctx context.Context, blob inference.Blob) (fileData, error) {
	name := blob.Name
	if name == "" {
		name = "image"
	}
	contentType := blob.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(blob.Data)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fileData{}, err
	}
	if _, err := part.Write(blob.Data); err != nil {
		return fileData{}, err
	}
	if err := writer.Close(); err != nil {
		return fileData{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("/upload"), &buf)
	if err != nil {
		return fileData{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	setAuth(req, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fileData{}, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fileData{}, fmt.Errorf("upload failed: %w", statusError(resp))
	}

	var paths []string
	if err := json.NewDecoder(resp.Body).Decode(&paths); err != nil {
		return fileData{}, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if len(paths) == 0 {
		return fileData{}, fmt.Errorf("upload returned no paths")
	}

	return fileData{
		Path:     paths[0],
		OrigName: name,
		MimeType: contentType,
		Size:     len(blob.Data),
		Meta:     map[string]string{"_type": "gradio.FileData"},
	}, nil
}

func (c *Client) apiURL(path string) string {
	if c.apiPrefix == "/" {
		return c.root + path
	}
	return c.root + c.apiPrefix + path
}

// fileURL is where the app serves a file it produced.
func (c *Client) fileURL(path string) string {
	return c.apiURL("/file=" + path)
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("bad status: %s", resp.Status)
	}
	return fmt.Errorf("bad status: %s: %s", resp.Status, msg)
}
