package gradio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/raushankrgupta/virtual-tryon/inference"
	"go.uber.org/zap"
)

// Server-sent event names emitted on a /call result stream.
const (
	eventGenerating = "generating"
	eventComplete   = "complete"
	eventError      = "error"
	eventHeartbeat  = "heartbeat"
)

// RemoteError is an error event reported by the app.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "remote job failed"
	}
	return "remote job failed: " + e.Message
}

type job struct {
	client    *Client
	streamURL string
	eventID   string

	body     io.ReadCloser
	reader   *bufio.Reader
	finished bool
}

// Next blocks until the next event arrives on the result stream. The
// stream is opened lazily on the first call.
func (j *job) Next(ctx context.Context) (inference.Increment, error) {
	if j.finished {
		return inference.Increment{}, io.EOF
	}
	if j.reader == nil {
		if err := j.open(ctx); err != nil {
			return inference.Increment{}, err
		}
	}

	name, data, err := readEvent(j.reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// Stream ended without a complete event.
			j.finished = true
			return inference.Increment{}, io.EOF
		}
		return inference.Increment{}, fmt.Errorf("failed to read result stream: %w", err)
	}

	switch name {
	case eventHeartbeat:
		return inference.Increment{Type: eventHeartbeat}, nil
	case eventError:
		j.finished = true
		return inference.Increment{}, &RemoteError{Message: errorMessage(data)}
	case eventGenerating, eventComplete:
		values, err := j.decodeData(data)
		if err != nil {
			return inference.Increment{}, err
		}
		if name == eventComplete {
			j.finished = true
		}
		return inference.Increment{Type: name, Data: values}, nil
	default:
		j.client.logger.Debug("ignoring unknown event", zap.String("event", name), zap.String("event_id", j.eventID))
		return inference.Increment{Type: name}, nil
	}
}

func (j *job) open(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.streamURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	setAuth(req, j.client.token)

	resp, err := j.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open result stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return fmt.Errorf("failed to open result stream: %w", statusError(resp))
	}
	j.body = resp.Body
	j.reader = bufio.NewReader(resp.Body)
	return nil
}

// decodeData parses an event's data array and fills in the url of file
// outputs that only carry a server path.
func (j *job) decodeData(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var values []json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("invalid event data: %w", err)
	}
	for i, v := range values {
		values[i] = j.withFileURL(v)
	}
	return values, nil
}

func (j *job) withFileURL(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return raw
	}
	path, _ := obj["path"].(string)
	if u, _ := obj["url"].(string); u != "" || path == "" {
		return raw
	}
	obj["url"] = j.client.fileURL(path)
	out, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return out
}

// Close releases the result stream.
func (j *job) Close() error {
	j.finished = true
	if j.body != nil {
		return j.body.Close()
	}
	return nil
}

// readEvent reads one server-sent event and returns its name and data.
// Comment lines are skipped and multiple data lines are joined with a
// newline.
func readEvent(r *bufio.Reader) (string, []byte, error) {
	var (
		name string
		data [][]byte
		seen bool
	)
	for {
		line, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) && seen {
				return name, bytes.Join(data, []byte("\n")), nil
			}
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if seen {
				return name, bytes.Join(data, []byte("\n")), nil
			}
			if err != nil {
				return "", nil, err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
			seen = true
		case "data":
			data = append(data, []byte(value))
			seen = true
		}

		if err != nil {
			// Last line without a trailing newline.
			return name, bytes.Join(data, []byte("\n")), nil
		}
	}
}

func errorMessage(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Error
	}
	return string(data)
}
