// Package inference describes the remote try-on job API: connect to a
// hosted model, submit positional arguments and pull incremental updates
// from the returned job handle until it completes.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// Connector establishes a client for a hosted model identified by a
// path-like name such as "Kwai-Kolors/Kolors-Virtual-Try-On".
type Connector interface {
	Connect(ctx context.Context, space string) (Client, error)
}

// Client submits jobs to a connected model.
type Client interface {
	Submit(ctx context.Context, endpoint string, args []any) (Job, error)
}

// Job is a pull-based, finite, non-restartable sequence of increments.
// Next returns io.EOF once the job has signalled completion.
type Job interface {
	Next(ctx context.Context) (Increment, error)
	Close() error
}

// Blob is binary content passed as a positional argument.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

// Increment is one unit of streamed progress or output.
type Increment struct {
	Type string            `json:"type"`
	Data []json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether the increment carries a payload. An empty
// data array still counts.
func (i Increment) HasData() bool {
	return i.Data != nil
}

// ResultURL returns the url of the primary element when it is an object
// exposing a non-empty "url" field.
func (i Increment) ResultURL() (string, bool) {
	if len(i.Data) == 0 {
		return "", false
	}
	raw := bytes.TrimSpace(i.Data[0])
	if len(raw) == 0 || raw[0] != '{' {
		return "", false
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.URL == "" {
		return "", false
	}
	return obj.URL, true
}

// PrimaryText renders the primary element for display. Strings are
// unquoted, other values are shown as their JSON text. Empty, null and
// false elements render as "".
func (i Increment) PrimaryText() string {
	if len(i.Data) == 0 {
		return ""
	}
	raw := bytes.TrimSpace(i.Data[0])
	switch string(raw) {
	case "", "null", "false", `""`, "0":
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return strings.TrimSpace(string(raw))
}

// NewIncrement builds an increment from Go values, mainly for adapters
// that do not speak JSON natively.
func NewIncrement(typ string, values ...any) (Increment, error) {
	inc := Increment{Type: typ}
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return Increment{}, err
		}
		inc.Data = append(inc.Data, b)
	}
	return inc, nil
}
