package inference

import (
	"encoding/json"
	"testing"
)

func TestIncrementResultURL(t *testing.T) {
	tests := []struct {
		name    string
		data    []string
		wantURL string
		wantOK  bool
	}{
		{name: "no data"},
		{name: "status string", data: []string{`"Processing"`}},
		{name: "object without url", data: []string{`{"path":"/tmp/x.png"}`}},
		{name: "object with empty url", data: []string{`{"url":""}`}},
		{name: "object with url", data: []string{`{"url":"https://x/out.png"}`, `"seed"`}, wantURL: "https://x/out.png", wantOK: true},
		{name: "url only in second element", data: []string{`"busy"`, `{"url":"https://x/out.png"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := Increment{Type: "generating"}
			for _, d := range tt.data {
				inc.Data = append(inc.Data, json.RawMessage(d))
			}
			got, ok := inc.ResultURL()
			if got != tt.wantURL || ok != tt.wantOK {
				t.Fatalf("ResultURL() = %q, %v, want %q, %v", got, ok, tt.wantURL, tt.wantOK)
			}
		})
	}
}

func TestIncrementPrimaryText(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{data: `"Queued"`, want: "Queued"},
		{data: `""`, want: ""},
		{data: `null`, want: ""},
		{data: `0`, want: ""},
		{data: `42`, want: "42"},
		{data: `{"path":"a"}`, want: `{"path":"a"}`},
	}
	for _, tt := range tests {
		inc := Increment{Data: []json.RawMessage{json.RawMessage(tt.data)}}
		if got := inc.PrimaryText(); got != tt.want {
			t.Fatalf("PrimaryText(%s) = %q, want %q", tt.data, got, tt.want)
		}
	}
	if got := (Increment{}).PrimaryText(); got != "" {
		t.Fatalf("expected empty text without data, got %q", got)
	}
}

func TestNewIncrement(t *testing.T) {
	inc, err := NewIncrement("complete", map[string]string{"url": "https://x/out.png"})
	if err != nil {
		t.Fatal(err)
	}
	if url, ok := inc.ResultURL(); !ok || url != "https://x/out.png" {
		t.Fatalf("unexpected result %q %v", url, ok)
	}
}

func TestIncrementHasData(t *testing.T) {
	if (Increment{Type: "heartbeat"}).HasData() {
		t.Error("increment without data reports a payload")
	}
	empty := Increment{Type: "generating", Data: []json.RawMessage{}}
	if !empty.HasData() {
		t.Error("empty data array should count as a payload")
	}
	if got := empty.PrimaryText(); got != "" {
		t.Errorf("PrimaryText() = %q", got)
	}
	if _, ok := empty.ResultURL(); ok {
		t.Error("empty data array has no result")
	}
}
