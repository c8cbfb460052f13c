package gradio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raushankrgupta/virtual-tryon/inference"
)

// fakeApp is a minimal Gradio app serving the /call protocol.
type fakeApp struct {
	apiPrefix string
	events    string
	uploads   []string
	callBody  map[string]any
}

func (f *fakeApp) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"version": "4.44.0", "api_prefix": f.apiPrefix})
	})
	mux.HandleFunc(f.apiPrefix+"/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse upload: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var paths []string
		for _, fh := range r.MultipartForm.File["files"] {
			f.uploads = append(f.uploads, fh.Filename)
			paths = append(paths, "/tmp/gradio/"+fh.Filename)
		}
		json.NewEncoder(w).Encode(paths)
	})
	mux.HandleFunc(f.apiPrefix+"/call/tryon", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.callBody); err != nil {
			t.Errorf("decode call: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"event_id": "evt-1"})
	})
	mux.HandleFunc(f.apiPrefix+"/call/tryon/evt-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, f.events)
	})
	return mux
}

func collect(t *testing.T, job inference.Job) ([]inference.Increment, error) {
	t.Helper()
	var out []inference.Increment
	for i := 0; i < 20; i++ {
		inc, err := job.Next(context.Background())
		if err != nil {
			return out, err
		}
		out = append(out, inc)
	}
	t.Fatal("stream did not finish")
	return nil, nil
}

func TestConnectResolvesSpaceHost(t *testing.T) {
	app := &fakeApp{}
	appSrv := httptest.NewServer(app.handler(t))
	defer appSrv.Close()

	var gotAuth string
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/spaces/Kwai-Kolors/Kolors-Virtual-Try-On/host" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"subdomain": "kwai-kolors", "host": appSrv.URL})
	}))
	defer hub.Close()

	c := NewConnector(hub.URL, "hf_token", nil)
	client, err := c.Connect(context.Background(), "Kwai-Kolors/Kolors-Virtual-Try-On")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if gotAuth != "Bearer hf_token" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if root := client.(*Client).root; root != appSrv.URL {
		t.Fatalf("unexpected root %q", root)
	}
}

func TestConnectFailsForUnknownSpace(t *testing.T) {
	hub := httptest.NewServer(http.NotFoundHandler())
	defer hub.Close()

	c := NewConnector(hub.URL, "", nil)
	if _, err := c.Connect(context.Background(), "nobody/nothing"); err == nil {
		t.Fatal("expected error for unknown space")
	}
	if _, err := c.Connect(context.Background(), "not-a-space"); err == nil {
		t.Fatal("expected error for malformed space name")
	}
}

func TestSubmitUploadsBlobsAndStreamsResult(t *testing.T) {
	app := &fakeApp{
		apiPrefix: "/gradio_api",
		events: strings.Join([]string{
			": keep-alive",
			"event: heartbeat",
			"data: null",
			"",
			"event: generating",
			`data: ["Queue position 2"]`,
			"",
			"event: generating",
			`data: [null]`,
			"",
			"event: complete",
			`data: [{"path": "/tmp/gradio/out.webp", "url": "https://x/out.png"}, "seed 1"]`,
			"",
			"",
		}, "\n"),
	}
	srv := httptest.NewServer(app.handler(t))
	defer srv.Close()

	client, err := NewConnector("", "", nil).Connect(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	job, err := client.Submit(context.Background(), "/tryon", []any{
		inference.Blob{Name: "subject.jpg", Data: []byte("subject")},
		&inference.Blob{Name: "garment.jpg", Data: []byte("garment")},
		0,
		true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	defer job.Close()

	if fmt.Sprint(app.uploads) != "[subject.jpg garment.jpg]" {
		t.Fatalf("unexpected uploads %v", app.uploads)
	}
	data, _ := app.callBody["data"].([]any)
	if len(data) != 4 || data[2] != float64(0) || data[3] != true {
		t.Fatalf("unexpected call arguments %v", app.callBody)
	}
	first, _ := data[0].(map[string]any)
	if first["path"] != "/tmp/gradio/subject.jpg" {
		t.Fatalf("expected uploaded file data, got %v", data[0])
	}

	incs, err := collect(t, job)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end, got %v", err)
	}
	if len(incs) != 4 {
		t.Fatalf("expected 4 increments, got %d: %+v", len(incs), incs)
	}
	if incs[0].Type != eventHeartbeat || incs[0].HasData() {
		t.Fatalf("unexpected heartbeat %+v", incs[0])
	}
	if incs[1].PrimaryText() != "Queue position 2" {
		t.Fatalf("unexpected status %q", incs[1].PrimaryText())
	}
	if incs[2].PrimaryText() != "" {
		t.Fatalf("expected empty status, got %q", incs[2].PrimaryText())
	}
	if url, ok := incs[3].ResultURL(); !ok || url != "https://x/out.png" {
		t.Fatalf("unexpected result %q %v", url, ok)
	}
}

func TestCompleteFillsMissingFileURL(t *testing.T) {
	app := &fakeApp{events: "event: complete\ndata: [{\"path\": \"/tmp/gradio/out.png\"}]\n\n"}
	srv := httptest.NewServer(app.handler(t))
	defer srv.Close()

	client, err := NewConnector("", "", nil).Connect(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	job, err := client.Submit(context.Background(), "tryon", []any{0})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	inc, err := job.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	url, ok := inc.ResultURL()
	if !ok || url != srv.URL+"/file=/tmp/gradio/out.png" {
		t.Fatalf("unexpected result %q %v", url, ok)
	}
}

func TestErrorEventFailsJob(t *testing.T) {
	app := &fakeApp{events: "event: generating\ndata: [\"busy\"]\n\nevent: error\ndata: \"GPU quota exceeded\"\n\n"}
	srv := httptest.NewServer(app.handler(t))
	defer srv.Close()

	client, err := NewConnector("", "", nil).Connect(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	job, err := client.Submit(context.Background(), "/tryon", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = collect(t, job)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != "GPU quota exceeded" {
		t.Fatalf("expected remote error, got %v", err)
	}
	if _, err := job.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after error, got %v", err)
	}
}

func TestEmptyDataArrayIsPayload(t *testing.T) {
	app := &fakeApp{events: "event: generating\ndata: []\n\nevent: generating\ndata: null\n\n"}
	srv := httptest.NewServer(app.handler(t))
	defer srv.Close()

	client, err := NewConnector("", "", nil).Connect(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	job, err := client.Submit(context.Background(), "/tryon", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	incs, err := collect(t, job)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if len(incs) != 2 {
		t.Fatalf("increments = %+v", incs)
	}
	if !incs[0].HasData() {
		t.Error("data [] should be reported as a payload")
	}
	if incs[1].HasData() {
		t.Error("data null should not be reported as a payload")
	}
}

func TestReadEvent(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("event: generating\ndata: [1,\ndata: 2]\n\nevent: complete\ndata: [3]"))
	name, data, err := readEvent(r)
	if err != nil || name != "generating" || string(data) != "[1,\n2]" {
		t.Fatalf("first event = %q %q %v", name, data, err)
	}
	name, data, err = readEvent(r)
	if err != nil || name != "complete" || string(data) != "[3]" {
		t.Fatalf("second event = %q %q %v", name, data, err)
	}
	if _, _, err := readEvent(r); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
