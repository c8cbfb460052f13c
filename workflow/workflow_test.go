package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raushankrgupta/virtual-tryon/inference"
	"github.com/raushankrgupta/virtual-tryon/models"
	"go.uber.org/zap"
)

type step struct {
	inc inference.Increment
	err error
}

type stubJob struct {
	steps  []step
	calls  int
	closed bool
	block  chan struct{}
}

func (j *stubJob) Next(ctx context.Context) (inference.Increment, error) {
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return inference.Increment{}, ctx.Err()
		}
	}
	j.calls++
	if len(j.steps) == 0 {
		return inference.Increment{Type: "generating", Data: nil}, nil
	}
	s := j.steps[0]
	if len(j.steps) > 1 {
		j.steps = j.steps[1:]
	}
	return s.inc, s.err
}

func (j *stubJob) Close() error {
	j.closed = true
	return nil
}

type stubClient struct {
	job       inference.Job
	err       error
	endpoint  string
	args      []any
	submitted int
}

func (c *stubClient) Submit(ctx context.Context, endpoint string, args []any) (inference.Job, error) {
	c.submitted++
	c.endpoint = endpoint
	c.args = args
	return c.job, c.err
}

type stubConnector struct {
	client *stubClient
	err    error
	space  string
	calls  int
}

func (c *stubConnector) Connect(ctx context.Context, space string) (inference.Client, error) {
	c.calls++
	c.space = space
	if c.err != nil {
		return nil, c.err
	}
	return c.client, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, ref string) (inference.Blob, error) {
	if ref == "missing" {
		return inference.Blob{}, errors.New("no such file")
	}
	return inference.Blob{Name: ref, Data: []byte(ref)}, nil
}

func increment(t *testing.T, values ...any) step {
	t.Helper()
	inc, err := inference.NewIncrement("generating", values...)
	if err != nil {
		t.Fatalf("NewIncrement: %v", err)
	}
	return step{inc: inc}
}

func newTestScreen(conn *stubConnector) *Screen {
	logger := zap.NewNop()
	poller := NewPoller(logger)
	poller.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return NewScreen("tester", NewSubmitter(conn, stubResolver{}, logger), poller, logger)
}

func selectBoth(s *Screen) {
	s.Select(models.Selection{Role: models.RoleSubject, Reference: "person.jpg"})
	s.Select(models.Selection{Role: models.RoleGarment, Reference: "shirt.jpg"})
}

func TestSendToAPIReturnsResultURL(t *testing.T) {
	job := &stubJob{steps: []step{
		increment(t, "queued"),
		increment(t, "processing"),
		increment(t, "almost there"),
		increment(t, map[string]string{"url": "https://x/out.png"}),
	}}
	client := &stubClient{job: job}
	conn := &stubConnector{client: client}
	screen := newTestScreen(conn)
	selectBoth(screen)

	var recorded []Outcome
	screen.Recorders = append(screen.Recorders, RecorderFunc(func(ctx context.Context, o Outcome) error {
		recorded = append(recorded, o)
		return nil
	}))

	if err := screen.SendToAPI(context.Background()); err != nil {
		t.Fatalf("SendToAPI: %v", err)
	}

	if conn.space != DefaultSpace {
		t.Errorf("space = %q, want %q", conn.space, DefaultSpace)
	}
	if client.endpoint != DefaultEndpoint {
		t.Errorf("endpoint = %q, want %q", client.endpoint, DefaultEndpoint)
	}
	if len(client.args) != 4 || client.args[2] != 0 || client.args[3] != true {
		t.Errorf("unexpected args %#v", client.args)
	}
	if blob, ok := client.args[0].(inference.Blob); !ok || blob.Name != "person.jpg" {
		t.Errorf("subject arg = %#v", client.args[0])
	}
	if job.calls != 4 {
		t.Errorf("fetches = %d, want 4", job.calls)
	}
	if !job.closed {
		t.Error("job handle was not closed")
	}

	view := screen.View()
	if view.SpinnerVisible || view.ButtonDisabled || view.ButtonLabel != ButtonTryOn {
		t.Errorf("spinner still shown: %+v", view)
	}
	if !view.ResultVisible || view.ResultURL != "https://x/out.png" {
		t.Errorf("result = %+v", view)
	}
	if view.Alert != "" {
		t.Errorf("unexpected alert %q", view.Alert)
	}

	if len(recorded) != 1 || recorded[0].Status() != models.TryOnStatusCompleted || recorded[0].Attempts != 4 {
		t.Errorf("recorded = %+v", recorded)
	}
}

func TestSendToAPIMissingSelection(t *testing.T) {
	conn := &stubConnector{client: &stubClient{}}
	screen := newTestScreen(conn)
	screen.Select(models.Selection{Role: models.RoleSubject, Reference: "person.jpg"})

	err := screen.SendToAPI(context.Background())
	if !errors.Is(err, ErrMissingSelection) || KindOf(err) != KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
	if conn.calls != 0 {
		t.Errorf("connect called %d times", conn.calls)
	}
	st := screen.State()
	if st.Loading {
		t.Error("loading set on validation failure")
	}
	if st.Alert != "Please select both images" {
		t.Errorf("alert = %q", st.Alert)
	}
}

func TestSendToAPIPollTimeout(t *testing.T) {
	job := &stubJob{steps: []step{increment(t, "still working")}}
	conn := &stubConnector{client: &stubClient{job: job}}
	screen := newTestScreen(conn)
	selectBoth(screen)

	var sleeps int
	screen.Poller.Sleep = func(ctx context.Context, d time.Duration) error {
		if d != DefaultPollInterval {
			t.Errorf("sleep %v, want %v", d, DefaultPollInterval)
		}
		sleeps++
		return nil
	}

	err := screen.SendToAPI(context.Background())
	if !errors.Is(err, ErrPollTimeout) || KindOf(err) != KindPollTimeout {
		t.Fatalf("err = %v, want poll timeout", err)
	}
	if job.calls != DefaultMaxAttempts {
		t.Errorf("fetches = %d, want %d", job.calls, DefaultMaxAttempts)
	}
	if sleeps != DefaultMaxAttempts-1 {
		t.Errorf("sleeps = %d, want %d", sleeps, DefaultMaxAttempts-1)
	}
	st := screen.State()
	if st.Loading || st.Status != StatusFailed {
		t.Errorf("state = %+v", st)
	}
	if st.Alert != "Error getting result: Polling timeout" {
		t.Errorf("alert = %q", st.Alert)
	}
	if !job.closed {
		t.Error("job handle was not closed")
	}
}

func TestSendToAPICompletedWithoutResult(t *testing.T) {
	job := &stubJob{steps: []step{increment(t, "working"), {err: io.EOF}}}
	screen := newTestScreen(&stubConnector{client: &stubClient{job: job}})
	selectBoth(screen)

	if err := screen.SendToAPI(context.Background()); err != nil {
		t.Fatalf("SendToAPI: %v", err)
	}
	st := screen.State()
	if st.Status != StatusDone || st.Result != "" || st.Loading {
		t.Errorf("state = %+v", st)
	}
	if Render(st).ResultVisible {
		t.Error("result shown without a url")
	}
}

func TestSendToAPIResultOnLastAttempt(t *testing.T) {
	steps := make([]step, 0, DefaultMaxAttempts)
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		steps = append(steps, increment(t, "working"))
	}
	steps = append(steps, increment(t, map[string]string{"url": "https://x/late.png"}))
	job := &stubJob{steps: steps}
	screen := newTestScreen(&stubConnector{client: &stubClient{job: job}})
	selectBoth(screen)

	if err := screen.SendToAPI(context.Background()); err != nil {
		t.Fatalf("SendToAPI: %v", err)
	}
	if got := screen.State().Result; got != "https://x/late.png" {
		t.Errorf("result = %q", got)
	}
}

func TestSendToAPIConnectFailure(t *testing.T) {
	conn := &stubConnector{err: errors.New("space is sleeping")}
	screen := newTestScreen(conn)
	selectBoth(screen)

	err := screen.SendToAPI(context.Background())
	if KindOf(err) != KindConnection {
		t.Fatalf("kind = %q, want connection", KindOf(err))
	}
	st := screen.State()
	if st.Loading {
		t.Error("loading left set after connect failure")
	}
	if st.Alert != "Error calling API: space is sleeping" {
		t.Errorf("alert = %q", st.Alert)
	}
}

func TestSendToAPISubmissionFailures(t *testing.T) {
	tests := []struct {
		name    string
		client  *stubClient
		subject string
		want    error
	}{
		{name: "nil job", client: &stubClient{}, subject: "person.jpg", want: ErrInvalidJob},
		{name: "rejected", client: &stubClient{err: errors.New("queue full")}, subject: "person.jpg"},
		{name: "unresolvable", client: &stubClient{job: &stubJob{}}, subject: "missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			screen := newTestScreen(&stubConnector{client: tt.client})
			screen.Select(models.Selection{Role: models.RoleSubject, Reference: tt.subject})
			screen.Select(models.Selection{Role: models.RoleGarment, Reference: "shirt.jpg"})

			err := screen.SendToAPI(context.Background())
			if KindOf(err) != KindSubmission {
				t.Fatalf("kind = %q, want submission (err %v)", KindOf(err), err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			st := screen.State()
			if st.Loading || !strings.HasPrefix(st.Alert, "Error calling API: ") {
				t.Errorf("state = %+v", st)
			}
		})
	}
}

func TestSendToAPIPollError(t *testing.T) {
	job := &stubJob{steps: []step{increment(t, "working"), {err: errors.New("stream reset")}}}
	screen := newTestScreen(&stubConnector{client: &stubClient{job: job}})
	selectBoth(screen)

	err := screen.SendToAPI(context.Background())
	if KindOf(err) != KindPoll {
		t.Fatalf("kind = %q, want poll", KindOf(err))
	}
	if job.calls != 2 {
		t.Errorf("fetches = %d, want 2 (no retries)", job.calls)
	}
	if got := screen.State().Alert; got != "Error getting result: stream reset" {
		t.Errorf("alert = %q", got)
	}
}

func TestSendToAPIBusy(t *testing.T) {
	job := &stubJob{
		steps: []step{increment(t, map[string]string{"url": "https://x/out.png"})},
		block: make(chan struct{}),
	}
	client := &stubClient{job: job}
	screen := newTestScreen(&stubConnector{client: client})
	selectBoth(screen)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := screen.SendToAPI(context.Background()); err != nil {
			t.Errorf("first SendToAPI: %v", err)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for screen.State().Status != StatusPolling {
		if time.Now().After(deadline) {
			t.Fatal("run never reached polling")
		}
		time.Sleep(time.Millisecond)
	}

	if err := screen.SendToAPI(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second SendToAPI err = %v, want ErrBusy", err)
	}
	view := screen.View()
	if !view.SpinnerVisible || view.ButtonLabel != ButtonProcessing || !view.ButtonDisabled {
		t.Errorf("view while loading = %+v", view)
	}

	close(job.block)
	wg.Wait()
	if client.submitted != 1 {
		t.Errorf("submitted %d jobs, want 1", client.submitted)
	}
}

func TestPollStatusMessages(t *testing.T) {
	job := &stubJob{steps: []step{
		increment(t, "queued"),
		increment(t, nil),
		{inc: inference.Increment{Type: "generating", Data: []json.RawMessage{}}},
		{inc: inference.Increment{Type: "heartbeat"}},
		increment(t, map[string]string{"url": "https://x/out.png"}),
	}}
	p := NewPoller(zap.NewNop())
	p.Sleep = func(context.Context, time.Duration) error { return nil }

	var msgs []string
	res, err := p.Poll(context.Background(), "run", job, func(attempt int, msg string) {
		msgs = append(msgs, msg)
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	want := []string{"Processing: queued", "Processing: In progress", "Processing: In progress", "", "Processing: {\"url\":\"https://x/out.png\"}"}
	if len(msgs) != len(want) {
		t.Fatalf("msgs = %q", msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("msg %d = %q, want %q", i, msgs[i], want[i])
		}
	}
	if res.URL != "https://x/out.png" || res.Attempts != 5 {
		t.Errorf("result = %+v", res)
	}
}

func TestPollHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := &stubJob{steps: []step{increment(t, "working")}}
	p := NewPoller(zap.NewNop())

	_, err := p.Poll(ctx, "run", job, nil)
	if !errors.Is(err, context.Canceled) || KindOf(err) != KindPoll {
		t.Fatalf("err = %v, want cancelled poll error", err)
	}
	if job.calls != 1 || !job.closed {
		t.Errorf("calls = %d closed = %v", job.calls, job.closed)
	}
}

func TestRender(t *testing.T) {
	idle := Render(State{})
	if idle.SpinnerVisible || idle.ResultVisible || idle.ButtonLabel != ButtonTryOn || idle.StatusText != "" {
		t.Errorf("idle view = %+v", idle)
	}

	loading := Render(State{}.Start("r1", time.Now()).WithMessage(MsgSubmitting))
	if !loading.SpinnerVisible || loading.StatusText != MsgSubmitting || !loading.ButtonDisabled {
		t.Errorf("loading view = %+v", loading)
	}

	done := Render(State{}.Start("r1", time.Now()).WithMessage("Processing: x").Done("https://x/out.png"))
	if done.SpinnerVisible || done.StatusText != "" || !done.ResultVisible || done.ResultURL != "https://x/out.png" {
		t.Errorf("done view = %+v", done)
	}
}

func TestViewJSONRoundTrip(t *testing.T) {
	for st := StatusIdle; st <= StatusFailed; st++ {
		want := Render(State{Status: st, Attempt: 3, Alert: "a"})
		b, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("marshal %s: %v", st, err)
		}
		var got View
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if got != want {
			t.Errorf("round trip of %s = %+v, want %+v", st, got, want)
		}
	}

	var st Status
	if err := st.UnmarshalText([]byte("paused")); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestPickCancelledKeepsSelection(t *testing.T) {
	screen := newTestScreen(&stubConnector{})
	screen.Select(models.Selection{Role: models.RoleGarment, Reference: "shirt.jpg"})

	ok, err := screen.Pick(context.Background(), pickerFunc(func(ctx context.Context, role models.Role) (models.Selection, bool, error) {
		return models.Selection{}, false, nil
	}), models.RoleGarment)
	if err != nil || ok {
		t.Fatalf("Pick = %v, %v", ok, err)
	}
	if g := screen.State().Garment; g == nil || g.Reference != "shirt.jpg" {
		t.Errorf("garment = %+v", g)
	}
}

type pickerFunc func(ctx context.Context, role models.Role) (models.Selection, bool, error)

func (f pickerFunc) Pick(ctx context.Context, role models.Role) (models.Selection, bool, error) {
	return f(ctx, role)
}

func TestLaunchRunsInBackground(t *testing.T) {
	job := &stubJob{steps: []step{increment(t, map[string]string{"url": "https://x/bg.png"})}}
	screen := newTestScreen(&stubConnector{client: &stubClient{job: job}})

	if _, _, err := screen.Launch(context.Background()); KindOf(err) != KindValidation {
		t.Fatalf("Launch without images err = %v", err)
	}

	selectBoth(screen)
	runID, done, err := screen.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if runID == "" {
		t.Error("empty run id")
	}
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if st := screen.State(); st.RunID != runID || st.Result != "https://x/bg.png" {
		t.Errorf("state = %+v", st)
	}
}
