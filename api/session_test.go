package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSessionsEvictIdleScreens(t *testing.T) {
	job := &scriptedJob{url: "https://x/out.png", release: make(chan struct{})}
	srv, _ := newTestServer(t, job)
	sessions := srv.Sessions
	clock := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return clock }

	mux := srv.Routes()
	serve(mux, uploadRequest(t, "subject"))
	serve(mux, uploadRequest(t, "garment"))
	if rec := serve(mux, httptest.NewRequest(http.MethodPost, "/try-on", nil)); rec.Code != http.StatusAccepted {
		t.Fatalf("try-on: %d", rec.Code)
	}
	alice := sessions.Get("alice")
	if sessions.Get("alice") != alice {
		t.Fatal("screen not reused")
	}

	clock = clock.Add(DefaultSessionIdleTTL + time.Minute)
	sessions.Get("carol")
	if n := sessions.Len(); n != 2 {
		t.Fatalf("sessions = %d, want the running local screen and carol", n)
	}
	if sessions.Get("alice") == alice {
		t.Error("idle screen was kept")
	}

	close(job.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	clock = clock.Add(2 * DefaultSessionIdleTTL)
	sessions.Get("dave")
	if n := sessions.Len(); n != 1 {
		t.Errorf("sessions = %d after idle period, want 1", n)
	}
}
