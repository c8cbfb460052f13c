package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Viewer keeps a browser tab on the stream page and reverts redirects
// according to its guard.
type Viewer struct {
	URL     string
	Browser Browser
	Guard   *RedirectGuard
	Logger  *zap.Logger

	mu      sync.Mutex
	running bool
	reverts int
}

// NewViewer creates a viewer of url in browser.
func NewViewer(browser Browser, url string, logger *zap.Logger) *Viewer {
	if url == "" {
		url = DefaultURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Viewer{
		URL:     url,
		Browser: browser,
		Guard:   NewRedirectGuard(url),
		Logger:  logger.Named("stream"),
	}
}

// ErrNotRunning is returned by Snapshot before Run has loaded the page.
var ErrNotRunning = errors.New("stream viewer is not running")

// Run loads the stream page and handles browser events until ctx is
// done or the browser closes.
func (v *Viewer) Run(ctx context.Context) error {
	v.setRunning(true)
	defer v.setRunning(false)

	events := v.Browser.Events()
	navErr := make(chan error, 1)
	go func() {
		navErr <- v.Browser.Navigate(ctx, v.URL)
	}()
	v.Logger.Info("Opening stream", zap.String("url", v.URL))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-navErr:
			if err != nil {
				return fmt.Errorf("failed to open stream: %w", err)
			}
			navErr = nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			v.handle(ctx, ev)
		}
	}
}

func (v *Viewer) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventProgress:
		v.Logger.Info("Load progress", zap.String("stage", ev.Stage), zap.String("url", ev.URL))
	case EventNavigated:
		back := v.Guard.Observe(ev.URL)
		v.Logger.Info("Navigation",
			zap.String("url", ev.URL),
			zap.Bool("go_back", back),
			zap.String("guard", v.Guard.stateName()),
		)
		if !back {
			return
		}
		v.mu.Lock()
		v.reverts++
		v.mu.Unlock()
		// Back navigations are themselves reported as events; the
		// guard sees them like any other.
		go func() {
			if err := v.Browser.GoBack(ctx); err != nil && ctx.Err() == nil {
				v.Logger.Warn("Failed to go back", zap.Error(err))
			}
		}()
	}
}

// Running reports whether Run is active.
func (v *Viewer) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// Reverts is the number of navigations undone so far.
func (v *Viewer) Reverts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reverts
}

func (v *Viewer) setRunning(running bool) {
	v.mu.Lock()
	v.running = running
	v.mu.Unlock()
}

// Snapshot describes what the tab currently shows.
func (v *Viewer) Snapshot(ctx context.Context) (Snapshot, error) {
	if !v.Running() {
		return Snapshot{}, ErrNotRunning
	}
	page, err := v.Browser.Page(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := ParseSnapshot(page)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Reverts = v.Reverts()
	return snap, nil
}
