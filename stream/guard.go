// Package stream shows a live video page in a headless browser and keeps
// it from being hijacked by redirecting ads.
package stream

import "sync"

const (
	DefaultURL       = "https://dlhd.sx/embed/stream-62.php"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.36"
)

type guardState int

const (
	awaitingFirstRedirect guardState = iota
	awaitingSecondRedirect
)

func (s guardState) String() string {
	if s == awaitingSecondRedirect {
		return "awaiting_second_redirect"
	}
	return "awaiting_first_redirect"
}

// RedirectGuard decides whether a navigation should be undone. The first
// navigation away from the initial URL is reverted and arms the guard;
// while armed, the next navigation of any kind is reverted and disarms
// it. The heuristic targets one third-party page and is not verified
// against its current behaviour.
type RedirectGuard struct {
	initial string

	mu    sync.Mutex
	state guardState
}

// NewRedirectGuard creates a disarmed guard for the page at initialURL.
func NewRedirectGuard(initialURL string) *RedirectGuard {
	return &RedirectGuard{initial: initialURL}
}

// Observe records a navigation to url and reports whether the browser
// should go back.
func (g *RedirectGuard) Observe(url string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case awaitingFirstRedirect:
		if url != g.initial {
			g.state = awaitingSecondRedirect
			return true
		}
	case awaitingSecondRedirect:
		g.state = awaitingFirstRedirect
		return true
	}
	return false
}

// Armed reports whether the guard waits for a second redirect.
func (g *RedirectGuard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == awaitingSecondRedirect
}

func (g *RedirectGuard) stateName() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.String()
}
