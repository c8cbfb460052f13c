package stream

import "context"

// EventKind identifies a browser event.
type EventKind int

const (
	EventNavigated EventKind = iota
	EventProgress
)

// Event is a main-frame navigation or a load progress update.
type Event struct {
	Kind EventKind
	URL  string
	// Stage names the load milestone of a progress event, for example
	// "DOMContentLoaded" or "complete".
	Stage string
}

// Page is the rendered state of the main frame.
type Page struct {
	URL   string
	Title string
	HTML  string
}

// Browser is a headless browser tab.
type Browser interface {
	// Navigate loads url. The resulting navigation is also reported on
	// Events.
	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	Page(ctx context.Context) (Page, error)
	// Events is closed when the browser shuts down.
	Events() <-chan Event
	Close() error
}

// Options configure a browser tab.
type Options struct {
	UserAgent string
	Headless  bool
}

// DefaultOptions returns options for a headless tab with the desktop
// user agent.
func DefaultOptions() Options {
	return Options{UserAgent: DefaultUserAgent, Headless: true}
}
