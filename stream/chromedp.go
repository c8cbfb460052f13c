package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeBrowser drives a Chrome tab over the DevTools protocol.
type ChromeBrowser struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	events chan Event

	mu        sync.Mutex
	mainFrame cdp.FrameID
	closed    bool
}

// NewChromeBrowser starts Chrome with opts. The browser lives until
// Close is called or parent is cancelled.
func NewChromeBrowser(parent context.Context, opts Options, logger *zap.Logger) (*ChromeBrowser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(opts.UserAgent),
		chromedp.Flag("disable-application-cache", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	b := &ChromeBrowser{
		ctx: tabCtx,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
		logger: logger.Named("chromedp"),
		events: make(chan Event, 64),
	}
	chromedp.ListenTarget(tabCtx, b.handleEvent)

	headers := network.Headers{"User-Agent": opts.UserAgent}
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetCacheDisabled(true),
		network.SetExtraHTTPHeaders(headers),
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
	)
	if err != nil {
		b.cancel()
		return nil, fmt.Errorf("chromedp setup error: %w", err)
	}
	return b, nil
}

func (b *ChromeBrowser) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		b.mu.Lock()
		b.mainFrame = e.Frame.ID
		b.mu.Unlock()
		b.emit(Event{Kind: EventNavigated, URL: e.Frame.URL + e.Frame.URLFragment})
	case *page.EventLifecycleEvent:
		b.mu.Lock()
		main := b.mainFrame
		b.mu.Unlock()
		if e.FrameID != main {
			return
		}
		b.emit(Event{Kind: EventProgress, Stage: e.Name})
	}
}

// emit never blocks the DevTools reader; events are dropped when nobody
// drains the channel.
func (b *ChromeBrowser) emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.events <- ev:
	default:
		b.logger.Warn("Dropping browser event", zap.String("url", ev.URL), zap.String("stage", ev.Stage))
	}
}

// run executes actions on the tab, stopping early when ctx is done
// without closing the tab.
func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (b *ChromeBrowser) Navigate(ctx context.Context, url string) error {
	if err := b.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("chromedp navigation error: %w", err)
	}
	return nil
}

func (b *ChromeBrowser) GoBack(ctx context.Context) error {
	if err := b.run(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("chromedp back error: %w", err)
	}
	return nil
}

func (b *ChromeBrowser) Page(ctx context.Context) (Page, error) {
	var p Page
	err := b.run(ctx,
		chromedp.Location(&p.URL),
		chromedp.Title(&p.Title),
		chromedp.OuterHTML("html", &p.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, fmt.Errorf("chromedp page error: %w", err)
	}
	return p, nil
}

func (b *ChromeBrowser) Events() <-chan Event {
	return b.events
}

func (b *ChromeBrowser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.events)
	b.mu.Unlock()

	b.cancel()
	return nil
}
