package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"go.uber.org/zap"
)

const (
	DefaultChromeDriverPath = "/usr/local/bin/chromedriver"
	defaultWatchInterval    = 250 * time.Millisecond
)

// SeleniumBrowser drives Chrome through chromedriver. WebDriver has no
// navigation callbacks, so the current URL and ready state are polled.
type SeleniumBrowser struct {
	service *selenium.Service
	driver  selenium.WebDriver
	ports   *PortManager
	port    int
	logger  *zap.Logger

	events chan Event
	stop   chan struct{}
	done   chan struct{}

	// WebDriver sessions are not safe for concurrent commands.
	mu        sync.Mutex
	closeOnce sync.Once
}

// SeleniumConfig locates chromedriver.
type SeleniumConfig struct {
	DriverPath    string
	Ports         *PortManager
	WatchInterval time.Duration
}

// NewSeleniumBrowser starts chromedriver on a managed port and opens a
// Chrome session with opts.
func NewSeleniumBrowser(cfg SeleniumConfig, opts Options, logger *zap.Logger) (*SeleniumBrowser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DriverPath == "" {
		cfg.DriverPath = DefaultChromeDriverPath
	}
	if cfg.Ports == nil {
		cfg.Ports = DefaultPorts()
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = defaultWatchInterval
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	port, err := cfg.Ports.Acquire()
	if err != nil {
		return nil, fmt.Errorf("port error: %w", err)
	}

	service, err := selenium.NewChromeDriverService(cfg.DriverPath, port)
	if err != nil {
		cfg.Ports.Release(port)
		return nil, fmt.Errorf("error starting Chrome driver service: %w", err)
	}

	args := []string{
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-gpu",
		"--disable-application-cache",
		"--disk-cache-size=1",
		"--autoplay-policy=no-user-gesture-required",
		"--window-size=1280,720",
		fmt.Sprintf("--user-agent=%s", opts.UserAgent),
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{
		Args:            args,
		ExcludeSwitches: []string{"enable-automation"},
	})

	driver, err := selenium.NewRemote(caps, fmt.Sprintf("http://localhost:%d/wd/hub", port))
	if err != nil {
		service.Stop()
		cfg.Ports.Release(port)
		return nil, fmt.Errorf("error creating WebDriver: %w", err)
	}
	driver.SetPageLoadTimeout(60 * time.Second)

	b := &SeleniumBrowser{
		service: service,
		driver:  driver,
		ports:   cfg.Ports,
		port:    port,
		logger:  logger.Named("selenium"),
		events:  make(chan Event, 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.watch(cfg.WatchInterval)
	return b, nil
}

// watch reports URL and ready-state changes as events.
func (b *SeleniumBrowser) watch(interval time.Duration) {
	defer close(b.done)
	defer close(b.events)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastURL, lastStage string
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		url, urlErr := b.driver.CurrentURL()
		stage, stageErr := b.driver.ExecuteScript("return document.readyState", nil)
		b.mu.Unlock()

		if urlErr == nil && url != lastURL && url != "" && url != "about:blank" {
			lastURL = url
			lastStage = ""
			b.send(Event{Kind: EventNavigated, URL: url})
		}
		if s, ok := stage.(string); stageErr == nil && ok && s != lastStage {
			lastStage = s
			b.send(Event{Kind: EventProgress, URL: lastURL, Stage: s})
		}
	}
}

func (b *SeleniumBrowser) send(ev Event) {
	select {
	case b.events <- ev:
	case <-b.stop:
	}
}

func (b *SeleniumBrowser) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.driver.Get(url); err != nil {
		return fmt.Errorf("navigation error: %w", err)
	}
	return ctx.Err()
}

func (b *SeleniumBrowser) GoBack(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.driver.Back(); err != nil {
		return fmt.Errorf("back error: %w", err)
	}
	return ctx.Err()
}

func (b *SeleniumBrowser) Page(ctx context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		p   Page
		err error
	)
	if p.URL, err = b.driver.CurrentURL(); err != nil {
		return Page{}, fmt.Errorf("current url error: %w", err)
	}
	if p.Title, err = b.driver.Title(); err != nil {
		return Page{}, fmt.Errorf("title error: %w", err)
	}
	if p.HTML, err = b.driver.PageSource(); err != nil {
		return Page{}, fmt.Errorf("page source error: %w", err)
	}
	return p, ctx.Err()
}

func (b *SeleniumBrowser) Events() <-chan Event {
	return b.events
}

func (b *SeleniumBrowser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done

		b.mu.Lock()
		err = b.driver.Quit()
		b.mu.Unlock()
		if stopErr := b.service.Stop(); err == nil {
			err = stopErr
		}
		b.ports.Release(b.port)
	})
	return err
}
