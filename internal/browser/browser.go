// Package browser renders marketplace pages in headless Chrome through Rod.
// It is used for pages that only show prices after client-side rendering.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sjsage522/runewatcher/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const navigateTimeout = 30 * time.Second

// Browser owns one Chrome connection
type Browser struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   *logger.Logger
}

// Connect attaches to the Chrome at controlURL, or launches a local
// headless Chrome when controlURL is empty
func Connect(ctx context.Context, controlURL string) (*Browser, error) {
	log := logger.ForBrowser()

	b := &Browser{logger: log}
	wsURL := controlURL
	if wsURL == "" {
		l := launcher.New().
			Context(ctx).
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		b.launcher = l
		log.Info().Str("url", wsURL).Msg("Launched local chrome")
	} else {
		log.Info().Str("url", wsURL).Msg("Connecting to remote chrome")
	}

	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		if b.launcher != nil {
			b.launcher.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	b.browser = rb
	return b, nil
}

// open creates a stealth tab and waits for the page to load
func (b *Browser) open(ctx context.Context, url string) (*rod.Page, error) {
	b.mu.Lock()
	rb := b.browser
	b.mu.Unlock()
	if rb == nil {
		return nil, fmt.Errorf("browser: closed")
	}

	page, err := stealth.Page(rb)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.logger.Warn().Str("url", url).Err(err).Msg("Wait load timeout")
	}
	return page, nil
}

// Render loads url and returns the resolved document markup
func (b *Browser) Render(ctx context.Context, url string) (string, error) {
	page, err := b.open(ctx, url)
	if err != nil {
		return "", err
	}
	defer page.Close()

	markup, err := page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: read DOM of %s: %w", url, err)
	}
	return markup, nil
}

// Open loads url and keeps the tab alive for watching
func (b *Browser) Open(ctx context.Context, url string) (*Page, error) {
	page, err := b.open(ctx, url)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	p := &Page{
		page:      page,
		url:       url,
		mutations: make(chan struct{}, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if err := p.subscribe(watchCtx); err != nil {
		cancel()
		page.Close()
		return nil, err
	}
	return p, nil
}

// Close disconnects and, for a launched Chrome, kills the process
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
		b.launcher = nil
	}
	return err
}

// Page is a live tab whose DOM changes are reported as signals
type Page struct {
	page      *rod.Page
	url       string
	mutations chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// subscribe enables the DOM domain and turns every DOM event into a
// coalesced signal
func (p *Page) subscribe(ctx context.Context) error {
	if err := (proto.DOMEnable{}).Call(p.page); err != nil {
		return fmt.Errorf("browser: enable DOM events: %w", err)
	}
	// nodes are only reported once the client has requested them
	depth := -1
	if _, err := (proto.DOMGetDocument{Depth: &depth}).Call(p.page); err != nil {
		return fmt.Errorf("browser: track DOM: %w", err)
	}

	signal := func() {
		select {
		case p.mutations <- struct{}{}:
		default:
		}
	}

	wait := p.page.Context(ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) { signal() },
		func(e *proto.DOMChildNodeRemoved) { signal() },
		func(e *proto.DOMChildNodeCountUpdated) { signal() },
		func(e *proto.DOMCharacterDataModified) { signal() },
		func(e *proto.DOMAttributeModified) { signal() },
		func(e *proto.DOMDocumentUpdated) {
			signal()
			// a new document drops the node tracking
			go func() {
				_, _ = (proto.DOMGetDocument{Depth: &depth}).Call(p.page)
			}()
		},
	)
	go func() {
		defer close(p.done)
		wait()
	}()
	return nil
}

// HTML returns the current document markup
func (p *Page) HTML(ctx context.Context) (string, error) {
	markup, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: read DOM of %s: %w", p.url, err)
	}
	return markup, nil
}

// Mutations signals, at most once per burst, that the DOM changed
func (p *Page) Mutations() <-chan struct{} {
	return p.mutations
}

// URL returns the page address
func (p *Page) URL() string {
	return p.url
}

// Close stops the event subscription and closes the tab. Safe to call
// more than once.
func (p *Page) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
		err = p.page.Close()
	})
	return err
}
