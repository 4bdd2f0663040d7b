// Package pagewatch keeps a marketplace page open and reports its rune
// prices whenever the page changes or the periodic timer fires.
package pagewatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"sjsage522/runewatcher/internal/extractor"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/logger"
)

const (
	// DefaultInterval is the periodic extraction interval
	DefaultInterval = 30 * time.Second
	// DefaultDebounce is the quiet time after the last mutation
	DefaultDebounce = time.Second
)

// ErrRunning is returned when Run is called on a watcher already running
var ErrRunning = errors.New("pagewatch: already running")

// Page is an open page that can be read and observed
type Page interface {
	HTML(ctx context.Context) (string, error)
	Mutations() <-chan struct{}
	URL() string
	Close() error
}

// Sink receives the prices found on the page
type Sink interface {
	HandlePagePrices(ctx context.Context, req models.PagePricesRequest) (models.Response, error)
}

// Watcher runs extraction passes for one page
type Watcher struct {
	page        Page
	extractor   *extractor.Extractor
	marketplace models.Marketplace
	sink        Sink
	interval    time.Duration
	debounce    time.Duration
	logger      *logger.Logger

	mu        sync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Watcher
type Option func(*Watcher)

// WithInterval sets the periodic pass interval
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounce sets the quiet time after mutations
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for page
func New(page Page, ex *extractor.Extractor, m models.Marketplace, sink Sink, opts ...Option) *Watcher {
	w := &Watcher{
		page:        page,
		extractor:   ex,
		marketplace: m,
		sink:        sink,
		interval:    DefaultInterval,
		debounce:    DefaultDebounce,
		logger:      logger.ForPage(string(m), page.URL()),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run extracts once, then again on every tick and after each burst of
// mutations settles. It returns when ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	select {
	case <-w.stop:
		w.mu.Unlock()
		return nil
	default:
	}
	if w.running {
		w.mu.Unlock()
		return ErrRunning
	}
	w.running = true
	w.mu.Unlock()
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	w.logger.Info().
		Dur("interval", w.interval).
		Dur("debounce", w.debounce).
		Msg("Watching page")

	w.pass(ctx, "initial")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var settle *time.Timer
	var settleC <-chan time.Time
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	mutations := w.page.Mutations()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.pass(ctx, "periodic")
		case _, ok := <-mutations:
			if !ok {
				mutations = nil
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.NewTimer(w.debounce)
			settleC = settle.C
		case <-settleC:
			settleC = nil
			w.pass(ctx, "mutation")
		}
	}
}

// pass reads the page once and forwards what it finds
func (w *Watcher) pass(ctx context.Context, trigger string) {
	markup, err := w.page.HTML(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn().Err(err).Str("trigger", trigger).Msg("Failed to read page")
		}
		return
	}

	prices := w.extractor.ExtractHTML(markup)
	if len(prices) == 0 {
		w.logger.Debug().Str("trigger", trigger).Msg("No rune prices on page")
		return
	}

	req := models.PagePricesRequest{
		Marketplace: w.marketplace,
		Prices:      prices,
		Timestamp:   time.Now().UTC(),
		URL:         w.page.URL(),
	}
	if _, err := w.sink.HandlePagePrices(ctx, req); err != nil {
		w.logger.Warn().Err(err).Str("trigger", trigger).Msg("Failed to deliver page prices")
		return
	}
	w.logger.Debug().Str("trigger", trigger).Int("runes", len(prices)).Msg("Page prices delivered")
}

// Close stops the watcher and closes the page. It is safe to call more
// than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)

		w.mu.Lock()
		running := w.running
		w.mu.Unlock()
		if running {
			<-w.done
		}

		w.closeErr = w.page.Close()
	})
	return w.closeErr
}
