package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sjsage522/runewatcher/internal/arbitrage"
	"sjsage522/runewatcher/internal/crawler"
	"sjsage522/runewatcher/internal/export"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/internal/store"
	"sjsage522/runewatcher/logger"
	"sjsage522/runewatcher/pkg/errors"
	"sjsage522/runewatcher/services/notifier"
	"sjsage522/runewatcher/services/publisher"
)

// Alerter delivers a notification
type Alerter interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// Archiver keeps a copy of the snapshot somewhere else
type Archiver interface {
	Archive(ctx context.Context, doc export.Document) error
}

// PriceUpdate is the event published after every applied result
type PriceUpdate struct {
	Event       string             `json:"event"`
	RunID       string             `json:"runId,omitempty"`
	Marketplace models.Marketplace `json:"marketplace"`
	Source      string             `json:"source"`
	Updated     int                `json:"updated"`
	Timestamp   time.Time          `json:"timestamp"`
	Prices      models.PriceTable  `json:"prices"`
}

// Worker collects prices from every marketplace, stores them and raises
// alerts
type Worker struct {
	crawlers  []crawler.Crawler
	store     store.Store
	publisher publisher.Publisher
	notifier  Alerter
	archiver  Archiver
	logger    *logger.Logger
	now       func() time.Time

	refreshMu sync.Mutex

	applyMu sync.Mutex
	alerted string
}

// Option configures a Worker
type Option func(*Worker)

// WithNotifier sets where alerts go
func WithNotifier(n Alerter) Option {
	return func(w *Worker) { w.notifier = n }
}

// WithArchiver archives a snapshot after every refresh that stored prices
func WithArchiver(a Archiver) Option {
	return func(w *Worker) { w.archiver = a }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// NewWorker creates a new worker
func NewWorker(crawlers []crawler.Crawler, st store.Store, pub publisher.Publisher, opts ...Option) *Worker {
	if pub == nil {
		pub = publisher.NopPublisher{}
	}
	w := &Worker{
		crawlers:  crawlers,
		store:     st,
		publisher: pub,
		logger:    logger.ForWorker(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start refreshes immediately and then on the interval from the stored
// settings, re-read every cycle, until ctx is done
func (w *Worker) Start(ctx context.Context) {
	for {
		start := time.Now()
		result := w.Refresh(ctx)
		w.logger.Info().
			Str("run_id", result.RunID).
			Dur("elapsed", time.Since(start)).
			Bool("succeeded", result.Succeeded()).
			Msg("Refresh finished")

		interval := w.interval(ctx)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info().Msg("Worker stopped")
			return
		case <-timer.C:
		}
	}
}

func (w *Worker) interval(ctx context.Context) time.Duration {
	settings, err := w.store.LoadSettings(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to load settings, using default interval")
		return models.DefaultSettings().RefreshInterval()
	}
	return settings.Normalize().RefreshInterval()
}

// Refresh runs every crawler concurrently. Each marketplace result is
// applied on its own; a failed marketplace never touches the store.
func (w *Worker) Refresh(ctx context.Context) models.RefreshResult {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	result := models.RefreshResult{
		RunID:     uuid.NewString(),
		StartedAt: w.now().UTC(),
		Outcomes:  make([]models.Outcome, len(w.crawlers)),
	}
	log := w.logger.WithField("run_id", result.RunID)

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range w.crawlers {
		i, c := i, c
		g.Go(func() error {
			result.Outcomes[i] = w.collect(gctx, result.RunID, c, log)
			return nil
		})
	}
	_ = g.Wait()

	if err := w.publisher.TrimStreams(); err != nil {
		logger.LogError("StreamTrimming", err, "failed to trim streams")
	}

	table, err := w.store.Snapshot(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read prices after refresh")
	} else {
		result.Prices = table
		if result.Succeeded() {
			w.archive(ctx, table)
		}
	}

	result.FinishedAt = w.now().UTC()
	if failed := result.Failed(); len(failed) > 0 {
		log.Warn().Int("failed", len(failed)).Msg("Some marketplaces failed")
	}
	return result
}

func (w *Worker) collect(ctx context.Context, runID string, c crawler.Crawler, log *logger.Logger) models.Outcome {
	m := c.GetMarketplace()
	outcome := models.Outcome{Marketplace: m}
	log = log.WithFields(logger.Fields{"crawler": c.GetName(), "marketplace": string(m)})

	prices, err := c.FetchPrices(ctx)
	if err != nil {
		outcome.Status = models.OutcomeFailed
		outcome.Error = err.Error()
		if errors.Is(err, errors.ErrorTypeRateLimit) {
			log.Warn().Err(err).Msg("Marketplace is rate limited")
		} else {
			log.Error().Err(err).Msg("Failed to fetch prices")
		}
		return outcome
	}

	if len(prices) == 0 {
		outcome.Status = models.OutcomeEmpty
		log.Warn().Msg("No rune prices found")
		return outcome
	}

	updated, err := w.apply(ctx, runID, m, prices, "crawler:"+c.GetName())
	if err != nil {
		outcome.Status = models.OutcomeFailed
		outcome.Error = err.Error()
		log.Error().Err(err).Msg("Failed to store prices")
		return outcome
	}

	outcome.Status = models.OutcomeSuccess
	outcome.Count = updated
	log.Info().Int("updated", updated).Msg("Prices stored")
	return outcome
}

// HandlePagePrices applies a result pushed from a watched page
func (w *Worker) HandlePagePrices(ctx context.Context, req models.PagePricesRequest) (models.Response, error) {
	m, ok := models.ParseMarketplace(string(req.Marketplace))
	if !ok {
		return models.Response{Success: false, Error: "unknown marketplace"},
			errors.NewValidation("page-prices", fmt.Sprintf("unknown marketplace %q", req.Marketplace))
	}

	if len(req.Prices) == 0 {
		w.logger.Warn().Str("marketplace", string(m)).Str("url", req.URL).Msg("Page reported no rune prices")
		return models.Response{Success: true}, nil
	}

	source := "page"
	if req.URL != "" {
		source = "page:" + req.URL
	}
	updated, err := w.apply(ctx, "", m, req.Prices, source)
	if err != nil {
		return models.Response{Success: false, Error: err.Error()}, err
	}

	table, err := w.store.Snapshot(ctx)
	if err != nil {
		return models.Response{Success: true, Received: updated}, nil
	}
	return models.Response{Success: true, Received: updated, Prices: table}, nil
}

// apply stores one marketplace result, announces it and checks for alerts.
// Results are applied one at a time so the alert state follows store order.
func (w *Worker) apply(ctx context.Context, runID string, m models.Marketplace, prices models.PriceMap, source string) (int, error) {
	w.applyMu.Lock()
	at := w.now().UTC()
	table, updated, err := w.store.Apply(ctx, m, prices, at)
	if err != nil || updated == 0 {
		w.applyMu.Unlock()
		return 0, err
	}

	w.publish(PriceUpdate{
		Event:       publisher.EventPricesUpdated,
		RunID:       runID,
		Marketplace: m,
		Source:      source,
		Updated:     updated,
		Timestamp:   at,
		Prices:      table,
	})
	note, alert := w.checkAlert(ctx, table)
	w.applyMu.Unlock()

	if alert && w.notifier != nil {
		if err := w.notifier.Notify(ctx, note); err != nil {
			w.logger.Warn().Err(err).Str("rune", note.Code).Msg("Alert delivery incomplete")
		}
	}
	return updated, nil
}

func (w *Worker) publish(update PriceUpdate) {
	message, err := json.Marshal(update)
	if err != nil {
		logger.LogError("Publisher", err, "failed to encode price update")
		return
	}
	if err := w.publisher.Publish(publisher.EventPricesUpdated, message); err != nil {
		logger.LogError("Publisher", err, "failed to publish price update for %s", update.Marketplace)
	}
}

// checkAlert fires once per threshold crossing, and again only when a
// different rune becomes the best. Callers hold applyMu.
func (w *Worker) checkAlert(ctx context.Context, table models.PriceTable) (notifier.Notification, bool) {
	settings, err := w.store.LoadSettings(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to load settings for alerting")
		return notifier.Notification{}, false
	}
	settings = settings.Normalize()

	opps := arbitrage.Rank(table, arbitrage.FilterFromSettings(settings), settings.SortBy)
	best, ok := arbitrage.Alert(opps, settings)
	if !ok {
		w.alerted = ""
		return notifier.Notification{}, false
	}
	if best.Record.Code == w.alerted {
		return notifier.Notification{}, false
	}
	w.alerted = best.Record.Code

	return notifier.Notification{
		Code:        best.Record.Code,
		DisplayName: best.Record.DisplayName,
		Profit:      best.Profit,
		At:          w.now().UTC(),
	}, true
}

func (w *Worker) archive(ctx context.Context, table models.PriceTable) {
	if w.archiver == nil {
		return
	}
	settings, err := w.store.LoadSettings(ctx)
	if err != nil {
		settings = models.DefaultSettings()
	}
	settings = settings.Normalize()

	opps := arbitrage.Rank(table, arbitrage.FilterFromSettings(settings), settings.SortBy)
	if err := w.archiver.Archive(ctx, export.Build(table, opps, w.now())); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to archive snapshot")
	}
}
