package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sjsage522/runewatcher/config"
	"sjsage522/runewatcher/internal/browser"
	"sjsage522/runewatcher/internal/catalog"
	"sjsage522/runewatcher/internal/crawler"
	"sjsage522/runewatcher/internal/extractor"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/internal/pagewatch"
	"sjsage522/runewatcher/internal/server"
	"sjsage522/runewatcher/internal/store"
	"sjsage522/runewatcher/logger"
	"sjsage522/runewatcher/services/cache"
	"sjsage522/runewatcher/services/gist"
	"sjsage522/runewatcher/services/notifier"
	"sjsage522/runewatcher/services/publisher"
	"sjsage522/runewatcher/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("store", cfg.StoreBackend).
		Bool("render_pages", cfg.RenderPages).
		Bool("watch_pages", cfg.WatchPages).
		Msg("Starting application")

	// Cancel everything on SIGINT / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	crawlers := crawler.CreateCrawlers(cfg, services.Cache, services.renderer(), services.Profiles, services.Catalog)
	if len(crawlers) == 0 {
		log.Fatal().Msg("No crawlers were created")
	}
	log.Info().Int("crawler_count", len(crawlers)).Msg("Created crawlers")

	opts := []worker.Option{worker.WithNotifier(services.Notifier)}
	if services.Gist != nil {
		opts = append(opts, worker.WithArchiver(services.Gist))
	}
	w := worker.NewWorker(crawlers, services.Store, services.Publisher, opts...)

	if cfg.WatchPages {
		services.startWatchers(ctx, cfg, w)
	}

	log.Info().Msg("Starting rune price worker")
	workerDone := runWorker(ctx, w)

	api := server.New(services.Store, w)
	if err := api.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		log.Error().Err(err).Msg("HTTP server exited with error")
	}

	// Graceful shutdown: the worker must leave apply before the store and
	// publisher are closed
	log.Info().Msg("Shutting down gracefully...")
	stop()
	<-workerDone
}

// starter is the long-running part of the worker
type starter interface {
	Start(ctx context.Context)
}

// runWorker starts w in the background. The returned channel is closed
// once Start has returned.
func runWorker(ctx context.Context, w starter) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx)
	}()
	return done
}

// Services holds all the initialized services
type Services struct {
	Catalog   *catalog.Catalog
	Profiles  map[models.Marketplace]extractor.Profile
	Store     store.Store
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Browser   *browser.Browser
	Notifier  *notifier.Notifier
	Gist      *gist.Client

	watchers []*pagewatch.Watcher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	for _, wt := range s.watchers {
		wt.Close()
	}
	if s.Browser != nil {
		s.Browser.Close()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// renderer returns the browser as a crawler.Renderer, or nil when no
// browser was started
func (s *Services) renderer() crawler.Renderer {
	if s.Browser == nil {
		return nil
	}
	return s.Browser
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{Catalog: catalog.Default()}

	profiles, err := extractor.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		return nil, err
	}
	services.Profiles = profiles

	st, err := store.Open(ctx, store.Config{
		Backend:   cfg.StoreBackend,
		Path:      cfg.StorePath,
		RedisAddr: cfg.RedisAddr,
		RedisDB:   cfg.RedisDB,
		KeyPrefix: "runewatcher",
	}, services.Catalog)
	if err != nil {
		return nil, err
	}
	services.Store = st
	logger.Info("Opened %s store", cfg.StoreBackend)

	// Initialize cache service
	services.Cache = cache.NewMemoryCache()
	if cfg.MemcacheAddr != "" {
		memcacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := memcacheService.Ping(); err != nil {
			logger.ForCache().Warn().Err(err).Msg("Memcache unavailable, keeping rate-limit markers in memory")
		} else {
			services.Cache = memcacheService
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}

	// Initialize publisher
	services.Publisher = publisher.NopPublisher{}
	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLength)
		if err := redisPublisher.Ping(ctx); err != nil {
			logger.ForPublisher().Warn().Err(err).Msg("Redis unavailable, price updates will not be published")
			redisPublisher.Close()
		} else {
			services.Publisher = redisPublisher
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
				cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
	}

	// Initialize notification senders
	senders := []notifier.Sender{notifier.NewLogSender(nil)}
	if cfg.TelegramBotToken != "" {
		telegram, err := notifier.NewTelegramSender(cfg.TelegramBotToken, cfg.TelegramChatID, 3, 0)
		if err != nil {
			logger.ForNotifier().Warn().Err(err).Msg("Telegram disabled")
		} else {
			senders = append(senders, telegram)
		}
	}
	services.Notifier = notifier.New(senders...)

	if cfg.GistToken != "" {
		services.Gist = gist.NewClient(cfg.GistToken)
	}

	if cfg.RenderPages || cfg.WatchPages {
		b, err := browser.Connect(ctx, cfg.ChromeURL)
		if err != nil {
			services.Cleanup()
			return nil, err
		}
		services.Browser = b
	}

	return services, nil
}

// startWatchers opens every marketplace page and keeps extracting from it
func (s *Services) startWatchers(ctx context.Context, cfg *config.Config, sink pagewatch.Sink) {
	for _, conf := range crawler.Configurations(cfg, s.Profiles) {
		if conf.URL == "" {
			continue
		}
		log := logger.ForPage(string(conf.Marketplace), conf.URL)

		page, err := s.Browser.Open(ctx, conf.URL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open page")
			continue
		}

		ex := crawler.NewExtractor(cfg, conf.Profile, s.Catalog, log)
		wt := pagewatch.New(page, ex, conf.Marketplace, sink,
			pagewatch.WithInterval(cfg.PageInterval),
			pagewatch.WithDebounce(cfg.PageDebounce),
		)
		s.watchers = append(s.watchers, wt)

		go func() {
			if err := wt.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Page watcher stopped")
			}
		}()
	}
}
