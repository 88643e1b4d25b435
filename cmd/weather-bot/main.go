package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/glebk/weather-bot/internal/bot"
	"github.com/glebk/weather-bot/internal/config"
	"github.com/glebk/weather-bot/internal/dialog"
	"github.com/glebk/weather-bot/internal/observability"
	"github.com/glebk/weather-bot/internal/openweather"
	"github.com/glebk/weather-bot/internal/repository/sqlite"
	"github.com/glebk/weather-bot/internal/scheduler"
	"github.com/glebk/weather-bot/internal/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("database initialized", zap.String("path", cfg.DatabasePath))

	// Initialize repositories
	sessionRepo := sqlite.NewSessionRepository(db)
	cacheRepo := sqlite.NewCacheRepository(db, cfg.CacheTTL, logger)

	// Initialize upstream client and service
	client, err := openweather.NewClient(openweather.Options{
		APIKey:         cfg.WeatherAPIKey,
		BaseURL:        cfg.WeatherAPIURL,
		ProBaseURL:     cfg.WeatherProAPIURL,
		Lang:           cfg.WeatherLang,
		Timeout:        cfg.UpstreamTimeout,
		Retries:        cfg.UpstreamRetries,
		RetryDelay:     cfg.UpstreamRetryDelay,
		RateRPS:        cfg.UpstreamRateRPS,
		RateBurst:      cfg.UpstreamRateBurst,
		BreakerTimeout: cfg.BreakerTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create weather client", zap.Error(err))
	}
	weatherService := service.NewWeatherService(client, cacheRepo, logger,
		service.WithFetchTimeout(cfg.TurnTimeout))

	// Initialize bot
	sender, err := bot.NewSender(cfg.TelegramToken, logger)
	if err != nil {
		logger.Fatal("failed to initialize bot", zap.Error(err))
	}
	engine := dialog.NewEngine(sessionRepo, weatherService, sender, logger,
		dialog.WithLocation(time.Local),
		dialog.WithPendingTimeout(cfg.DialogPendingTimeout))
	telegramBot := bot.New(sender, engine, cfg.TurnTimeout, logger)

	notifier, err := scheduler.NewNotifier(sessionRepo, weatherService, sender, cacheRepo, scheduler.Options{
		Interval:    cfg.NotifyInterval,
		Concurrency: cfg.NotifyConcurrency,
		SweepAge:    cfg.CacheSweepAge,
		NotifyHour:  cfg.IsNotifyHour,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create notifier", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      newOpsRouter(db),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("ops server starting", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("ops server", zap.Error(err))
			}
		}()
	}

	notifier.Start(ctx)

	logger.Info("bot started")
	done := make(chan struct{})
	go func() {
		telegramBot.Start(ctx)
		close(done)
	}()

	<-ctx.Done()
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("dialog turns still running at shutdown")
	}
	if err := notifier.Stop(shutdownCtx); err != nil {
		logger.Warn("notification cycle interrupted", zap.Error(err))
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server shutdown", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

type pinger interface {
	Ping() error
}

func newOpsRouter(db pinger) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler(db)).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	return router
}

func healthHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := db.Ping(); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
