package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/thudgame/relay/internal/config"
	"github.com/thudgame/relay/internal/archive"
	"github.com/thudgame/relay/internal/dispatch"
	"github.com/thudgame/relay/internal/game"
	"github.com/thudgame/relay/internal/layout"
	"github.com/thudgame/relay/internal/obslog"
	"github.com/thudgame/relay/internal/oracle"
	"github.com/thudgame/relay/internal/store"
	"github.com/thudgame/relay/internal/transport"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	logger := obslog.L()
	defer logger.Sync()

	layouts, err := layout.New(cfg.LayoutDir)
	if err != nil {
		logger.Fatal("layout_init_error", zap.Error(err))
	}

	rules, err := oracle.NewClient(cfg.OraclePath, cfg.OracleTimeout, logger)
	if err != nil {
		logger.Fatal("oracle_init_error", zap.String("path", cfg.OraclePath), zap.Error(err))
	}

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		logger.Fatal("store_init_error", zap.Error(err))
	}
	defer closeStore()

	registry, err := game.NewRegistry(game.RegistryConfig{
		Rules:    rules,
		Store:    st,
		Layouts:  layouts,
		Ruleset:  cfg.Ruleset,
		MaxGames: cfg.MaxConcurrentGames,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("registry_init_error", zap.Error(err))
	}

	notifier := archive.NewNotifier(cfg.ArchiveWebhookURL, logger)
	dispatcher := dispatch.New(registry, notifier, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", transport.NewServer(dispatcher, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen",
			zap.String("addr", cfg.ListenAddr),
			zap.String("ruleset", cfg.Ruleset),
		)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server_error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_error", zap.Error(err))
	}
	logger.Info("server_stopped", zap.Int("live_games", registry.Len()))
}

// buildStore picks the persistence backend from the configured URLs.
// Postgres wins over Redis when both are set; with neither, games live
// only in process memory.
func buildStore(cfg *appcfg.AppConfig) (store.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	case cfg.RedisURL != "":
		rd, err := store.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return rd, func() { _ = rd.Close() }, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}
