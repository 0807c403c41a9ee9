package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/varsilias/askdesk/internal/api"
	"github.com/varsilias/askdesk/internal/auth"
	"github.com/varsilias/askdesk/internal/buildinfo"
	"github.com/varsilias/askdesk/internal/chat"
	"github.com/varsilias/askdesk/internal/config"
	"github.com/varsilias/askdesk/internal/endpoint"
	"github.com/varsilias/askdesk/internal/format"
	"github.com/varsilias/askdesk/internal/logging"
	"github.com/varsilias/askdesk/internal/middleware"
	"github.com/varsilias/askdesk/internal/models"
	"github.com/varsilias/askdesk/internal/session"
	"github.com/varsilias/askdesk/internal/ui"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogJSON)
	logger.Info("build", "version", buildinfo.Version, "commit", buildinfo.Commit, "built_at", buildinfo.BuiltAt)

	engine, modelsMgr, model, err := newEngine(cfg, logger)
	if err != nil {
		logger.Error("engine init", "engine", cfg.Engine, "err", err)
		os.Exit(1)
	}
	logger.Info("engine ready", "engine", cfg.Engine, "model", model)

	if cfg.StartupWait > 0 {
		logger.Info("waiting for model backend", "timeout", cfg.StartupWait.String(), "interval", cfg.StartupWaitInterval.String())
		ctxWait, cancel := context.WithTimeout(context.Background(), cfg.StartupWait)
		err := waitForModel(ctxWait, modelsMgr, model, cfg.StartupWaitInterval)
		cancel()
		if err != nil {
			logger.Warn("model backend not ready; serving anyway", "err", err)
		}
	}

	store, closeStore, err := newStore(cfg)
	if err != nil {
		logger.Error("session store init", "backend", cfg.SessionBackend, "err", err)
		os.Exit(1)
	}
	defer closeStore.Close()

	budget, err := chat.NewHistoryBudget(cfg.HistoryMaxTokens)
	if err != nil {
		logger.Error("history budget", "err", err)
		os.Exit(1)
	}
	chatCtrl := chat.NewController(logger, engine, store,
		chat.WithFormatter(format.New(format.WithWrapWidth(cfg.WrapWidth))),
		chat.WithHistoryBudget(budget),
		chat.WithMaxQuestionChars(cfg.MaxQuestionChars),
	)

	mux := chi.NewRouter()
	var (
		gate   func(http.Handler) http.Handler
		uiOpts []ui.Option
	)
	if ac := cfg.Auth(); ac.Enabled() {
		g, err := auth.NewGate(ac, logger)
		if err != nil {
			logger.Error("login gate", "err", err)
			os.Exit(1)
		}
		auth.RegisterRoutes(mux, g)
		gate = g.RequireLogin
		uiOpts = append(uiOpts, ui.WithLogout())
		logger.Info("login gate enabled", "redirect", ac.RedirectURL)
	}

	uih, err := ui.New(logger, chatCtrl, modelsMgr, store, uiOpts...)
	if err != nil {
		logger.Error("ui init", "err", err)
		os.Exit(1)
	}
	ui.RegisterRoutes(mux, uih, gate)
	api.RegisterRoutes(mux, api.NewHandlers(logger, chatCtrl, modelsMgr, store), gate)

	var handler http.Handler = mux
	handler = middleware.Recoverer(logger)(handler)
	handler = middleware.AccessLog(logger)(handler)
	handler = middleware.RequestID()(handler)
	handler = middleware.VersionHeader()(handler)

	// attempts plus backoff must fit inside one response
	writeTimeout := time.Duration(cfg.RetryMaxAttempts)*(cfg.RequestTimeout+cfg.RetryMaxDelay) + 30*time.Second
	server := http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Addr),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}
	logger.Info("server listening", "port", cfg.Addr, "sessions", cfg.SessionBackend)

	errChan := make(chan error, 1)
	go func() { errChan <- server.ListenAndServe() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			closeStore.Close()
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	} else {
		logger.Info("server stopped")
	}
}

func newEngine(cfg *config.Config, log *slog.Logger) (chat.Engine, models.Manager, string, error) {
	switch cfg.Engine {
	case config.EngineOpenAI:
		oc := chat.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
		return chat.NewOpenAIEngine(oc, cfg.OpenAIModel, cfg.OpenAISysmsg, log), models.NewOpenAIManager(oc), cfg.OpenAIModel, nil
	case config.EngineEcho:
		log.Warn("echo engine selected; answers are not real")
		return chat.NewEchoEngine(30 * time.Millisecond), models.NewStaticManager([]string{"echo"}), "echo", nil
	default:
		c, err := endpoint.NewClient(cfg.Endpoint(), log)
		if err != nil {
			return nil, nil, "", err
		}
		mgr := models.NewEndpointManager(cfg.EndpointURL, nil)
		return chat.NewEndpointEngine(c), mgr, models.DeploymentName(cfg.EndpointURL), nil
	}
}

func newStore(cfg *config.Config) (session.Store, io.Closer, error) {
	switch cfg.SessionBackend {
	case config.BackendBolt:
		s, err := session.NewBoltStore(cfg.SessionBoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendPostgres:
		s, err := session.NewPgStore(cfg.PgConn)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return session.NewMemoryStore(), io.NopCloser(nil), nil
	}
}

// waitForModel polls the models manager until model is listed or ctx ends.
func waitForModel(ctx context.Context, mgr models.Manager, model string, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// immediate attempt first
	err := mgr.Healthy(ctx, model)
	for err != nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-ticker.C:
			err = mgr.Healthy(ctx, model)
		}
	}
	return nil
}
