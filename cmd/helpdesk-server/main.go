package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lpernett/godotenv"
	"github.com/redis/go-redis/v9"

	"helpdesk/internal/config"
	"helpdesk/internal/domain"
	"helpdesk/internal/engine"
	"helpdesk/internal/extract"
	"helpdesk/internal/orchestrator"
	"helpdesk/internal/render"
	"helpdesk/internal/schema"
	"helpdesk/internal/session"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file loaded")
	}

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	// An invalid intent schema must block startup.
	registry, err := schema.Load(cfg.IntentsPath)
	if err != nil {
		logger.Error("load intent schema failed", "path", cfg.IntentsPath, "error", err)
		os.Exit(1)
	}
	logger.Info("intent schema loaded", "path", cfg.IntentsPath, "intents", len(registry.List()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		logger.Error("init state store failed", "backend", cfg.StateBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	extractor := extract.NewClient(cfg.ExtractorBaseURL, cfg.ExtractorTimeout)

	var renderer render.Renderer
	if remote := render.NewClient(cfg.RendererBaseURL, cfg.RendererTimeout); remote.Enabled() {
		renderer = remote
	} else {
		logger.Info("no remote renderer configured, using intent templates")
		renderer = render.NewTemplateRenderer(registry)
	}

	svc := orchestrator.New(orchestrator.Config{
		Thresholds: engine.Thresholds{
			MinAcceptConfidence:  cfg.MinAcceptConfidence,
			ReclassifyConfidence: cfg.ReclassifyConfidence,
		},
		HistoryLimit:   cfg.HistoryLimit,
		ExtractTimeout: cfg.ExtractorTimeout,
		RenderTimeout:  cfg.RendererTimeout,
	}, registry, store, extractor, renderer, logger)

	go runExpiryWorker(ctx, svc, cfg.SessionIdleTimeout, cfg.ExpiryScanInterval, logger)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Post("/v1/chat", func(w http.ResponseWriter, req *http.Request) {
		var chatReq domain.ChatRequest
		if err := json.NewDecoder(req.Body).Decode(&chatReq); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}
		if chatReq.Message == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "message is required"})
			return
		}

		reply, err := svc.HandleMessage(req.Context(), chatReq.SessionID, chatReq.Message)
		if err != nil {
			logger.Error("chat turn failed", "session_id", chatReq.SessionID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, reply)
	})
	r.Post("/v1/sessions/{sessionID}/reset", func(w http.ResponseWriter, req *http.Request) {
		sessionID := chi.URLParam(req, "sessionID")
		if err := svc.ResetSession(req.Context(), sessionID); err != nil {
			logger.Error("reset failed", "session_id", sessionID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/v1/intents", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"intents": svc.ListIntents()})
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("helpdesk server started", "addr", cfg.HTTPAddr, "backend", string(cfg.StateBackend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

func newStore(ctx context.Context, cfg config.ServerConfig) (session.Store, func(), error) {
	switch cfg.StateBackend {
	case config.BackendPostgres:
		store, err := session.NewPostgresStore(ctx, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, nil, err
		}
		return session.NewRedisStore(client, cfg.SessionIdleTimeout), func() { _ = client.Close() }, nil
	default:
		return session.NewMemoryStore(), func() {}, nil
	}
}

// runExpiryWorker periodically drops sessions that have been idle past the
// configured timeout.
func runExpiryWorker(ctx context.Context, svc *orchestrator.Service, idleTimeout, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := svc.ExpireIdleSessions(ctx, idleTimeout)
			if err != nil {
				logger.Warn("session expiry scan failed", "error", err)
				continue
			}
			if count > 0 {
				logger.Info("expired idle sessions", "count", count)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
