// Package app is the composition root: it wires every internal package
// into a running ARCP server, grounded on the teacher's internal/app.Run
// (config -> infra clients -> metrics registry -> route mounting ->
// http.Server with graceful shutdown), generalized from nightowl's
// Postgres/worker-mode split to ARCP's single HTTP-API process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/0x00K1/arcp/internal/agentsapi"
	"github.com/0x00K1/arcp/internal/authapi"
	"github.com/0x00K1/arcp/internal/config"
	"github.com/0x00K1/arcp/internal/embeddings"
	"github.com/0x00K1/arcp/internal/httpserver"
	"github.com/0x00K1/arcp/internal/lifecycle"
	"github.com/0x00K1/arcp/internal/notify"
	"github.com/0x00K1/arcp/internal/permissions"
	"github.com/0x00K1/arcp/internal/publicapi"
	"github.com/0x00K1/arcp/internal/ratelimit"
	"github.com/0x00K1/arcp/internal/registry"
	"github.com/0x00K1/arcp/internal/search"
	"github.com/0x00K1/arcp/internal/session"
	"github.com/0x00K1/arcp/internal/storage"
	"github.com/0x00K1/arcp/internal/telemetry"
	"github.com/0x00K1/arcp/internal/tokens"
	"github.com/0x00K1/arcp/internal/wsapi"
)

// Run builds and serves the ARCP registry until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting arcp", "listen", cfg.ListenAddr())

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)
	_ = metricsReg // registered for in-process export; no HTTP /metrics surface per spec non-goals

	rdb, err := storage.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
		logger.Info("redis backend configured", "url_set", true)
	} else {
		logger.Info("redis backend not configured, using in-process fallback storage")
	}
	store := storage.New(rdb, cfg.RedisReconnectInterval)

	embedder := buildEmbeddingProvider(cfg, logger)

	bus := notify.New()
	busCtx, stopBus := context.WithCancel(ctx)
	defer stopBus()
	go bus.Run(busCtx)

	reg := registry.New(cfg.AgentHeartbeatTimeout, embedder, 5*time.Second, bus, store)

	manager := lifecycle.New(reg, lifecycle.Config{
		HeartbeatTimeout: cfg.AgentHeartbeatTimeout,
		CleanupInterval:  cfg.AgentCleanupInterval,
		CleanupMinThresh: cfg.AgentCleanupMinThresh,
	}, logger)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting lifecycle manager: %w", err)
	}
	defer manager.Stop()

	engine := search.New(reg, embedder)
	engine.SetDefaults(cfg.VectorSearchTopK, cfg.VectorMinSimilarity)

	tokenSvc := tokens.New(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.JWTExpireMinutes, cfg.TempTokenMaxMins)
	sessions := session.New(cfg.SessionTimeout)

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.Enabled = cfg.RateLimitEnabled
	limiter := ratelimit.New(rlCfg, store)

	auth, err := authapi.New(authapi.Config{
		AdminUsername:    cfg.AdminUsername,
		AdminPassword:    cfg.AdminPassword,
		AgentKeys:        cfg.AgentKeys,
		SessionTimeout:   cfg.SessionTimeout,
		JWTExpireMinutes: cfg.JWTExpireMinutes,
	}, tokenSvc, sessions, limiter, logger)
	if err != nil {
		return fmt.Errorf("initializing auth service: %w", err)
	}

	agents := agentsapi.New(manager, engine, logger)
	agents.SetAllowedAgentTypes(cfg.AllowedAgentTypes)

	public := publicapi.New(manager, engine, logger, 10*time.Second)
	streams := wsapi.New(bus, manager, logger, cfg.WebsocketTimeout)

	srv := httpserver.NewServer(logger, store, embedder, httpserver.Options{})
	srv.MountHealthDetailed(auth.Require(permissions.LevelAdmin))

	auth.Mount(srv.API)
	agents.Mount(srv.API, auth)
	public.Mount(srv.API)
	streams.Mount(srv.API)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("arcp server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down arcp server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildEmbeddingProvider returns an Azure OpenAI-backed provider when
// AZURE_OPENAI_ENDPOINT/API_KEY/EMBEDDING_DEPLOYMENT are all set, else a
// NullProvider so search falls back to lexical scoring.
func buildEmbeddingProvider(cfg *config.Config, logger *slog.Logger) embeddings.Provider {
	if cfg.AzureOpenAIEndpoint == "" || cfg.AzureOpenAIAPIKey == "" || cfg.AzureEmbeddingDeploy == "" {
		logger.Info("embedding provider disabled, falling back to lexical search (AZURE_OPENAI_* not fully configured)")
		return embeddings.NullProvider{}
	}
	logger.Info("azure openai embedding provider configured", "deployment", cfg.AzureEmbeddingDeploy)
	return embeddings.NewAzureProvider(
		cfg.AzureOpenAIEndpoint,
		cfg.AzureOpenAIAPIKey,
		cfg.AzureOpenAIAPIVersion,
		cfg.AzureEmbeddingDeploy,
		10*time.Second,
	)
}
