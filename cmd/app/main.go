package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/config"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/ports/repository"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/adapters/agentapi"
	pg "github.com/Master-Gamer-glitch/HelixHeal/internal/infra/db/postgres"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/logging"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/metrics"
	red "github.com/Master-Gamer-glitch/HelixHeal/internal/infra/redis"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/sched"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/web"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Agent API client ----
	agent, err := agentapi.NewClient(cfg.Agent.BaseURL, cfg.Agent.RequestTimeout, logger)
	if err != nil {
		log.Fatalf("agent client: %v", err)
	}
	if err := agent.Health(ctx); err != nil {
		logger.Warn().Err(err).Str("base_url", cfg.Agent.BaseURL).Msg("agent service not reachable yet")
	} else {
		logger.Info().Str("base_url", cfg.Agent.BaseURL).Msg("agent service reachable")
	}

	// ---- Run archive (optional) ----
	var archive repository.RunArchive
	if cfg.Database.URL != "" {
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		repo := pg.NewRunArchiveRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
		archive = repo
	} else {
		logger.Warn().Msg("database.url not set; run history and leaderboard disabled")
	}

	// ---- Snapshot cache (optional) ----
	var cache repository.SnapshotCache
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		cache = red.NewSnapshotCache(redisClient, cfg.Redis.TTL)
	} else {
		logger.Warn().Msg("redis.url not set; snapshot cache disabled")
	}

	// ---- Core ----
	tracker := usecase.NewJobTracker()
	runner := sched.NewRunner(tracker, agent, archive, cache, nil, cfg.Agent.PollInterval, logger)
	defer runner.Close()

	// ---- Web ----
	var auth *web.AuthManager
	if cfg.Admin.JWTSecret != "" {
		auth = web.NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, cfg.Admin.SessionTTL)
	}
	srv := web.NewServer(runner, archive, cache, auth, cfg.Admin.APIKey, cfg.Server.CORSOrigins, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Routes(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("dashboard API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	cancel()
}
