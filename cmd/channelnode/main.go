package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/chanhub/chansync/internal/config"
	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/infrastructure/cache"
	"github.com/chanhub/chansync/internal/infrastructure/chain"
	"github.com/chanhub/chansync/internal/infrastructure/events"
	"github.com/chanhub/chansync/internal/infrastructure/keystore"
	"github.com/chanhub/chansync/internal/infrastructure/memstore"
	"github.com/chanhub/chansync/internal/infrastructure/metrics"
	"github.com/chanhub/chansync/internal/infrastructure/postgres"
	"github.com/chanhub/chansync/internal/p2p/api"
	"github.com/chanhub/chansync/internal/p2p/engine"
	"github.com/chanhub/chansync/internal/p2p/protocol"
	"github.com/chanhub/chansync/internal/p2p/transport"
	"github.com/chanhub/chansync/internal/rules"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx := context.Background()

	keyStore, err := keystore.NewFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("keystore error")
	}
	if len(keyStore.KeyIDs()) == 0 {
		signer, err := protocol.GenerateSigner()
		if err != nil {
			logger.Fatal().Err(err).Msg("generate signer")
		}
		keyStore.Add("ephemeral", signer)
		logger.Warn().Str("identifier", signer.Identifier()).Msg("SIGNING_KEYS not set, using an ephemeral identity")
	}

	inboundRules, err := rules.ParseRules(cfg.InboundRules)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid RULES_INBOUND")
	}
	outboundRules, err := rules.ParseRules(cfg.OutboundRules)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid RULES_OUTBOUND")
	}
	validator, err := rules.NewExpressionValidator(inboundRules, outboundRules)
	if err != nil {
		logger.Fatal().Err(err).Msg("compile rules")
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("db error")
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			logger.Fatal().Err(err).Msg("migration error")
		}
	} else {
		logger.Warn().Msg("DATABASE_URL not set, channel state is kept in memory")
	}

	// infrastructure
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("metrics error")
	}
	hub := events.NewHub()
	chainReader := chain.NewStaticReader()
	registry := engine.NewRegistry()
	tr := transport.New(registry.Resolve, cfg.Peers, cfg.MessagingTimeout, logger)

	// one engine per configured identity
	var caches []*cache.Repository
	for _, keyID := range keyStore.KeyIDs() {
		signer, err := keyStore.GetSigner(ctx, keyID)
		if err != nil {
			logger.Fatal().Err(err).Str("key_id", keyID).Msg("load signer")
		}
		var store channel.Repository
		if pool != nil {
			store = postgres.NewChannelRepository(pool, signer.Identifier())
		} else {
			store = memstore.New()
		}
		cached, err := cache.New(store, cfg.CacheEntries)
		if err != nil {
			logger.Fatal().Err(err).Msg("cache error")
		}
		caches = append(caches, cached)

		e, err := engine.New(engine.Config{
			Store:     cached,
			Chain:     chainReader,
			Messaging: tr,
			External:  validator,
			Signer:    signer,
			Publisher: hub,
			Metrics:   m,
			Logger:    logger.With().Str("key_id", keyID).Logger(),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("engine error")
		}
		if err := registry.Register(e); err != nil {
			logger.Fatal().Err(err).Msg("register engine")
		}
		logger.Info().Str("key_id", keyID).Str("identifier", e.Identifier()).Msg("identity loaded")
	}
	defer func() {
		for _, c := range caches {
			c.Close()
		}
	}()

	apiServer := api.NewServer(registry, tr, hub, logger, api.WithStaticChain(chainReader), api.WithMetrics(reg))
	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Int("peers", len(cfg.Peers)).Msg("channel node listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	hub.Stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
