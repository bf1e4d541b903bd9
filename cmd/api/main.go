package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lookupcore/internal/config"
	"lookupcore/internal/indexer"
	"lookupcore/internal/lookup/audit"
	"lookupcore/internal/lookup/cache"
	"lookupcore/internal/lookup/executor"
	"lookupcore/internal/lookup/llm"
	"lookupcore/internal/lookup/orchestrator"
	"lookupcore/internal/lookup/refdata"
	"lookupcore/internal/server"
	"lookupcore/internal/storage/blob"
	"lookupcore/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg.Env)

	stores, cleanup, err := openStores(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores")
	}
	defer cleanup()

	blobs := openBlobStore(cfg)

	disk, err := cache.NewDiskStore(cache.DiskConfig{Root: cfg.Cache.Root, TTL: cfg.Cache.TTL})
	if err != nil {
		log.Fatal().Err(err).Msg("open response cache")
	}
	respCache := cache.New(disk, cache.WithTTL(cfg.Cache.TTL))

	audits := audit.NewLogger(stores.Audits)
	exec := executor.New(stores.Templates, refdata.NewLoader(stores.DataSources, blobs),
		respCache, llm.DefaultFactory(cfg.LLM.OpenAIBaseURL), cfg.LLM.Timeout, audits)
	orch := orchestrator.New(exec, audits, orchestrator.Config{
		MaxWorkers:   cfg.Orchestrator.MaxWorkers,
		TaskTimeout:  cfg.Orchestrator.TaskTimeout,
		QueueTimeout: cfg.Orchestrator.QueueTimeout,
	})

	var indexes indexer.Service = indexer.Noop{}
	if cfg.IndexerURL != "" {
		indexes = indexer.NewHTTPClient(cfg.IndexerURL)
	}

	srv := server.New(cfg.Port, server.NewMux(server.NewHandlers(stores, orch, indexes)))
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if strings.EqualFold(env, "local") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func openStores(cfg *config.Config) (*store.Stores, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory stores")
		return store.NewMemory().Stores(), func() {}, nil
	}
	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pg.Stores(), func() { _ = pg.Close() }, nil
}

func openBlobStore(cfg *config.Config) blob.Store {
	if !cfg.Blob.Enabled {
		log.Warn().Msg("blob storage not configured, using in-memory store")
		return blob.NewMemoryStore()
	}
	s3, err := blob.NewS3Store(cfg.Blob.S3)
	if err != nil {
		log.Warn().Err(err).Msg("s3 store init failed, using in-memory store")
		return blob.NewMemoryStore()
	}
	return s3
}
