package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/api/rest"
	"github.com/juicedmedia/lead-compliance-backend/internal/batch"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/cache"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/database"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/repository"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/telemetry"
	"github.com/juicedmedia/lead-compliance-backend/internal/metrics"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/dedupe"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/dialer"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/dncexport"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/leadintake"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/repair"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	pool, err := database.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.NewClient(&cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewRegistry(promRegistry)

	leads := repository.NewLeadRepository(pool)
	routings := repository.NewRoutingRepository(pool)
	dncStore := repository.NewDNCRepository(pool)
	exports := repository.NewExportRepository(pool)
	jobs := repository.NewPostgresJobStore(pool)

	engine := compliance.NewDefaultEngine(cfg, dncStore, m, logger)
	verticalCache := cache.NewVerticalCache(redisClient, cfg.Dedupe.VerticalCacheTTL, logger)
	detector := dedupe.NewDetector(leads, routings, verticalCache, cfg.Dedupe.WindowDays, logger)
	dispatcher := dialer.NewDispatcher(cfg.Dialers, m, logger)

	pacer := batch.NewRatePacer(cfg.Batch.WaveDelay)
	intake := leadintake.NewService(engine, detector, leads, routings, dispatcher,
		cfg.Batch.WaveSize, pacer, m, logger)
	repairEngine := repair.NewEngine(leads, routings, dispatcher, jobs,
		cfg.Batch.WaveSize, pacer, cfg.Batch.PageSize, cfg.Batch.MaxBatches, m, logger)
	exporter := dncexport.NewExporter(leads, exports, compliance.NewDNCCheckers(cfg, dncStore, logger), jobs,
		cfg.Batch.WaveSize, pacer, cfg.Batch.PageSize, cfg.Batch.MaxBatches, m, logger)

	handler := rest.NewHandler(engine, intake, repairEngine, exporter, jobs, logger)
	server := rest.NewServer(&cfg.Server, handler, pool, redisClient, promRegistry, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
		return <-errCh
	}
}
