package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"optionflow/config"
	"optionflow/internal/channel"
	"optionflow/internal/dashboard"
	"optionflow/internal/metrics"
	"optionflow/logger"
	"optionflow/models"
	"optionflow/processor"
	"optionflow/reader/delta"
	"optionflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Optionflow.Name,
		"version": cfg.Optionflow.Version,
	}).Info("starting optionflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Address)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.ProcessedBuffer,
	)
	defer channels.Close()

	go channels.StartMetricsReporting(ctx)
	metrics.StartChannelSizeMetrics(ctx, channels, 15*time.Second)

	dashboardServer, err := dashboard.NewServer(cfg.Dashboard, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard server")
		os.Exit(1)
	}

	chainReader := delta.NewReader(cfg, channels)
	chainBuilder := processor.NewBuilder(cfg, channels)

	var chainWriter *writer.ChainWriter
	var writerCh chan models.ChainSnapshot
	if cfg.Storage.S3.Enabled {
		writerCh = make(chan models.ChainSnapshot, cfg.Channels.ProcessedBuffer)
		chainWriter, err = writer.NewChainWriter(cfg, writerCh)
		if err != nil {
			log.WithError(err).Error("failed to create S3 chain writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping chain writer")
	}

	var wg sync.WaitGroup

	// Fan snapshots out to the dashboard and, when enabled, the archive
	// writer. The dashboard always gets the latest snapshot; a slow writer
	// drops instead of stalling the pipeline.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case snapshot, ok := <-channels.Norm:
				if !ok {
					return
				}
				dashboardServer.UpdateChain(snapshot)
				if writerCh != nil {
					select {
					case writerCh <- snapshot:
					default:
						log.WithComponent("main").Warn("writer channel full, dropping snapshot")
					}
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := chainReader.Start(ctx); err != nil {
			log.WithError(err).Warn("delta reader failed to start")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := chainBuilder.Start(ctx); err != nil {
			log.WithError(err).Warn("chain builder failed to start")
		}
	}()

	if chainWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := chainWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("chain writer failed to start")
			}
		}()
	}

	if dashboardServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dashboardServer.Run(ctx, cfg.Optionflow.Name); err != nil {
				log.WithError(err).Warn("dashboard server exited with error")
			}
		}()
		log.WithFields(logger.Fields{"address": dashboardServer.Address()}).Info("dashboard enabled")
	}

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if chainWriter != nil {
		log.Info("stopping chain writer")
		chainWriter.Stop()
	}

	log.Info("stopping chain builder")
	chainBuilder.Stop()

	log.Info("stopping delta reader")
	chainReader.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("optionflow stopped")
}
