package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"voting-audit/api"
	"voting-audit/blockchain/ledger"
	"voting-audit/config"
	"voting-audit/digest"
	"voting-audit/registry"
	"voting-audit/service"
	"voting-audit/storage"
	"voting-audit/util"
)

func main() {
	envPath := flag.String("env", "", "path to .env file")
	flag.Parse()

	cfg := config.LoadFromEnv(*envPath)

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	if cfg.File != "" {
		return util.NewLoggerWithFile(cfg.File, cfg.Level)
	}
	return util.NewLogger(cfg.Level)
}

func run(cfg config.Config, logger *zap.Logger) error {
	hasher, err := digest.ByName(cfg.Ledger.Digest)
	if err != nil {
		return err
	}

	// The one ledger for this process. It lives in memory only and starts
	// from a fresh genesis block on every restart.
	auditLedger := ledger.New(ledger.WithHasher(hasher), ledger.WithLogger(logger.Named("ledger")))

	voters := registry.NewMockVoterRegistry(registry.RegistryConfig{VotersFilePath: cfg.Auth.VotersFile})
	if err := voters.LoadVotersFromFile(); err != nil {
		return fmt.Errorf("failed to load voters: %w", err)
	}
	logger.Info("voter directory loaded", zap.Int("voters", voters.Count()))

	exporter, err := storage.NewChainExporter(cfg.Ledger.ExportDir, cfg.Ledger.ExportKeep, logger.Named("storage"))
	if err != nil {
		return err
	}

	metrics := service.NewMetricsCollector()
	auth := service.NewAuthService(
		voters,
		auditLedger,
		service.NewLogSender(logger.Named("sms")),
		metrics,
		service.AuthConfig{OTPLength: cfg.Auth.OTPLength},
		logger.Named("auth"),
	)

	server := api.NewServer(api.Deps{
		Auth:        auth,
		Ledger:      auditLedger,
		Exporter:    exporter,
		Metrics:     metrics,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger.Named("api"),
	})
	httpServer := server.HTTPServer(fmt.Sprintf(":%d", cfg.Server.Port))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting voter audit API", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	// Memory-only ledger: leave a final dump behind for offline inspection.
	if path, err := exporter.Export(hasher.Name(), auditLedger.Blocks()); err != nil {
		logger.Warn("final audit export failed", zap.Error(err))
	} else {
		logger.Info("final audit export written", zap.String("path", path))
	}
	return nil
}
