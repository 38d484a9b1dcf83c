package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "hiflacstream/internal/api/http"
	"hiflacstream/internal/app"
	"hiflacstream/internal/audiodevice"
	"hiflacstream/internal/coordinator"
	"hiflacstream/internal/decode"
	"hiflacstream/internal/fetch"
	"hiflacstream/internal/finalize"
	"hiflacstream/internal/library"
	"hiflacstream/internal/metrics"
	"hiflacstream/internal/playback"
	mongorepo "hiflacstream/internal/repository/mongo"
	"hiflacstream/internal/telemetry"
	"hiflacstream/internal/transcode"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "streamd")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "streamd"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("appDataDir", cfg.AppDataDir),
		slog.String("musicDir", cfg.MusicDir),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoOpts := otelmongo.NewMonitor()
	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(mongoOpts))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	checkpointRepo := mongorepo.NewCheckpointRepository(mongoClient, cfg.MongoDatabase)
	historyRepo := mongorepo.NewHistoryRepository(mongoClient, cfg.MongoDatabase)

	if err := checkpointRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}

	fetcher := fetch.NewFetcher(cfg.AppDataDir, cfg.FetchRateLimitBytesPerSec, cfg.HTTPTimeoutSecs)
	coord := coordinator.New(fetcher, checkpointRepo, logger)

	ffmpegTranscoder := transcode.New(cfg.FFMPEGPath)
	finalizer := finalize.New(ffmpegTranscoder, cfg.MusicDir, cfg.AppDataDir, cfg.LosslessCodec, cfg.LosslessExt)
	lib := library.New(cfg.AppDataDir, cfg.MusicDir, cfg.LosslessExt)
	decoder := decode.New(cfg.FFProbePath, cfg.FFMPEGPath)

	deviceLister := audiodevice.NewLister(cfg.AudioDeviceIndex, cfg.AudioDeviceName)
	streamBuilder := audiodevice.NewBuilder(cfg.AudioDeviceIndex)

	engine := playback.New(decoder, deviceLister, streamBuilder, playback.WithHistoryRepository(historyRepo))

	go resumeIncompleteStreams(rootCtx, checkpointRepo, logger)

	handler := apihttp.NewServer(engine, coord, finalizer, lib, deviceLister,
		apihttp.WithLogger(logger),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("engine shutdown error", slog.String("error", err.Error()))
	}
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// resumeIncompleteStreams logs (but does not re-fetch) streams that were
// still in progress when the process last stopped; a client reconnecting
// after a restart drives re-fetching itself via start_progressive_stream.
func resumeIncompleteStreams(ctx context.Context, checkpoints *mongorepo.CheckpointRepository, logger *slog.Logger) {
	incomplete, err := checkpoints.ListIncomplete(ctx)
	if err != nil {
		logger.Warn("list incomplete streams failed", slog.String("error", err.Error()))
		return
	}
	if len(incomplete) == 0 {
		return
	}
	logger.Info("found incomplete streams from previous run", slog.Int("count", len(incomplete)))
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
