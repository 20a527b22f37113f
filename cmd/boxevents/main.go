// Command boxevents follows a Box event stream and prints every event as a
// JSON line. Uploaded files can optionally be downloaded or mirrored to S3.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joy-dx/gobox"
	"github.com/joy-dx/gobox/client/s3client"
	"github.com/joy-dx/gobox/config"
	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/events"
	"github.com/joy-dx/gobox/network"
	"github.com/joy-dx/gobox/relays"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type options struct {
	configPath   string
	streamType   string
	position     string
	asUser       string
	dedup        int
	downloadDir  string
	mirrorBucket string
	mirrorRegion string
	mirrorPrefix string
	headers      dto.ExtraHeaders
}

func parseFlags() options {
	o := options{headers: dto.ExtraHeaders{}}
	flag.StringVar(&o.configPath, "config", os.Getenv("BOX_CONFIG"), "Path to the YAML client config")
	flag.StringVar(&o.streamType, "stream-type", string(dto.StreamTypeAll), "Event stream type: all, changes, sync, admin_logs_streaming")
	flag.StringVar(&o.position, "position", dto.StreamPositionNow, "Stream position to start from")
	flag.StringVar(&o.asUser, "as-user", "", "Act on behalf of this user id")
	flag.IntVar(&o.dedup, "dedup", 1000, "Remember this many event ids to drop duplicates, 0 disables")
	flag.StringVar(&o.downloadDir, "download-dir", "", "Download files named by ITEM_UPLOAD events into this folder")
	flag.StringVar(&o.mirrorBucket, "mirror-bucket", "", "Mirror uploaded files into this S3 bucket")
	flag.StringVar(&o.mirrorRegion, "mirror-region", "us-east-1", "Region of the mirror bucket")
	flag.StringVar(&o.mirrorPrefix, "mirror-prefix", "box", "Key prefix inside the mirror bucket")
	flag.Var(o.headers, "header", "Extra request headers as key=value,key=value")
	flag.Parse()
	return o
}

func main() {
	o := parseFlags()

	cfg, err := config.Load(o.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := relays.NewConsoleLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(o, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("boxevents stopped", zap.Error(err))
	}
}

func run(o options, cfg *config.ClientConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ExtraHeaders == nil {
		cfg.ExtraHeaders = dto.ExtraHeaders{}
	}
	for k, v := range o.headers {
		cfg.ExtraHeaders[k] = v
	}

	sessionOpts := []network.SessionOption{network.WithSessionRelay(relays.NewZapRelay(logger))}
	if cfg.MetricsAddr != "" {
		sessionOpts = append(sessionOpts, network.WithSessionMetrics(network.NewMetrics()))
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	client, closer, err := gobox.NewClientFromConfig(ctx, cfg, sessionOpts...)
	if err != nil {
		return err
	}
	defer closer.Close()
	if o.asUser != "" {
		client = client.WithAsUserHeader(o.asUser)
	}

	var mirror *s3client.S3Client
	if o.mirrorBucket != "" {
		mcfg := s3client.DefaultS3ClientConfig(o.mirrorRegion, o.mirrorBucket)
		mcfg.WithKeyPrefix(o.mirrorPrefix).WithMiddleware(s3client.LoggingMiddleware(client.Session().Relay()))
		if mirror, err = s3client.NewS3Client(ctx, "boxevents-mirror", &mcfg); err != nil {
			return err
		}
	}

	var streamOpts []events.StreamOption
	if o.dedup > 0 {
		streamOpts = append(streamOpts, events.WithDeduplication(o.dedup))
	}
	stream := client.GetEventStream(dto.GetEventsParams{
		StreamType:     dto.StreamType(o.streamType),
		StreamPosition: o.position,
	}, streamOpts...)
	logger.Info("following event stream", zap.String("stream", stream.String()))

	enc := json.NewEncoder(os.Stdout)
	for ev, err := range stream.Entries(ctx) {
		if err != nil {
			return err
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if ev.EventType != "ITEM_UPLOAD" {
			continue
		}
		if err := handleUpload(ctx, client, mirror, o, ev, logger); err != nil {
			logger.Warn("upload handling failed", zap.String("event_id", ev.EventID), zap.Error(err))
		}
	}
	return ctx.Err()
}

type eventSource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

func handleUpload(ctx context.Context, client *gobox.Client, mirror *s3client.S3Client, o options, ev dto.Event, logger *zap.Logger) error {
	if o.downloadDir == "" && mirror == nil {
		return nil
	}
	var src eventSource
	if len(ev.Source) == 0 {
		return nil
	}
	if err := json.Unmarshal(ev.Source, &src); err != nil {
		return fmt.Errorf("decode event source: %w", err)
	}
	if src.Type != "file" || src.ID == "" {
		return nil
	}
	dl := &dto.DownloadFileConfig{FileID: src.ID, OutputFileName: src.Name, DestinationFolder: o.downloadDir}
	if mirror != nil {
		res, err := client.MirrorToS3(ctx, dl, mirror, src.ID+"/"+src.Name)
		if err != nil {
			return err
		}
		logger.Info("mirrored upload", zap.String("file_id", src.ID), zap.String("etag", res.ETag))
		return nil
	}
	path, err := client.DownloadFile(ctx, dl)
	if err != nil {
		return err
	}
	logger.Info("downloaded upload", zap.String("file_id", src.ID), zap.String("path", path))
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
