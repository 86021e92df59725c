// Command srtd is a small example binary demonstrating the srt package:
// it runs a publish-side Server admitting connections by stream key, and
// optionally pushes a file to a remote SRT listener.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	ingestsrt "github.com/zsiec/srt-endpoint/ingest/srt"
	coresrt "github.com/zsiec/srt-endpoint/srt"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	srtAddr := envOr("SRT_ADDR", ":6000")
	metricsAddr := envOr("METRICS_ADDR", ":9090")
	allowedKeys := strings.Split(envOr("SRT_ALLOWED_KEYS", "default"), ",")
	outDir := envOr("SRT_OUT_DIR", ".")

	slog.Info("srtd starting", "srt", srtAddr, "metrics", metricsAddr, "allowed_keys", allowedKeys)

	reg := prometheus.NewRegistry()
	metrics := coresrt.NewMetrics(reg)

	publisher := ingestsrt.NewPublisher(srtAddr, allowedKeys, func(streamKey string) (io.WriteCloser, error) {
		path := outDir + "/" + streamKey + ".ts"
		return os.Create(path)
	}, metrics, nil)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := publisher.Start(ctx); err != nil {
			return fmt.Errorf("srt publisher: %w", err)
		}
		<-ctx.Done()
		return nil
	})

	metricsSrv := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	g.Go(func() error {
		slog.Info("metrics server listening", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return metricsSrv.Close()
	})

	if pushAddr := os.Getenv("SRT_PUSH_ADDR"); pushAddr != "" {
		pushPort, err := strconv.ParseUint(os.Getenv("SRT_PUSH_PORT"), 10, 16)
		if err != nil {
			slog.Error("invalid SRT_PUSH_PORT", "error", err)
			os.Exit(1)
		}
		pushKey := envOr("SRT_PUSH_KEY", "default")
		pushFile := os.Getenv("SRT_PUSH_FILE")

		pusher := ingestsrt.NewPusher(nil)
		g.Go(func() error {
			f, err := os.Open(pushFile)
			if err != nil {
				return fmt.Errorf("open push source: %w", err)
			}
			defer f.Close()

			if err := pusher.Push(ctx, ingestsrt.PushRequest{
				Address:   pushAddr,
				Port:      uint16(pushPort),
				StreamKey: pushKey,
			}, f); err != nil {
				return fmt.Errorf("srt push: %w", err)
			}
			<-ctx.Done()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("srtd error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
