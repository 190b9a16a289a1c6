// Command trackingsdk-probe connects to a tracking service, opens a
// DeviceData subscription filtered by config, and periodically prints
// each device's most recent packet index and packet age.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	trackingsdk "github.com/ommotech/trackingsdk"
	"github.com/ommotech/trackingsdk/internal/probeconfig"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config/probe.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := probeconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("load probe config: %v", err)
	}

	pollEvery, err := time.ParseDuration(cfg.PollEvery)
	if err != nil {
		log.Fatalf("parse poll_every %q: %v", cfg.PollEvery, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	client, err := trackingsdk.New(cfg.Endpoint, trackingsdk.WithLogger(logger), trackingsdk.WithBufferSize(cfg.BufferSize))
	if err != nil {
		log.Fatalf("dial %s: %v", cfg.Endpoint, err)
	}
	defer client.Shutdown()
	client.Start()

	devices := make([]trackingsdk.DeviceID, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, trackingsdk.DeviceID{SIUUUID: d.SIUUUID, PortID: d.PortID})
	}
	tag := client.RequestDeviceData(trackingsdk.DataRequest{Devices: devices})
	defer client.CloseRequest(tag)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report(client, tag, logger)
		}
	}
}

func report(client *trackingsdk.Client, tag trackingsdk.Tag, logger *slog.Logger) {
	for _, id := range client.GetAvailableDeviceList(tag) {
		res := client.GetLatestData(tag, id)
		if res.Status == trackingsdk.StatusNoData || len(res.Packets) == 0 {
			continue
		}
		latest := res.Packets[len(res.Packets)-1]
		receivedAt, ok := latest.Packet.LatencyStampAt(trackingsdk.LatencyStampServiceReceived)
		if !ok {
			receivedAt = latest.Packet.Report.Timestamp
		}
		logger.Info("device report",
			slog.String("device", id.String()),
			slog.Uint64("packet_idx", latest.Index),
			slog.String("age", humanize.RelTime(receivedAt, time.Now(), "ago", "from now")),
			slog.Int64("age_ms", time.Since(receivedAt).Milliseconds()),
		)
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
