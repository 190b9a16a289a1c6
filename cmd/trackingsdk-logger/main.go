// Command trackingsdk-logger connects to a tracking service, opens a
// DeviceData subscription, and mirrors every packet it observes into a
// local SQLite database for offline inspection. This capture lives
// entirely outside the SDK core: the core's Ring stays memory-only.
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

	trackingsdk "github.com/ommotech/trackingsdk"
	"github.com/ommotech/trackingsdk/internal/packetlog"
)

func main() {
	var (
		endpoint string
		dbPath   string
		poll     time.Duration
	)
	flag.StringVar(&endpoint, "endpoint", "localhost:50051", "tracking service address")
	flag.StringVar(&dbPath, "db", "trackingsdk-logger.sqlite", "path to the SQLite capture database")
	flag.DurationVar(&poll, "poll", time.Second, "how often to pull new packets per device")
	flag.Parse()

	logger := slog.Default()

	store, err := packetlog.Open(dbPath)
	if err != nil {
		log.Fatalf("open capture database: %v", err)
	}
	defer store.Close()

	client, err := trackingsdk.New(endpoint, trackingsdk.WithLogger(logger))
	if err != nil {
		log.Fatalf("dial %s: %v", endpoint, err)
	}
	defer client.Shutdown()
	client.Start()

	tag := client.RequestDeviceData(trackingsdk.DataRequest{})
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

	nextIndex := make(map[trackingsdk.DeviceID]uint64)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			capture(ctx, client, tag, store, nextIndex, logger)
		}
	}
}

func capture(ctx context.Context, client *trackingsdk.Client, tag trackingsdk.Tag, store *packetlog.Store, nextIndex map[trackingsdk.DeviceID]uint64, logger *slog.Logger) {
	for _, id := range client.GetAvailableDeviceList(tag) {
		res := client.GetDataSinceIndex(tag, id, nextIndex[id])
		for _, ip := range res.Packets {
			if err := store.Insert(ctx, ip.Index, ip.Packet); err != nil {
				logger.Warn("capture insert failed", slog.String("device", id.String()), slog.Any("err", err))
				continue
			}
			nextIndex[id] = ip.Index + 1
		}
	}
}
