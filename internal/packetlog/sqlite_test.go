package packetlog_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ommotech/trackingsdk/internal/packetlog"
	"github.com/ommotech/trackingsdk/internal/wire"
)

func TestStoreInsertAndCount(t *testing.T) {
	store, err := packetlog.Open(filepath.Join(t.TempDir(), "capture.sqlite"))
	require.NoError(t, err)
	defer store.Close()

	dev := wire.DeviceID{SIUUUID: 1, PortID: 2}
	packet := wire.Packet{
		Device:  dev,
		Report:  wire.ReportMetadata{AngleDeg: 12.5, SpeedMps: 1.2, Timestamp: time.Now()},
		Battery: wire.BatteryState{PercentCharge: 87},
		Latency: []wire.LatencyStamp{{Kind: wire.LatencyStampServiceReceived, At: time.Now()}},
	}

	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, 1, packet))
	require.NoError(t, store.Insert(ctx, 2, packet))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
