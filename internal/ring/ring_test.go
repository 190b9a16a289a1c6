package ring_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ommotech/trackingsdk/internal/ring"
	"github.com/ommotech/trackingsdk/internal/wire"
)

func packetAt(angle float32) wire.Packet {
	return wire.Packet{Report: wire.ReportMetadata{AngleDeg: angle}}
}

func stampedPacket(age time.Duration) wire.Packet {
	return wire.Packet{
		Latency: []wire.LatencyStamp{
			{Kind: wire.LatencyStampSDKReceived, At: time.Now().Add(-age)},
		},
	}
}

func TestBasicLatest(t *testing.T) {
	r := ring.New(4)
	r.Push(packetAt(0))
	r.Push(packetAt(1))
	r.Push(packetAt(2))

	latest := r.Latest()
	require.Equal(t, ring.StatusSuccess, latest.Status)
	require.Len(t, latest.Packets, 1)
	assert.EqualValues(t, 2, latest.Packets[0].Index)

	five := r.LatestN(5)
	assert.Equal(t, ring.StatusPartialData, five.Status)
	require.Len(t, five.Packets, 3)
	assert.EqualValues(t, 0, five.Packets[0].Index)
	assert.EqualValues(t, 2, five.Packets[2].Index)
}

func TestSwapBoundary(t *testing.T) {
	r := ring.New(4)
	for i := 0; i < 4; i++ {
		r.Push(packetAt(float32(i)))
	}

	four := r.LatestN(4)
	require.Equal(t, ring.StatusSuccess, four.Status)
	require.Len(t, four.Packets, 4)
	assert.EqualValues(t, 0, four.Packets[0].Index)
	assert.EqualValues(t, 3, four.Packets[3].Index)

	r.Push(packetAt(4))

	fourAfter := r.LatestN(4)
	require.Equal(t, ring.StatusSuccess, fourAfter.Status)
	require.Len(t, fourAfter.Packets, 4)
	assert.EqualValues(t, 1, fourAfter.Packets[0].Index)
	assert.EqualValues(t, 4, fourAfter.Packets[3].Index)

	since := r.SinceIndex(0)
	require.Equal(t, ring.StatusSuccess, since.Status)
	require.Len(t, since.Packets, 5)
}

func TestEvictionBeyondTwoN(t *testing.T) {
	r := ring.New(4)
	for i := 0; i < 9; i++ {
		r.Push(packetAt(float32(i)))
	}

	// The swap granularity is N packets, so P5's documented slack
	// applies: the oldest surviving index sits within N of
	// total_pushes-2N rather than exactly equal to it.
	since0 := r.SinceIndex(0)
	assert.Equal(t, ring.StatusPartialData, since0.Status)
	require.NotEmpty(t, since0.Packets)
	smallest := since0.Packets[0].Index
	assert.LessOrEqual(t, smallest, uint64(9-8+4))

	since5 := r.SinceIndex(5)
	require.Equal(t, ring.StatusSuccess, since5.Status)
	require.Len(t, since5.Packets, 4)
	assert.EqualValues(t, 5, since5.Packets[0].Index)
	assert.EqualValues(t, 8, since5.Packets[3].Index)
}

func TestSinceIndexAheadOfLatest(t *testing.T) {
	r := ring.New(4)
	r.Push(packetAt(0))
	res := r.SinceIndex(5)
	assert.Equal(t, ring.StatusNoData, res.Status)
	assert.Empty(t, res.Packets)
}

func TestLatestNEqualsLatestWhenOne(t *testing.T) {
	r := ring.New(4)
	r.Push(packetAt(0))
	r.Push(packetAt(1))

	one := r.LatestN(1)
	single := r.Latest()
	require.Len(t, one.Packets, 1)
	require.Len(t, single.Packets, 1)
	assert.Equal(t, single.Packets[0].Index, one.Packets[0].Index)
}

func TestMonotonicPacketIndex(t *testing.T) {
	r := ring.New(4)
	var last int64 = -1
	for i := 0; i < 20; i++ {
		ip := r.Push(packetAt(float32(i)))
		assert.Greater(t, int64(ip.Index), last)
		last = int64(ip.Index)
	}
}

func TestWithMaxAge(t *testing.T) {
	r := ring.New(8)
	r.Push(stampedPacket(5 * time.Second))
	r.Push(stampedPacket(3 * time.Second))
	r.Push(stampedPacket(1 * time.Second))

	res := r.WithMaxAge(2 * time.Second)
	require.Equal(t, ring.StatusSuccess, res.Status)
	require.Len(t, res.Packets, 1)

	all := r.WithMaxAge(time.Hour)
	require.Equal(t, ring.StatusSuccess, all.Status)
	assert.Len(t, all.Packets, 3)
}

func TestWithMaxAgeMissingStampIsOutOfAge(t *testing.T) {
	r := ring.New(4)
	r.Push(packetAt(0)) // no latency stamps at all
	res := r.WithMaxAge(time.Hour)
	assert.Equal(t, ring.StatusNoData, res.Status)
}

func TestLatestWithTimeout(t *testing.T) {
	r := ring.New(4)
	r.Push(stampedPacket(10 * time.Second))

	res := r.LatestWithTimeout(1 * time.Second)
	assert.Equal(t, ring.StatusNoData, res.Status)

	fresh := ring.New(4)
	fresh.Push(stampedPacket(0))
	ok := fresh.LatestWithTimeout(time.Minute)
	assert.Equal(t, ring.StatusSuccess, ok.Status)
}

func TestEmptyRingReadsAreNoData(t *testing.T) {
	r := ring.New(4)
	assert.Equal(t, ring.StatusNoData, r.Latest().Status)
	assert.Equal(t, ring.StatusNoData, r.LatestN(3).Status)
	assert.Equal(t, ring.StatusNoData, r.SinceIndex(0).Status)
	assert.Equal(t, ring.StatusNoData, r.WithMaxAge(time.Hour).Status)
}
