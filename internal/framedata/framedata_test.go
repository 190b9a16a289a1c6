package framedata_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ommotech/trackingsdk/internal/framedata"
	"github.com/ommotech/trackingsdk/internal/params"
	"github.com/ommotech/trackingsdk/internal/ring"
	"github.com/ommotech/trackingsdk/internal/wire"
)

type fakeFrameStream struct {
	mu     sync.Mutex
	msgs   chan wire.DataFrame
	closed bool
}

func newFakeFrameStream() *fakeFrameStream {
	return &fakeFrameStream{msgs: make(chan wire.DataFrame, 16)}
}

func (s *fakeFrameStream) push(f wire.DataFrame) { s.msgs <- f }

func (s *fakeFrameStream) Recv() (wire.DataFrame, error) {
	f, ok := <-s.msgs
	if !ok {
		return wire.DataFrame{}, errors.New("stream closed")
	}
	return f, nil
}

func (s *fakeFrameStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.msgs)
	}
	return nil
}

type fakeClient struct {
	mu      sync.Mutex
	streams []*fakeFrameStream
}

func newFakeClient() *fakeClient { return &fakeClient{} }

func (f *fakeClient) lastStream() *fakeFrameStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

func (f *fakeClient) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeClient) GetTrackingDevices(context.Context) ([]wire.DeviceDescriptor, error) {
	return nil, nil
}
func (f *fakeClient) GetHardwareStates(context.Context) ([]wire.HardwareState, error) { return nil, nil }
func (f *fakeClient) SetBaseStationMotorRunning(context.Context, bool) (bool, error)  { return false, nil }
func (f *fakeClient) SendDataLoggingRequest(context.Context, string, string, bool, bool) (wire.DataLogState, error) {
	return wire.DataLogDisabled, nil
}
func (f *fakeClient) SelectReferenceDevice(context.Context, bool, uint32, uint32) (bool, error) {
	return false, nil
}
func (f *fakeClient) OpenTrackingDevicesEventStream(context.Context) (wire.DeviceEventStream, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeClient) OpenTrackingDeviceDataStream(context.Context, wire.DeviceDataRequest) (wire.DeviceDataStream, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeClient) OpenDataFrameStream(ctx context.Context, req wire.DataFrameRequest) (wire.DataFrameStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := newFakeFrameStream()
	f.streams = append(f.streams, s)
	return s, nil
}
func (f *fakeClient) OpenBaseStationDataStream(context.Context) (wire.BaseStationDataStream, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeClient) OpenReferenceDeviceStateStream(context.Context) (wire.ReferenceDeviceStateStream, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeClient) OpenWirelessManagementStream(context.Context) (wire.WirelessManagementStream, error) {
	return nil, errors.New("not implemented")
}

var _ wire.Client = (*fakeClient)(nil)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}

func TestFrameManagerFansOutToPerDeviceRings(t *testing.T) {
	devA := wire.DeviceID{SIUUUID: 1, PortID: 1}
	devB := wire.DeviceID{SIUUUID: 2, PortID: 1}

	client := newFakeClient()
	m := framedata.New(client, params.DataRequest{}, 4, nil)
	m.EnsureStorage(devA)
	m.EnsureStorage(devB)

	m.Reopen(context.Background())
	stream := client.lastStream()
	require.NotNil(t, stream)

	var mu sync.Mutex
	frames := 0
	m.SetCallback(func(wire.DataFrame) {
		mu.Lock()
		frames++
		mu.Unlock()
	})

	stream.push(wire.DataFrame{Devices: []wire.FramePayload{
		{Device: devA, Packet: wire.Packet{Device: devA}},
		{Device: devB, Packet: wire.Packet{Device: devB}},
	}})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return frames == 1
	})

	assert.Equal(t, ring.StatusSuccess, m.GetLatest(devA).Status)
	assert.Equal(t, ring.StatusSuccess, m.GetLatest(devB).Status)
}

func TestUpdateFrameStreamReopensOnEveryEvent(t *testing.T) {
	dev := wire.DeviceID{SIUUUID: 5, PortID: 1}
	client := newFakeClient()
	m := framedata.New(client, params.DataRequest{Devices: []wire.DeviceID{dev}}, 4, nil)

	m.UpdateFrameStream(context.Background(), wire.DeviceDescriptor{ID: dev}, true)
	assert.Equal(t, 1, client.streamCount())
	assert.Contains(t, m.AvailableDevices(), dev)

	m.UpdateFrameStream(context.Background(), wire.DeviceDescriptor{ID: dev}, false)
	assert.Equal(t, 2, client.streamCount())
	assert.NotContains(t, m.AvailableDevices(), dev)
}

func TestFrameManagerCloseCancelsReactor(t *testing.T) {
	dev := wire.DeviceID{SIUUUID: 7, PortID: 1}
	client := newFakeClient()
	m := framedata.New(client, params.DataRequest{}, 4, nil)
	m.EnsureStorage(dev)
	m.Reopen(context.Background())
	require.Equal(t, 1, client.streamCount())

	m.Close()
	assert.Empty(t, m.AvailableDevices())
}
