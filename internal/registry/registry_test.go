package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/connectivity"

	"github.com/ommotech/trackingsdk/internal/params"
	"github.com/ommotech/trackingsdk/internal/registry"
	"github.com/ommotech/trackingsdk/internal/ring"
	"github.com/ommotech/trackingsdk/internal/wire"
)

type fakeConn struct {
	mu    sync.Mutex
	state connectivity.State
}

func newFakeConn() *fakeConn { return &fakeConn{state: connectivity.Ready} }

func (c *fakeConn) setState(s connectivity.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *fakeConn) GetState() connectivity.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) WaitForStateChange(ctx context.Context, since connectivity.State) bool {
	<-ctx.Done()
	return false
}

type chanStream[T any] struct {
	mu     sync.Mutex
	msgs   chan T
	closed bool
}

func newChanStream[T any]() *chanStream[T] { return &chanStream[T]{msgs: make(chan T, 16)} }

func (s *chanStream[T]) push(v T) { s.msgs <- v }

func (s *chanStream[T]) Recv() (T, error) {
	v, ok := <-s.msgs
	if !ok {
		var zero T
		return zero, errors.New("stream closed")
	}
	return v, nil
}

func (s *chanStream[T]) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.msgs)
	}
	return nil
}

type bidiChanStream[Req, Resp any] struct {
	*chanStream[Resp]
	sentMu sync.Mutex
	sent   []Req
}

func (s *bidiChanStream[Req, Resp]) Send(req Req) error {
	s.sentMu.Lock()
	defer s.sentMu.Unlock()
	s.sent = append(s.sent, req)
	return nil
}

type fakeClient struct {
	mu           sync.Mutex
	eventStream  *chanStream[wire.TrackingDeviceEvent]
	dataStreams  map[wire.DeviceID]*chanStream[wire.Packet]
	frameStreams []*chanStream[wire.DataFrame]
	baseStream   *chanStream[wire.Packet]
	refStream    *chanStream[wire.ReferenceDeviceStateEvent]
	wireless     *bidiChanStream[wire.WirelessManagementRequest, wire.WirelessManagementEvent]
}

func newFakeClient() *fakeClient {
	return &fakeClient{dataStreams: make(map[wire.DeviceID]*chanStream[wire.Packet])}
}

func (f *fakeClient) GetTrackingDevices(context.Context) ([]wire.DeviceDescriptor, error) {
	return nil, nil
}
func (f *fakeClient) GetHardwareStates(context.Context) ([]wire.HardwareState, error) { return nil, nil }
func (f *fakeClient) SetBaseStationMotorRunning(context.Context, bool) (bool, error)  { return true, nil }
func (f *fakeClient) SendDataLoggingRequest(context.Context, string, string, bool, bool) (wire.DataLogState, error) {
	return wire.DataLogEnabled, nil
}
func (f *fakeClient) SelectReferenceDevice(context.Context, bool, uint32, uint32) (bool, error) {
	return true, nil
}
func (f *fakeClient) OpenTrackingDevicesEventStream(context.Context) (wire.DeviceEventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventStream = newChanStream[wire.TrackingDeviceEvent]()
	return f.eventStream, nil
}
func (f *fakeClient) OpenTrackingDeviceDataStream(ctx context.Context, req wire.DeviceDataRequest) (wire.DeviceDataStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := newChanStream[wire.Packet]()
	f.dataStreams[req.Device] = s
	return s, nil
}
func (f *fakeClient) OpenDataFrameStream(ctx context.Context, req wire.DataFrameRequest) (wire.DataFrameStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := newChanStream[wire.DataFrame]()
	f.frameStreams = append(f.frameStreams, s)
	return s, nil
}
func (f *fakeClient) OpenBaseStationDataStream(context.Context) (wire.BaseStationDataStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baseStream = newChanStream[wire.Packet]()
	return f.baseStream, nil
}
func (f *fakeClient) OpenReferenceDeviceStateStream(context.Context) (wire.ReferenceDeviceStateStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refStream = newChanStream[wire.ReferenceDeviceStateEvent]()
	return f.refStream, nil
}
func (f *fakeClient) OpenWirelessManagementStream(context.Context) (wire.WirelessManagementStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wireless = &bidiChanStream[wire.WirelessManagementRequest, wire.WirelessManagementEvent]{
		chanStream: newChanStream[wire.WirelessManagementEvent](),
	}
	return f.wireless, nil
}

var _ wire.Client = (*fakeClient)(nil)

func (f *fakeClient) eventStreamOrNil() *chanStream[wire.TrackingDeviceEvent] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventStream
}

func (f *fakeClient) dataStreamFor(id wire.DeviceID) *chanStream[wire.Packet] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dataStreams[id]
}

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

func newStartedRegistry(t *testing.T) (*registry.Registry, *fakeClient, *fakeConn) {
	conn := newFakeConn()
	client := newFakeClient()
	reg := registry.New(client, conn, registry.Options{BufferSize: 4, ChannelPollInterval: 5 * time.Millisecond})
	reg.Start()
	t.Cleanup(reg.Shutdown)
	waitFor(t, func() bool { return client.eventStreamOrNil() != nil })
	return reg, client, conn
}

func TestRequestDeviceDataDeliversPackets(t *testing.T) {
	reg, client, _ := newStartedRegistry(t)

	dev := wire.DeviceID{SIUUUID: 1, PortID: 1}
	tag := reg.RequestDeviceData(params.DataRequest{Devices: []wire.DeviceID{dev}})
	require.NotZero(t, tag)

	client.eventStreamOrNil().push(wire.TrackingDeviceEvent{Connected: true, Descriptor: wire.DeviceDescriptor{ID: dev}})
	waitFor(t, func() bool { return client.dataStreamFor(dev) != nil })

	client.dataStreamFor(dev).push(wire.Packet{Device: dev})
	waitFor(t, func() bool { return reg.GetLatestData(tag, dev).Status == ring.StatusSuccess })

	assert.Contains(t, reg.GetAvailableDeviceList(tag), dev)
}

func TestCloseRequestStopsDelivery(t *testing.T) {
	reg, client, _ := newStartedRegistry(t)

	dev := wire.DeviceID{SIUUUID: 2, PortID: 1}
	tag := reg.RequestDeviceData(params.DataRequest{Devices: []wire.DeviceID{dev}})
	client.eventStreamOrNil().push(wire.TrackingDeviceEvent{Connected: true, Descriptor: wire.DeviceDescriptor{ID: dev}})
	waitFor(t, func() bool { return client.dataStreamFor(dev) != nil })

	reg.CloseRequest(tag)

	assert.Empty(t, reg.GetAvailableDeviceList(tag))
	assert.Equal(t, ring.StatusNoData, reg.GetLatestData(tag, dev).Status)
}

func TestBaseStationRequestsShareStorageAndRefcount(t *testing.T) {
	reg, client, _ := newStartedRegistry(t)

	tagA := reg.RequestBaseStationData()
	tagB := reg.RequestBaseStationData()
	waitFor(t, func() bool { return client.baseStream != nil })

	client.baseStream.push(wire.Packet{})
	waitFor(t, func() bool { return reg.GetLatestBaseStationData(tagA, 0).Status == ring.StatusSuccess })
	assert.Equal(t, ring.StatusSuccess, reg.GetLatestBaseStationData(tagB, 0).Status)

	reg.CloseBaseStationDataRequest(tagA)
	assert.Equal(t, ring.StatusSuccess, reg.GetLatestBaseStationData(tagB, 0).Status)

	reg.CloseBaseStationDataRequest(tagB)
	assert.Equal(t, ring.StatusNoData, reg.GetLatestBaseStationData(tagB, 0).Status)
}

func TestRegisterCallbackWrongKindIsIgnored(t *testing.T) {
	reg, _, _ := newStartedRegistry(t)

	dev := wire.DeviceID{SIUUUID: 3, PortID: 1}
	tag := reg.RequestDataFrame(params.DataRequest{Devices: []wire.DeviceID{dev}})

	called := false
	reg.RegisterTrackingDeviceDataCallback(tag, func(wire.Packet) { called = true })

	assert.False(t, called)
}

func TestWirelessManagerSendsControlRequests(t *testing.T) {
	reg, client, _ := newStartedRegistry(t)

	handle := reg.CreateWirelessManager()
	waitFor(t, func() bool { return client.wireless != nil })

	sess, ok := reg.WirelessSession(handle)
	require.True(t, ok)
	assert.True(t, sess.EnablePairing())

	reg.DeleteWirelessManager(handle)
	_, ok = reg.WirelessSession(handle)
	assert.False(t, ok)
}

func TestReferenceDeviceStateCallback(t *testing.T) {
	reg, client, _ := newStartedRegistry(t)

	var mu sync.Mutex
	var got []wire.ReferenceDeviceStateEvent
	reg.RegisterReferenceDeviceStateEventCallback(func(ev wire.ReferenceDeviceStateEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	waitFor(t, func() bool { return client.refStream != nil })
	client.refStream.push(wire.ReferenceDeviceStateEvent{Enabled: true})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
}

func TestShutdownIsIdempotentAndCancelsEverything(t *testing.T) {
	conn := newFakeConn()
	client := newFakeClient()
	reg := registry.New(client, conn, registry.Options{BufferSize: 4, ChannelPollInterval: 5 * time.Millisecond})
	reg.Start()
	waitFor(t, func() bool { return client.eventStreamOrNil() != nil })

	reg.Shutdown()
	reg.Shutdown()

	events := client.eventStreamOrNil()
	events.mu.Lock()
	defer events.mu.Unlock()
	assert.True(t, events.closed, "Shutdown should cancel the device-event stream")
}
