package wireless_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ommotech/trackingsdk/internal/wire"
	"github.com/ommotech/trackingsdk/internal/wireless"
)

type fakeBidiStream struct {
	mu      sync.Mutex
	inbound chan wire.WirelessManagementEvent
	sent    []wire.WirelessManagementRequest
	closed  bool
}

func newFakeBidiStream() *fakeBidiStream {
	return &fakeBidiStream{inbound: make(chan wire.WirelessManagementEvent, 16)}
}

func (s *fakeBidiStream) pushEvent(ev wire.WirelessManagementEvent) { s.inbound <- ev }

func (s *fakeBidiStream) Send(req wire.WirelessManagementRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	return nil
}

func (s *fakeBidiStream) Recv() (wire.WirelessManagementEvent, error) {
	ev, ok := <-s.inbound
	if !ok {
		return wire.WirelessManagementEvent{}, errors.New("stream closed")
	}
	return ev, nil
}

func (s *fakeBidiStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.inbound)
	}
	return nil
}

func (s *fakeBidiStream) sentRequests() []wire.WirelessManagementRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.WirelessManagementRequest, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeClient struct {
	mu     sync.Mutex
	stream *fakeBidiStream
}

func newFakeClient() *fakeClient { return &fakeClient{} }

func (f *fakeClient) currentStream() *fakeBidiStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stream
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
func (f *fakeClient) OpenDataFrameStream(context.Context, wire.DataFrameRequest) (wire.DataFrameStream, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeClient) OpenBaseStationDataStream(context.Context) (wire.BaseStationDataStream, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeClient) OpenReferenceDeviceStateStream(context.Context) (wire.ReferenceDeviceStateStream, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeClient) OpenWirelessManagementStream(ctx context.Context) (wire.WirelessManagementStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stream = newFakeBidiStream()
	return f.stream, nil
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

func TestSessionSendsControlRequests(t *testing.T) {
	client := newFakeClient()
	s := wireless.New(client, nil)
	require.NoError(t, s.Open(context.Background()))

	assert.True(t, s.EnablePairing())
	assert.True(t, s.ApprovePairing(42))
	assert.True(t, s.SetIntervalLength(250))

	waitFor(t, func() bool { return len(client.currentStream().sentRequests()) == 3 })
	sent := client.currentStream().sentRequests()
	assert.Equal(t, wire.WirelessRequestEnablePairing, sent[0].Kind)
	assert.Equal(t, uint32(42), sent[1].UUID)
	assert.Equal(t, uint32(250), sent[2].IntervalMs)
}

func TestSessionDropsSendWhenDetached(t *testing.T) {
	s := wireless.New(newFakeClient(), nil)
	assert.True(t, s.Detached())
	assert.False(t, s.EnablePairing())
}

func TestSessionDeliversInboundEvents(t *testing.T) {
	client := newFakeClient()
	s := wireless.New(client, nil)
	require.NoError(t, s.Open(context.Background()))

	var mu sync.Mutex
	var got []wire.WirelessManagementEvent
	s.SetCallback(func(ev wire.WirelessManagementEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	client.currentStream().pushEvent(wire.WirelessManagementEvent{Kind: wire.WirelessEventPairingRequested, UUID: 7})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	assert.Equal(t, uint32(7), got[0].UUID)
	mu.Unlock()
}

func TestSessionCancelMarksDetached(t *testing.T) {
	client := newFakeClient()
	s := wireless.New(client, nil)
	require.NoError(t, s.Open(context.Background()))
	assert.False(t, s.Detached())

	s.Cancel()
	assert.True(t, s.Detached())
}
