// Package devicedata implements the DeviceData subscription manager
// (spec.md §4.3): one Ring and one Stream Reactor per matching connected
// device, fed by the per-device OpenTrackingDeviceDataStream RPC.
package devicedata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ommotech/trackingsdk/internal/params"
	"github.com/ommotech/trackingsdk/internal/reactor"
	"github.com/ommotech/trackingsdk/internal/ring"
	"github.com/ommotech/trackingsdk/internal/wire"
)

type entry struct {
	id   wire.DeviceID
	ring *ring.Ring
}

// Manager owns the device-hash -> Ring and device-hash -> reactor maps
// for one DeviceData subscription.
type Manager struct {
	client  wire.Client
	request params.DataRequest
	bufSize int
	logger  *slog.Logger

	mu       sync.RWMutex
	rings    map[uint64]*entry
	reactors map[uint64]*reactor.Reactor[wire.Packet]
	callback func(wire.Packet)
}

// New creates a Manager for the given request. bufSize <= 0 uses
// ring.DefaultCapacity.
func New(client wire.Client, request params.DataRequest, bufSize int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:   client,
		request:  request,
		bufSize:  bufSize,
		logger:   logger,
		rings:    make(map[uint64]*entry),
		reactors: make(map[uint64]*reactor.Reactor[wire.Packet]),
	}
}

// IsRequested reports whether id matches this subscription's device
// filter (spec.md §4.3).
func (m *Manager) IsRequested(id wire.DeviceID) bool {
	return m.request.IsRequested(id)
}

// EnsureStorage idempotently creates the Ring for id, returning it.
func (m *Manager) EnsureStorage(id wire.DeviceID) *ring.Ring {
	h := id.Hash()
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rings[h]; ok {
		return e.ring
	}
	e := &entry{id: id, ring: ring.New(m.bufSize)}
	m.rings[h] = e
	return e.ring
}

// RemoveStorage drops the Ring for id, if any.
func (m *Manager) RemoveStorage(id wire.DeviceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rings, id.Hash())
}

func (m *Manager) ringFor(id wire.DeviceID) (*ring.Ring, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rings[id.Hash()]
	if !ok {
		return nil, false
	}
	return e.ring, true
}

// OpenStream opens a per-device reactor for id if one is not already
// open, associating it with this manager so its finish notification
// drops the map entry (spec.md §4.2's association contract).
func (m *Manager) OpenStream(ctx context.Context, id wire.DeviceID) error {
	h := id.Hash()
	m.mu.Lock()
	if _, ok := m.reactors[h]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	r := reactor.New(func(p wire.Packet) { m.updateDeviceData(p) }, func() { m.clearReactor(h) })
	req := m.request.DeviceDataRequest(id)
	err := r.Open(ctx, func(ctx context.Context) (reactor.Stream[wire.Packet], error) {
		return m.client.OpenTrackingDeviceDataStream(ctx, req)
	})
	if err != nil {
		m.logger.Warn("device data stream open failed", slog.String("device", id.String()), slog.Any("err", err))
		return err
	}

	m.mu.Lock()
	m.reactors[h] = r
	m.mu.Unlock()
	return nil
}

func (m *Manager) clearReactor(hash uint64) {
	m.mu.Lock()
	delete(m.reactors, hash)
	m.mu.Unlock()
}

// CancelStream cancels id's reactor, if one is open. Cancel blocks until
// the reactor's read loop has exited, so callers can rely on no further
// deliveries for id once this returns.
func (m *Manager) CancelStream(id wire.DeviceID) {
	m.mu.Lock()
	r, ok := m.reactors[id.Hash()]
	m.mu.Unlock()
	if ok {
		r.Cancel()
	}
}

// RemoveStream drops the reactor map entry for id without cancelling it
// (used when the reactor has already announced its own teardown).
func (m *Manager) RemoveStream(id wire.DeviceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reactors, id.Hash())
}

func (m *Manager) updateDeviceData(p wire.Packet) {
	r, ok := m.ringFor(p.Device)
	if !ok {
		return
	}
	r.Push(p)

	m.mu.RLock()
	cb := m.callback
	m.mu.RUnlock()
	if cb != nil {
		cb(p)
	}
}

// SetCallback registers the per-tag data callback, replacing any prior
// registration (spec.md §4.3's "at most one callback" contract).
func (m *Manager) SetCallback(cb func(wire.Packet)) {
	m.mu.Lock()
	m.callback = cb
	m.mu.Unlock()
}

// ResetCallback clears the registered callback.
func (m *Manager) ResetCallback() {
	m.SetCallback(nil)
}

// AvailableDevices returns every device this subscription currently has
// storage for (spec.md L5).
func (m *Manager) AvailableDevices() []wire.DeviceID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]wire.DeviceID, 0, len(m.rings))
	for _, e := range m.rings {
		out = append(out, e.id)
	}
	return out
}

// GetLatest returns the most recent packet for id.
func (m *Manager) GetLatest(id wire.DeviceID) ring.Result {
	r, ok := m.ringFor(id)
	if !ok {
		return ring.Result{Status: ring.StatusNoData}
	}
	return r.Latest()
}

// GetLatestN returns the last n packets for id.
func (m *Manager) GetLatestN(id wire.DeviceID, n int) ring.Result {
	r, ok := m.ringFor(id)
	if !ok {
		return ring.Result{Status: ring.StatusNoData}
	}
	return r.LatestN(n)
}

// GetLatestWithTimeout returns the most recent packet for id if it is
// fresh enough.
func (m *Manager) GetLatestWithTimeout(id wire.DeviceID, timeout time.Duration) ring.Result {
	r, ok := m.ringFor(id)
	if !ok {
		return ring.Result{Status: ring.StatusNoData}
	}
	return r.LatestWithTimeout(timeout)
}

// GetSinceIndex returns every packet for id with packet_idx >= i.
func (m *Manager) GetSinceIndex(id wire.DeviceID, i uint64) ring.Result {
	r, ok := m.ringFor(id)
	if !ok {
		return ring.Result{Status: ring.StatusNoData}
	}
	return r.SinceIndex(i)
}

// GetWithMaxAge returns the newest contiguous run of packets for id
// within maxAge.
func (m *Manager) GetWithMaxAge(id wire.DeviceID, maxAge time.Duration) ring.Result {
	r, ok := m.ringFor(id)
	if !ok {
		return ring.Result{Status: ring.StatusNoData}
	}
	return r.WithMaxAge(maxAge)
}

// UpdateDeviceStream applies a connect/disconnect event to this
// subscription (spec.md §4.7's update_device_stream).
func (m *Manager) UpdateDeviceStream(ctx context.Context, descriptor wire.DeviceDescriptor, connected bool) {
	if !m.IsRequested(descriptor.ID) {
		return
	}
	if !connected {
		m.CancelStream(descriptor.ID)
		m.RemoveStream(descriptor.ID)
		m.RemoveStorage(descriptor.ID)
		return
	}
	m.EnsureStorage(descriptor.ID)
	m.mu.RLock()
	_, open := m.reactors[descriptor.ID.Hash()]
	m.mu.RUnlock()
	if !open {
		if err := m.OpenStream(ctx, descriptor.ID); err != nil {
			m.logger.Warn("device data stream reopen failed", slog.String("device", descriptor.ID.String()), slog.Any("err", err))
		}
	}
}

// Close cancels every open per-device reactor and drops all storage.
// Used by CloseRequest and Shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	reactors := make([]*reactor.Reactor[wire.Packet], 0, len(m.reactors))
	for _, r := range m.reactors {
		reactors = append(reactors, r)
	}
	m.reactors = make(map[uint64]*reactor.Reactor[wire.Packet])
	m.rings = make(map[uint64]*entry)
	m.mu.Unlock()

	for _, r := range reactors {
		r.Cancel()
	}
}
