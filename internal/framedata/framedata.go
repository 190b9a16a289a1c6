// Package framedata implements the DataFrame subscription manager
// (spec.md §4.4): one combined reactor producing multi-device frames,
// fanned out to a per-device Ring map. The combined stream is structured
// around a fixed device list at open time, so any connect or disconnect
// event for a device matching the subscription's filter tears it down
// and reopens it against the current device set (spec.md §4.7's
// update_frame_stream). Events for other devices leave it untouched.
package framedata

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ommotech/trackingsdk/internal/params"
	"github.com/ommotech/trackingsdk/internal/reactor"
	"github.com/ommotech/trackingsdk/internal/ring"
	"github.com/ommotech/trackingsdk/internal/wire"
)

type entry struct {
	id   wire.DeviceID
	ring *ring.Ring
}

// Manager owns the device-hash -> Ring map and the single combined
// reactor for one DataFrame subscription.
type Manager struct {
	client  wire.Client
	request params.DataRequest
	bufSize int
	logger  *slog.Logger

	mu       sync.RWMutex
	rings    map[uint64]*entry
	reactor  *reactor.Reactor[wire.DataFrame]
	callback func(wire.DataFrame)
}

// New creates a Manager for the given request.
func New(client wire.Client, request params.DataRequest, bufSize int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:  client,
		request: request,
		bufSize: bufSize,
		logger:  logger,
		rings:   make(map[uint64]*entry),
	}
}

// IsRequested reports whether id matches this subscription's device
// filter.
func (m *Manager) IsRequested(id wire.DeviceID) bool {
	return m.request.IsRequested(id)
}

// EnsureStorage idempotently creates the Ring for id.
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

// RemoveStorage drops the Ring for id.
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

func (m *Manager) deviceList() []wire.DeviceID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]wire.DeviceID, 0, len(m.rings))
	for _, e := range m.rings {
		out = append(out, e.id)
	}
	return out
}

// AvailableDevices returns every device this subscription currently has
// storage for.
func (m *Manager) AvailableDevices() []wire.DeviceID {
	return m.deviceList()
}

// Reopen tears down the combined reactor, if any, and opens a fresh one
// against the current device set. Called whenever the effective device
// set may have changed (spec.md §4.7, and spec.md §9's open question on
// narrowing the reopen policy — kept at every event for a requested
// device).
func (m *Manager) Reopen(ctx context.Context) {
	m.mu.Lock()
	r := m.reactor
	m.reactor = nil
	m.mu.Unlock()
	if r != nil {
		r.Cancel()
	}

	devices := m.deviceList()
	nr := reactor.New(func(f wire.DataFrame) { m.updateFrameData(f) }, m.clearReactor)
	req := m.request.FrameRequest(devices)
	if err := nr.Open(ctx, func(ctx context.Context) (reactor.Stream[wire.DataFrame], error) {
		return m.client.OpenDataFrameStream(ctx, req)
	}); err != nil {
		m.logger.Warn("data frame stream open failed", slog.Int("devices", len(devices)), slog.Any("err", err))
		return
	}

	m.mu.Lock()
	m.reactor = nr
	m.mu.Unlock()
}

func (m *Manager) clearReactor() {
	m.mu.Lock()
	m.reactor = nil
	m.mu.Unlock()
}

func (m *Manager) updateFrameData(frame wire.DataFrame) {
	for _, payload := range frame.Devices {
		if r, ok := m.ringFor(payload.Device); ok {
			r.Push(payload.Packet)
		}
	}

	m.mu.RLock()
	cb := m.callback
	m.mu.RUnlock()
	if cb != nil {
		cb(frame)
	}
}

// SetCallback registers the per-tag frame callback, replacing any prior
// registration. The callback fires once per frame, not once per device
// (spec.md §4.4).
func (m *Manager) SetCallback(cb func(wire.DataFrame)) {
	m.mu.Lock()
	m.callback = cb
	m.mu.Unlock()
}

// ResetCallback clears the registered callback.
func (m *Manager) ResetCallback() {
	m.SetCallback(nil)
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

// GetSinceIndex returns every packet for id with packet_idx >= i.
func (m *Manager) GetSinceIndex(id wire.DeviceID, i uint64) ring.Result {
	r, ok := m.ringFor(id)
	if !ok {
		return ring.Result{Status: ring.StatusNoData}
	}
	return r.SinceIndex(i)
}

// UpdateFrameStream applies a connect/disconnect event to this
// subscription (spec.md §4.7's update_frame_stream): adjusts storage,
// then unconditionally tears down and reopens the combined stream
// against the current device set.
func (m *Manager) UpdateFrameStream(ctx context.Context, descriptor wire.DeviceDescriptor, connected bool) {
	if !m.IsRequested(descriptor.ID) {
		return
	}
	if connected {
		m.EnsureStorage(descriptor.ID)
	} else {
		m.RemoveStorage(descriptor.ID)
	}
	m.Reopen(ctx)
}

// Close cancels the combined reactor and drops all storage.
func (m *Manager) Close() {
	m.mu.Lock()
	r := m.reactor
	m.reactor = nil
	m.rings = make(map[uint64]*entry)
	m.mu.Unlock()
	if r != nil {
		r.Cancel()
	}
}
