// Package channelmonitor implements the Channel Monitor supervisor
// (spec.md §4.7): a periodic loop that reacts to transport up/down
// transitions, (re)establishes the device-event stream and the
// base-station/wireless streams, and clears stale device inventory on
// disconnect.
package channelmonitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ommotech/trackingsdk/internal/basestation"
	"github.com/ommotech/trackingsdk/internal/reactor"
	"github.com/ommotech/trackingsdk/internal/wire"
	"github.com/ommotech/trackingsdk/internal/wireless"
)

// maxConcurrentReopens bounds how many detached base-station/wireless
// reactors onReady reopens at once, so a large fleet reconnecting after
// a transport blip doesn't open hundreds of streams in the same instant.
const maxConcurrentReopens = 8

// deviceStreamSubscriber is satisfied by *devicedata.Manager.
type deviceStreamSubscriber interface {
	IsRequested(wire.DeviceID) bool
	UpdateDeviceStream(ctx context.Context, descriptor wire.DeviceDescriptor, connected bool)
}

// frameStreamSubscriber is satisfied by *framedata.Manager.
type frameStreamSubscriber interface {
	IsRequested(wire.DeviceID) bool
	UpdateFrameStream(ctx context.Context, descriptor wire.DeviceDescriptor, connected bool)
}

// Monitor is the dedicated supervisor task described by spec.md §4.7. It
// is driven by Run, which blocks until ctx is cancelled.
type Monitor struct {
	conn     wire.Conn
	client   wire.Client
	logger   *slog.Logger
	interval time.Duration

	mu             sync.RWMutex
	inventory      map[uint64]wire.DeviceDescriptor
	prevState      wire.ChannelState
	deviceEventCB  func(wire.TrackingDeviceEvent)
	channelStateCB func(wire.ChannelState)

	subsMu     sync.RWMutex
	deviceSubs map[uint32]deviceStreamSubscriber
	frameSubs  map[uint32]frameStreamSubscriber
	baseStns   map[*basestation.Storage]struct{}
	wireless   map[*wireless.Session]struct{}

	deviceEventReactor *reactor.Reactor[wire.TrackingDeviceEvent]
	reactorMu          sync.Mutex
}

// New creates a Monitor. interval <= 0 uses 1 second, matching spec.md
// §4.7's "sleep 1 s" loop.
func New(conn wire.Conn, client wire.Client, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		conn:       conn,
		client:     client,
		logger:     logger,
		interval:   interval,
		inventory:  make(map[uint64]wire.DeviceDescriptor),
		prevState:  wire.ChannelUnknown,
		deviceSubs: make(map[uint32]deviceStreamSubscriber),
		frameSubs:  make(map[uint32]frameStreamSubscriber),
		baseStns:   make(map[*basestation.Storage]struct{}),
		wireless:   make(map[*wireless.Session]struct{}),
	}
}

// AddDeviceDataSubscription registers a DeviceData manager under tag so
// device events fan out to it.
func (m *Monitor) AddDeviceDataSubscription(tag uint32, sub deviceStreamSubscriber) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.deviceSubs[tag] = sub
}

// RemoveDeviceDataSubscription unregisters tag.
func (m *Monitor) RemoveDeviceDataSubscription(tag uint32) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	delete(m.deviceSubs, tag)
}

// AddFrameSubscription registers a DataFrame manager under tag.
func (m *Monitor) AddFrameSubscription(tag uint32, sub frameStreamSubscriber) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.frameSubs[tag] = sub
}

// RemoveFrameSubscription unregisters tag.
func (m *Monitor) RemoveFrameSubscription(tag uint32) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	delete(m.frameSubs, tag)
}

// AddBaseStation registers a base-station storage so its reactor is
// reopened whenever the channel recovers.
func (m *Monitor) AddBaseStation(s *basestation.Storage) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.baseStns[s] = struct{}{}
}

// RemoveBaseStation unregisters s.
func (m *Monitor) RemoveBaseStation(s *basestation.Storage) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	delete(m.baseStns, s)
}

// AddWirelessSession registers a wireless session for reopen-on-recovery.
func (m *Monitor) AddWirelessSession(s *wireless.Session) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.wireless[s] = struct{}{}
}

// RemoveWirelessSession unregisters s.
func (m *Monitor) RemoveWirelessSession(s *wireless.Session) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	delete(m.wireless, s)
}

// SetDeviceEventCallback registers the user's device-event callback.
func (m *Monitor) SetDeviceEventCallback(cb func(wire.TrackingDeviceEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceEventCB = cb
}

// SetChannelStateCallback registers the user's channel-state callback.
func (m *Monitor) SetChannelStateCallback(cb func(wire.ChannelState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelStateCB = cb
}

// Inventory returns a snapshot of the current device inventory.
func (m *Monitor) Inventory() []wire.DeviceDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]wire.DeviceDescriptor, 0, len(m.inventory))
	for _, d := range m.inventory {
		out = append(out, d.Clone())
	}
	return out
}

// Run drives the supervisor loop until ctx is cancelled. It is meant to
// be launched in its own goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.reactorMu.Lock()
			if m.deviceEventReactor != nil {
				r := m.deviceEventReactor
				m.deviceEventReactor = nil
				m.reactorMu.Unlock()
				r.Cancel()
			} else {
				m.reactorMu.Unlock()
			}
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	state := wire.ChannelStateOf(m.conn.GetState())

	m.mu.Lock()
	prev := m.prevState
	changed := state != prev
	m.prevState = state
	cb := m.channelStateCB
	m.mu.Unlock()

	if !changed {
		return
	}
	if cb != nil {
		cb(state)
	}

	if state == wire.ChannelReady {
		m.onReady(ctx)
		return
	}
	if prev == wire.ChannelReady {
		m.onLeaveReady()
	}
}

func (m *Monitor) onReady(ctx context.Context) {
	m.openDeviceEventStream(ctx)

	m.subsMu.RLock()
	baseStns := make([]*basestation.Storage, 0, len(m.baseStns))
	for s := range m.baseStns {
		baseStns = append(baseStns, s)
	}
	sessions := make([]*wireless.Session, 0, len(m.wireless))
	for s := range m.wireless {
		sessions = append(sessions, s)
	}
	m.subsMu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReopens)

	for _, s := range baseStns {
		s := s
		if !s.Detached() {
			continue
		}
		g.Go(func() error {
			if err := s.Open(gctx); err != nil {
				m.logger.Warn("base station reactor reopen failed", slog.Any("err", err))
			}
			return nil
		})
	}
	for _, s := range sessions {
		s := s
		if !s.Detached() {
			continue
		}
		g.Go(func() error {
			if err := s.Open(gctx); err != nil {
				m.logger.Warn("wireless session reopen failed", slog.Any("err", err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) onLeaveReady() {
	m.reactorMu.Lock()
	r := m.deviceEventReactor
	m.deviceEventReactor = nil
	m.reactorMu.Unlock()
	if r != nil {
		r.Cancel()
	}

	m.mu.Lock()
	m.inventory = make(map[uint64]wire.DeviceDescriptor)
	m.mu.Unlock()
}

func (m *Monitor) openDeviceEventStream(ctx context.Context) {
	m.reactorMu.Lock()
	if m.deviceEventReactor != nil {
		m.reactorMu.Unlock()
		return
	}
	m.reactorMu.Unlock()

	r := reactor.New(func(ev wire.TrackingDeviceEvent) { m.processDeviceEvent(ctx, ev) }, m.clearDeviceEventReactor)
	if err := r.Open(ctx, func(ctx context.Context) (reactor.Stream[wire.TrackingDeviceEvent], error) {
		return m.client.OpenTrackingDevicesEventStream(ctx)
	}); err != nil {
		m.logger.Warn("device event stream open failed", slog.Any("err", err))
		return
	}

	m.reactorMu.Lock()
	m.deviceEventReactor = r
	m.reactorMu.Unlock()
}

func (m *Monitor) clearDeviceEventReactor() {
	m.reactorMu.Lock()
	m.deviceEventReactor = nil
	m.reactorMu.Unlock()
}

// processDeviceEvent is the device-event processor of spec.md §4.7: it
// maintains the inventory, then fans the event out to every open
// DeviceData and DataFrame subscription, then invokes the user's
// callback. Lock order is inventory -> subscription list -> per-
// subscription map -> ring, matching spec.md §5; the subscription
// snapshot is taken and the locks released before calling out, since
// user callbacks must never run with a core lock held.
func (m *Monitor) processDeviceEvent(ctx context.Context, ev wire.TrackingDeviceEvent) {
	hash := ev.Descriptor.ID.Hash()

	m.mu.Lock()
	_, present := m.inventory[hash]
	switch {
	case present && ev.Connected:
		m.inventory[hash] = ev.Descriptor
	case present && !ev.Connected:
		delete(m.inventory, hash)
	case !present && ev.Connected:
		m.inventory[hash] = ev.Descriptor
	}
	deviceEventCB := m.deviceEventCB
	m.mu.Unlock()

	m.subsMu.RLock()
	deviceSubs := make([]deviceStreamSubscriber, 0, len(m.deviceSubs))
	for _, s := range m.deviceSubs {
		deviceSubs = append(deviceSubs, s)
	}
	frameSubs := make([]frameStreamSubscriber, 0, len(m.frameSubs))
	for _, s := range m.frameSubs {
		frameSubs = append(frameSubs, s)
	}
	m.subsMu.RUnlock()

	for _, sub := range deviceSubs {
		sub.UpdateDeviceStream(ctx, ev.Descriptor, ev.Connected)
	}
	for _, sub := range frameSubs {
		sub.UpdateFrameStream(ctx, ev.Descriptor, ev.Connected)
	}

	if deviceEventCB != nil {
		deviceEventCB(ev)
	}
}
