// Package registry implements the Tag Registry & Dispatch Facade
// (spec.md §4.8): the sole point of interaction the public SDK handle
// delegates to. It allocates user-visible tags, routes calls to the
// right Manager/Storage, and owns shutdown ordering.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ommotech/trackingsdk/internal/basestation"
	"github.com/ommotech/trackingsdk/internal/channelmonitor"
	"github.com/ommotech/trackingsdk/internal/devicedata"
	"github.com/ommotech/trackingsdk/internal/framedata"
	"github.com/ommotech/trackingsdk/internal/params"
	"github.com/ommotech/trackingsdk/internal/reactor"
	"github.com/ommotech/trackingsdk/internal/ring"
	"github.com/ommotech/trackingsdk/internal/wire"
	"github.com/ommotech/trackingsdk/internal/wireless"
)

// ErrUnknownTag names the usage error of a call that names a tag the
// registry has never issued or has already closed. No Registry method
// returns it: such calls are no-ops, or reads yielding StatusNoData
// (spec.md §7's usage-error taxonomy).
var ErrUnknownTag = errors.New("trackingsdk: unknown tag")

// ErrWrongSubscriptionKind is logged as a warning when a caller
// registers a frame callback on a device-data tag or vice versa
// (spec.md §7).
var ErrWrongSubscriptionKind = errors.New("trackingsdk: wrong subscription kind for this tag")

// shutdownFanOutLimit bounds how many subscriptions Shutdown tears down
// concurrently.
const shutdownFanOutLimit = 8

type subscriptionKind int

const (
	kindDeviceData subscriptionKind = iota
	kindDataFrame
)

type subscription struct {
	kind       subscriptionKind
	deviceData *devicedata.Manager
	frameData  *framedata.Manager
}

// Registry holds every strong reference the core keeps: the tag table,
// the optional shared base-station storage and its refcounting tag set,
// and the wireless sessions, all driven by an owned Channel Monitor.
type Registry struct {
	client  wire.Client
	logger  *slog.Logger
	bufSize int

	monitor *channelmonitor.Monitor

	mu      sync.RWMutex
	nextTag uint32
	subs    map[uint32]*subscription

	baseStation     *basestation.Storage
	baseStationTags map[uint32]struct{}

	wirelessMu      sync.Mutex
	nextWireless    uint32
	wirelessSessions map[uint32]*wireless.Session

	refMu      sync.Mutex
	refReactor *reactor.Reactor[wire.ReferenceDeviceStateEvent]
	refCB      func(wire.ReferenceDeviceStateEvent)

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	startOnce    sync.Once
	shutdownOnce sync.Once
}

// Options configures a Registry at construction time.
type Options struct {
	BufferSize         int
	ChannelPollInterval time.Duration
	Logger             *slog.Logger
}

// New creates a Registry wired against client (for issuing RPCs) and
// conn (for the Channel Monitor's transport-state polling).
func New(client wire.Client, conn wire.Conn, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = ring.DefaultCapacity
	}
	r := &Registry{
		client:           client,
		logger:           logger,
		bufSize:          bufSize,
		subs:             make(map[uint32]*subscription),
		baseStationTags:  make(map[uint32]struct{}),
		wirelessSessions: make(map[uint32]*wireless.Session),
	}
	r.monitor = channelmonitor.New(conn, client, opts.ChannelPollInterval, logger)
	return r
}

// Start launches the Channel Monitor. Safe to call once; later calls
// are no-ops.
func (r *Registry) Start() {
	r.startOnce.Do(func() {
		r.runCtx, r.cancelRun = context.WithCancel(context.Background())
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.monitor.Run(r.runCtx)
		}()
	})
}

// Shutdown cancels every subscription's streams, cancels base-station
// and wireless reactors, stops the Channel Monitor, and drops all
// subscriptions. Idempotent.
func (r *Registry) Shutdown() {
	r.shutdownOnce.Do(func() {
		if r.cancelRun != nil {
			r.cancelRun()
		}

		r.mu.Lock()
		subs := make([]*subscription, 0, len(r.subs))
		for _, s := range r.subs {
			subs = append(subs, s)
		}
		r.subs = make(map[uint32]*subscription)
		bs := r.baseStation
		r.baseStation = nil
		r.baseStationTags = make(map[uint32]struct{})
		r.mu.Unlock()

		var g errgroup.Group
		g.SetLimit(shutdownFanOutLimit)
		for _, s := range subs {
			s := s
			g.Go(func() error {
				switch s.kind {
				case kindDeviceData:
					s.deviceData.Close()
				case kindDataFrame:
					s.frameData.Close()
				}
				return nil
			})
		}
		_ = g.Wait()
		if bs != nil {
			bs.Cancel()
		}

		r.wirelessMu.Lock()
		sessions := make([]*wireless.Session, 0, len(r.wirelessSessions))
		for _, s := range r.wirelessSessions {
			sessions = append(sessions, s)
		}
		r.wirelessSessions = make(map[uint32]*wireless.Session)
		r.wirelessMu.Unlock()
		for _, s := range sessions {
			s.Cancel()
		}

		r.refMu.Lock()
		rr := r.refReactor
		r.refReactor = nil
		r.refMu.Unlock()
		if rr != nil {
			rr.Cancel()
		}

		r.wg.Wait()
	})
}

func (r *Registry) allocTag() uint32 {
	r.nextTag++
	return r.nextTag
}

// context used to open streams. Before Start, falls back to Background
// so unit tests can open subscriptions without a running monitor.
func (r *Registry) ctx() context.Context {
	if r.runCtx != nil {
		return r.runCtx
	}
	return context.Background()
}

// RequestDeviceData opens a DeviceData subscription and returns its tag.
func (r *Registry) RequestDeviceData(req params.DataRequest) uint32 {
	mgr := devicedata.New(r.client, req, r.bufSize, r.logger)

	r.mu.Lock()
	tag := r.allocTag()
	r.subs[tag] = &subscription{kind: kindDeviceData, deviceData: mgr}
	r.mu.Unlock()

	r.monitor.AddDeviceDataSubscription(tag, mgr)

	for _, d := range r.monitor.Inventory() {
		if mgr.IsRequested(d.ID) {
			mgr.UpdateDeviceStream(r.ctx(), d, true)
		}
	}
	return tag
}

// RequestDataFrame opens a DataFrame subscription and returns its tag.
func (r *Registry) RequestDataFrame(req params.DataRequest) uint32 {
	mgr := framedata.New(r.client, req, r.bufSize, r.logger)

	r.mu.Lock()
	tag := r.allocTag()
	r.subs[tag] = &subscription{kind: kindDataFrame, frameData: mgr}
	r.mu.Unlock()

	r.monitor.AddFrameSubscription(tag, mgr)

	for _, d := range r.monitor.Inventory() {
		if mgr.IsRequested(d.ID) {
			mgr.EnsureStorage(d.ID)
		}
	}
	mgr.Reopen(r.ctx())
	return tag
}

// RequestBaseStationData opens (or joins) the shared base-station
// storage and returns a new tag bound to it (spec.md §4.5's
// refcounting).
func (r *Registry) RequestBaseStationData() uint32 {
	r.mu.Lock()
	if r.baseStation == nil {
		r.baseStation = basestation.New(r.client, r.bufSize, r.logger)
		r.monitor.AddBaseStation(r.baseStation)
	}
	bs := r.baseStation
	tag := r.allocTag()
	r.baseStationTags[tag] = struct{}{}
	r.mu.Unlock()

	if err := bs.Open(r.ctx()); err != nil {
		r.logger.Warn("base station open failed", slog.Any("err", err))
	}
	return tag
}

// CloseRequest closes a DeviceData or DataFrame subscription. No-op for
// an unknown tag (spec.md §7).
func (r *Registry) CloseRequest(tag uint32) {
	r.mu.Lock()
	s, ok := r.subs[tag]
	if ok {
		delete(r.subs, tag)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	switch s.kind {
	case kindDeviceData:
		r.monitor.RemoveDeviceDataSubscription(tag)
		s.deviceData.Close()
	case kindDataFrame:
		r.monitor.RemoveFrameSubscription(tag)
		s.frameData.Close()
	}
}

// CloseBaseStationDataRequest drops tag's hold on the shared
// base-station storage, cancelling the backing reactor once the last
// tag is gone (spec.md §4.5).
func (r *Registry) CloseBaseStationDataRequest(tag uint32) {
	r.mu.Lock()
	if _, ok := r.baseStationTags[tag]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.baseStationTags, tag)
	var bs *basestation.Storage
	if len(r.baseStationTags) == 0 {
		bs = r.baseStation
		r.baseStation = nil
	}
	r.mu.Unlock()

	if bs != nil {
		r.monitor.RemoveBaseStation(bs)
		bs.Cancel()
	}
}

func (r *Registry) deviceDataSub(tag uint32) (*devicedata.Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[tag]
	if !ok || s.kind != kindDeviceData {
		return nil, false
	}
	return s.deviceData, true
}

func (r *Registry) frameDataSub(tag uint32) (*framedata.Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[tag]
	if !ok || s.kind != kindDataFrame {
		return nil, false
	}
	return s.frameData, true
}

func (r *Registry) hasBaseStationTag(tag uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.baseStationTags[tag]
	return ok
}

// GetAvailableDeviceList returns the devices tag currently has storage
// for; empty for an unknown tag (spec.md L5).
func (r *Registry) GetAvailableDeviceList(tag uint32) []wire.DeviceID {
	if mgr, ok := r.deviceDataSub(tag); ok {
		return mgr.AvailableDevices()
	}
	if mgr, ok := r.frameDataSub(tag); ok {
		return mgr.AvailableDevices()
	}
	return nil
}

// GetLatestData returns the most recent packet for id under tag.
func (r *Registry) GetLatestData(tag uint32, id wire.DeviceID) ring.Result {
	if mgr, ok := r.deviceDataSub(tag); ok {
		return mgr.GetLatest(id)
	}
	if mgr, ok := r.frameDataSub(tag); ok {
		return mgr.GetLatest(id)
	}
	return ring.Result{Status: ring.StatusNoData}
}

// GetLatestDataN returns the last n packets for id under tag.
func (r *Registry) GetLatestDataN(tag uint32, id wire.DeviceID, n int) ring.Result {
	if mgr, ok := r.deviceDataSub(tag); ok {
		return mgr.GetLatestN(id, n)
	}
	if mgr, ok := r.frameDataSub(tag); ok {
		return mgr.GetLatestN(id, n)
	}
	return ring.Result{Status: ring.StatusNoData}
}

// GetLatestDataWithTimeout returns the most recent packet for id under
// tag if it is fresh enough. Only meaningful for DeviceData tags.
func (r *Registry) GetLatestDataWithTimeout(tag uint32, id wire.DeviceID, timeout time.Duration) ring.Result {
	if mgr, ok := r.deviceDataSub(tag); ok {
		return mgr.GetLatestWithTimeout(id, timeout)
	}
	return ring.Result{Status: ring.StatusNoData}
}

// GetDataWithMaxAge returns the newest contiguous run of packets for id
// under tag within maxAge.
func (r *Registry) GetDataWithMaxAge(tag uint32, id wire.DeviceID, maxAge time.Duration) ring.Result {
	if mgr, ok := r.deviceDataSub(tag); ok {
		return mgr.GetWithMaxAge(id, maxAge)
	}
	return ring.Result{Status: ring.StatusNoData}
}

// GetDataSinceIndex returns every packet for id under tag with
// packet_idx >= i.
func (r *Registry) GetDataSinceIndex(tag uint32, id wire.DeviceID, i uint64) ring.Result {
	if mgr, ok := r.deviceDataSub(tag); ok {
		return mgr.GetSinceIndex(id, i)
	}
	if mgr, ok := r.frameDataSub(tag); ok {
		return mgr.GetSinceIndex(id, i)
	}
	return ring.Result{Status: ring.StatusNoData}
}

// GetLatestBaseStationData returns the last n base-station packets, or
// the single latest if n <= 0. An unbound tag yields StatusNoData.
func (r *Registry) GetLatestBaseStationData(tag uint32, n int) ring.Result {
	if !r.hasBaseStationTag(tag) {
		return ring.Result{Status: ring.StatusNoData}
	}
	r.mu.RLock()
	bs := r.baseStation
	r.mu.RUnlock()
	if bs == nil {
		return ring.Result{Status: ring.StatusNoData}
	}
	if n <= 0 {
		return bs.Ring().Latest()
	}
	return bs.Ring().LatestN(n)
}

// GetBaseStationDataSinceIndex returns base-station packets since index
// i for tag.
func (r *Registry) GetBaseStationDataSinceIndex(tag uint32, i uint64) ring.Result {
	if !r.hasBaseStationTag(tag) {
		return ring.Result{Status: ring.StatusNoData}
	}
	r.mu.RLock()
	bs := r.baseStation
	r.mu.RUnlock()
	if bs == nil {
		return ring.Result{Status: ring.StatusNoData}
	}
	return bs.Ring().SinceIndex(i)
}

// RegisterTrackingDeviceDataCallback registers cb for tag. Logged and
// ignored if tag is not a DeviceData subscription (spec.md §7).
func (r *Registry) RegisterTrackingDeviceDataCallback(tag uint32, cb func(wire.Packet)) {
	mgr, ok := r.deviceDataSub(tag)
	if !ok {
		r.warnWrongKind(tag, "device data callback")
		return
	}
	mgr.SetCallback(cb)
}

// ResetTrackingDeviceDataCallback clears tag's device-data callback.
func (r *Registry) ResetTrackingDeviceDataCallback(tag uint32) {
	if mgr, ok := r.deviceDataSub(tag); ok {
		mgr.ResetCallback()
	}
}

// RegisterDataFrameCallback registers cb for tag. Logged and ignored if
// tag is not a DataFrame subscription.
func (r *Registry) RegisterDataFrameCallback(tag uint32, cb func(wire.DataFrame)) {
	mgr, ok := r.frameDataSub(tag)
	if !ok {
		r.warnWrongKind(tag, "data frame callback")
		return
	}
	mgr.SetCallback(cb)
}

// ResetDataFrameCallback clears tag's frame callback.
func (r *Registry) ResetDataFrameCallback(tag uint32) {
	if mgr, ok := r.frameDataSub(tag); ok {
		mgr.ResetCallback()
	}
}

func (r *Registry) warnWrongKind(tag uint32, what string) {
	r.mu.RLock()
	_, known := r.subs[tag]
	r.mu.RUnlock()
	if !known {
		return
	}
	r.logger.Warn(fmt.Sprintf("%s registration ignored: wrong subscription kind", what), slog.Any("tag", tag), slog.Any("err", ErrWrongSubscriptionKind))
}

// RegisterDeviceEventCallback registers the user's device-event
// callback.
func (r *Registry) RegisterDeviceEventCallback(cb func(wire.TrackingDeviceEvent)) {
	r.monitor.SetDeviceEventCallback(cb)
}

// ResetDeviceEventCallback clears the device-event callback.
func (r *Registry) ResetDeviceEventCallback() {
	r.monitor.SetDeviceEventCallback(nil)
}

// RegisterChannelStateCallback registers the user's channel-state
// callback.
func (r *Registry) RegisterChannelStateCallback(cb func(wire.ChannelState)) {
	r.monitor.SetChannelStateCallback(cb)
}

// ResetChannelStateCallback clears the channel-state callback.
func (r *Registry) ResetChannelStateCallback() {
	r.monitor.SetChannelStateCallback(nil)
}

// RegisterReferenceDeviceStateEventCallback registers cb and, on first
// registration, opens the reference-device-state stream that feeds it.
// Unlike the base-station and wireless reactors, this stream is not in
// the Channel Monitor's enumerated reopen set (spec.md §4.7 names only
// those two); a failed open is logged, and a dropped connection leaves
// the stream closed until the caller re-registers.
func (r *Registry) RegisterReferenceDeviceStateEventCallback(cb func(wire.ReferenceDeviceStateEvent)) {
	r.refMu.Lock()
	r.refCB = cb
	needOpen := r.refReactor == nil
	r.refMu.Unlock()
	if needOpen {
		r.openReferenceDeviceStream()
	}
}

// ResetReferenceDeviceStateEventCallback clears the callback.
func (r *Registry) ResetReferenceDeviceStateEventCallback() {
	r.refMu.Lock()
	r.refCB = nil
	r.refMu.Unlock()
}

func (r *Registry) openReferenceDeviceStream() {
	rr := reactor.New(r.deliverReferenceDeviceEvent, r.clearRefReactor)
	if err := rr.Open(r.ctx(), func(ctx context.Context) (reactor.Stream[wire.ReferenceDeviceStateEvent], error) {
		return r.client.OpenReferenceDeviceStateStream(ctx)
	}); err != nil {
		r.logger.Warn("reference device state stream open failed", slog.Any("err", err))
		return
	}
	r.refMu.Lock()
	r.refReactor = rr
	r.refMu.Unlock()
}

func (r *Registry) deliverReferenceDeviceEvent(ev wire.ReferenceDeviceStateEvent) {
	r.refMu.Lock()
	cb := r.refCB
	r.refMu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func (r *Registry) clearRefReactor() {
	r.refMu.Lock()
	r.refReactor = nil
	r.refMu.Unlock()
}

// CreateWirelessManager opens a new wireless control session and
// returns an opaque handle.
func (r *Registry) CreateWirelessManager() uint32 {
	sess := wireless.New(r.client, r.logger)

	r.wirelessMu.Lock()
	r.nextWireless++
	handle := r.nextWireless
	r.wirelessSessions[handle] = sess
	r.wirelessMu.Unlock()

	r.monitor.AddWirelessSession(sess)
	if err := sess.Open(r.ctx()); err != nil {
		r.logger.Warn("wireless manager open failed", slog.Any("err", err))
	}
	return handle
}

// DeleteWirelessManager closes and forgets handle.
func (r *Registry) DeleteWirelessManager(handle uint32) {
	r.wirelessMu.Lock()
	sess, ok := r.wirelessSessions[handle]
	if ok {
		delete(r.wirelessSessions, handle)
	}
	r.wirelessMu.Unlock()
	if !ok {
		return
	}
	r.monitor.RemoveWirelessSession(sess)
	sess.Cancel()
}

// WirelessSession resolves handle to its session, for the facade's
// control-method dispatch.
func (r *Registry) WirelessSession(handle uint32) (*wireless.Session, bool) {
	r.wirelessMu.Lock()
	defer r.wirelessMu.Unlock()
	s, ok := r.wirelessSessions[handle]
	return s, ok
}

// GetTrackingDevices issues the unary RPC directly.
func (r *Registry) GetTrackingDevices(ctx context.Context) ([]wire.DeviceDescriptor, error) {
	return r.client.GetTrackingDevices(ctx)
}

// GetHardwareStates issues the unary RPC directly.
func (r *Registry) GetHardwareStates(ctx context.Context) ([]wire.HardwareState, error) {
	return r.client.GetHardwareStates(ctx)
}

// SetBaseStationMotorRunning issues the unary RPC directly.
func (r *Registry) SetBaseStationMotorRunning(ctx context.Context, active bool) (bool, error) {
	return r.client.SetBaseStationMotorRunning(ctx, active)
}

// SelectReferenceDevice issues the unary RPC directly.
func (r *Registry) SelectReferenceDevice(ctx context.Context, enabled bool, siuUUID, portNum uint32) (bool, error) {
	return r.client.SelectReferenceDevice(ctx, enabled, siuUUID, portNum)
}

// EnableDataLogging issues the data-logging-enable unary RPC.
func (r *Registry) EnableDataLogging(ctx context.Context, dir, file string, overwrite bool) (wire.DataLogState, error) {
	return r.client.SendDataLoggingRequest(ctx, dir, file, overwrite, true)
}

// DisableDataLogging issues the data-logging-disable unary RPC.
func (r *Registry) DisableDataLogging(ctx context.Context) (wire.DataLogState, error) {
	return r.client.SendDataLoggingRequest(ctx, "", "", false, false)
}
