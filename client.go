// Package trackingsdk is the client-side core of a motion-tracking SDK:
// it mediates between caller code and a remote tracking service's
// request/response and streaming RPC surface, turning that into a
// tag-based pull-and-push API. Open a logical subscription with one of
// the Request* methods, pull bounded windows of the most recent sensor
// packets on demand, and optionally register per-packet callbacks.
package trackingsdk

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ommotech/trackingsdk/internal/registry"
	"github.com/ommotech/trackingsdk/internal/wire"
	"github.com/ommotech/trackingsdk/internal/wireless"
)

// Client is the public handle to one connection to the tracking
// service (spec.md §6). Construct with New; call Start before issuing
// subscriptions that should see live data, and Shutdown when done.
type Client struct {
	conn *grpc.ClientConn
	reg  *registry.Registry
}

// New dials addr (defaulting to wire.DefaultAddress, "localhost:50051",
// with insecure transport credentials per spec.md §6) and builds the
// SDK core around the resulting connection.
func New(addr string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if addr == "" {
		addr = wire.DefaultAddress
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, cfg.dialOptions...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("trackingsdk: dial %s: %w", addr, err)
	}

	wc := wire.NewClient(conn)
	reg := registry.New(wc, conn, registry.Options{
		BufferSize:          cfg.bufferSize,
		ChannelPollInterval: cfg.channelPollInterval,
		Logger:              cfg.logger,
	})

	return &Client{conn: conn, reg: reg}, nil
}

// Start launches the Channel Monitor and begins processing the
// background stream-completion work (spec.md §4.8).
func (c *Client) Start() {
	c.reg.Start()
}

// Shutdown cancels every subscription's streams, cancels base-station
// and wireless reactors, stops the Channel Monitor, drains its
// goroutines, and closes the underlying connection. Idempotent.
func (c *Client) Shutdown() {
	c.reg.Shutdown()
	_ = c.conn.Close()
}

// GetTrackingDevices returns the service's current device inventory.
func (c *Client) GetTrackingDevices(ctx context.Context) ([]DeviceDescriptor, error) {
	return c.reg.GetTrackingDevices(ctx)
}

// GetHardwareStates returns per-SIU hardware status.
func (c *Client) GetHardwareStates(ctx context.Context) ([]HardwareState, error) {
	return c.reg.GetHardwareStates(ctx)
}

// SetBaseStationMotorRunning enables or disables the base station's
// motor. Returns false on RPC failure (spec.md §7).
func (c *Client) SetBaseStationMotorRunning(ctx context.Context, active bool) (bool, error) {
	return c.reg.SetBaseStationMotorRunning(ctx, active)
}

// SelectReferenceDevice selects (or clears) the service's reference
// device.
func (c *Client) SelectReferenceDevice(ctx context.Context, enabled bool, siuUUID, portNum uint32) (bool, error) {
	return c.reg.SelectReferenceDevice(ctx, enabled, siuUUID, portNum)
}

// RegisterDeviceEventCallback registers cb to be invoked on every
// device connect/disconnect event.
func (c *Client) RegisterDeviceEventCallback(cb func(TrackingDeviceEvent)) {
	c.reg.RegisterDeviceEventCallback(cb)
}

// ResetDeviceEventCallback clears the device-event callback.
func (c *Client) ResetDeviceEventCallback() {
	c.reg.ResetDeviceEventCallback()
}

// RegisterChannelStateCallback registers cb to be invoked on every
// channel-state transition.
func (c *Client) RegisterChannelStateCallback(cb func(ChannelState)) {
	c.reg.RegisterChannelStateCallback(cb)
}

// ResetChannelStateCallback clears the channel-state callback.
func (c *Client) ResetChannelStateCallback() {
	c.reg.ResetChannelStateCallback()
}

// RegisterReferenceDeviceStateEventCallback registers cb to be invoked
// whenever the service's selected reference device changes.
func (c *Client) RegisterReferenceDeviceStateEventCallback(cb func(ReferenceDeviceStateEvent)) {
	c.reg.RegisterReferenceDeviceStateEventCallback(cb)
}

// ResetReferenceDeviceStateEventCallback clears that callback.
func (c *Client) ResetReferenceDeviceStateEventCallback() {
	c.reg.ResetReferenceDeviceStateEventCallback()
}

// RequestDeviceData opens a DeviceData subscription and returns its
// tag.
func (c *Client) RequestDeviceData(req DataRequest) Tag {
	return c.reg.RequestDeviceData(req)
}

// RequestDataFrame opens a DataFrame subscription and returns its tag.
func (c *Client) RequestDataFrame(req DataRequest) Tag {
	return c.reg.RequestDataFrame(req)
}

// RequestBaseStationData joins (or opens) the shared base-station
// subscription and returns a new tag bound to it.
func (c *Client) RequestBaseStationData() Tag {
	return c.reg.RequestBaseStationData()
}

// CloseRequest closes a DeviceData or DataFrame subscription. A no-op
// for an unknown tag.
func (c *Client) CloseRequest(tag Tag) {
	c.reg.CloseRequest(tag)
}

// CloseBaseStationDataRequest drops tag's hold on the shared
// base-station subscription.
func (c *Client) CloseBaseStationDataRequest(tag Tag) {
	c.reg.CloseBaseStationDataRequest(tag)
}

// GetAvailableDeviceList returns the devices tag currently has storage
// for.
func (c *Client) GetAvailableDeviceList(tag Tag) []DeviceID {
	return c.reg.GetAvailableDeviceList(tag)
}

// GetLatestData returns the most recent packet for id under tag.
func (c *Client) GetLatestData(tag Tag, id DeviceID) Result {
	return c.reg.GetLatestData(tag, id)
}

// GetLatestDataN returns the last n packets for id under tag.
func (c *Client) GetLatestDataN(tag Tag, id DeviceID, n int) Result {
	return c.reg.GetLatestDataN(tag, id, n)
}

// GetLatestDataWithTimeout returns the most recent packet for id under
// tag if it is fresh enough (DeviceData subscriptions only).
func (c *Client) GetLatestDataWithTimeout(tag Tag, id DeviceID, timeout time.Duration) Result {
	return c.reg.GetLatestDataWithTimeout(tag, id, timeout)
}

// GetDataWithMaxAge returns the newest contiguous run of packets for id
// under tag within maxAge (DeviceData subscriptions only).
func (c *Client) GetDataWithMaxAge(tag Tag, id DeviceID, maxAge time.Duration) Result {
	return c.reg.GetDataWithMaxAge(tag, id, maxAge)
}

// GetDataSinceIndex returns every packet for id under tag with
// packet_idx >= i.
func (c *Client) GetDataSinceIndex(tag Tag, id DeviceID, i uint64) Result {
	return c.reg.GetDataSinceIndex(tag, id, i)
}

// GetLatestBaseStationData returns the last n base-station packets
// visible to tag, or the single latest if n <= 0.
func (c *Client) GetLatestBaseStationData(tag Tag, n int) Result {
	return c.reg.GetLatestBaseStationData(tag, n)
}

// GetBaseStationDataSinceIndex returns base-station packets visible to
// tag with packet_idx >= i.
func (c *Client) GetBaseStationDataSinceIndex(tag Tag, i uint64) Result {
	return c.reg.GetBaseStationDataSinceIndex(tag, i)
}

// RegisterTrackingDeviceDataCallback registers cb for tag, replacing
// any prior registration. A no-op, logged as a warning, if tag is not a
// DeviceData subscription (spec.md §7).
func (c *Client) RegisterTrackingDeviceDataCallback(tag Tag, cb func(Packet)) {
	c.reg.RegisterTrackingDeviceDataCallback(tag, cb)
}

// ResetTrackingDeviceDataCallback clears tag's device-data callback.
func (c *Client) ResetTrackingDeviceDataCallback(tag Tag) {
	c.reg.ResetTrackingDeviceDataCallback(tag)
}

// RegisterDataFrameCallback registers cb for tag, replacing any prior
// registration. A no-op, logged as a warning, if tag is not a
// DataFrame subscription.
func (c *Client) RegisterDataFrameCallback(tag Tag, cb func(DataFrame)) {
	c.reg.RegisterDataFrameCallback(tag, cb)
}

// ResetDataFrameCallback clears tag's frame callback.
func (c *Client) ResetDataFrameCallback(tag Tag) {
	c.reg.ResetDataFrameCallback(tag)
}

// CreateWirelessManager opens a new wireless control session and
// returns an opaque handle.
func (c *Client) CreateWirelessManager() WirelessHandle {
	return c.reg.CreateWirelessManager()
}

// DeleteWirelessManager closes and forgets handle.
func (c *Client) DeleteWirelessManager(handle WirelessHandle) {
	c.reg.DeleteWirelessManager(handle)
}

// RegisterWirelessEventCallback registers cb to receive inbound events
// on handle's wireless management stream.
func (c *Client) RegisterWirelessEventCallback(handle WirelessHandle, cb func(WirelessManagementEvent)) {
	if s, ok := c.reg.WirelessSession(handle); ok {
		s.SetCallback(cb)
	}
}

// ResetWirelessEventCallback clears handle's event callback.
func (c *Client) ResetWirelessEventCallback(handle WirelessHandle) {
	if s, ok := c.reg.WirelessSession(handle); ok {
		s.ResetCallback()
	}
}

func (c *Client) wirelessCall(handle WirelessHandle, fn func(*wireless.Session) bool) bool {
	s, ok := c.reg.WirelessSession(handle)
	if !ok {
		return false
	}
	return fn(s)
}

// EnableWirelessPairing requests the base station accept new pairing
// requests.
func (c *Client) EnableWirelessPairing(handle WirelessHandle) bool {
	return c.wirelessCall(handle, (*wireless.Session).EnablePairing)
}

// DisableWirelessPairing requests the base station stop accepting new
// pairing requests.
func (c *Client) DisableWirelessPairing(handle WirelessHandle) bool {
	return c.wirelessCall(handle, (*wireless.Session).DisablePairing)
}

// ApproveWirelessPairing approves a pending pairing request.
func (c *Client) ApproveWirelessPairing(handle WirelessHandle, uuid uint32) bool {
	return c.wirelessCall(handle, func(s *wireless.Session) bool { return s.ApprovePairing(uuid) })
}

// DenyWirelessPairing denies a pending pairing request.
func (c *Client) DenyWirelessPairing(handle WirelessHandle, uuid uint32) bool {
	return c.wirelessCall(handle, func(s *wireless.Session) bool { return s.DenyPairing(uuid) })
}

// UnpairWireless removes a previously paired device.
func (c *Client) UnpairWireless(handle WirelessHandle, uuid uint32) bool {
	return c.wirelessCall(handle, func(s *wireless.Session) bool { return s.Unpair(uuid) })
}

// BlockWireless blocks a device from pairing.
func (c *Client) BlockWireless(handle WirelessHandle, uuid uint32) bool {
	return c.wirelessCall(handle, func(s *wireless.Session) bool { return s.Block(uuid) })
}

// UnblockWireless reverses BlockWireless.
func (c *Client) UnblockWireless(handle WirelessHandle, uuid uint32) bool {
	return c.wirelessCall(handle, func(s *wireless.Session) bool { return s.Unblock(uuid) })
}

// ClearWirelessBlocked clears the base station's blocked-device list.
func (c *Client) ClearWirelessBlocked(handle WirelessHandle) bool {
	return c.wirelessCall(handle, (*wireless.Session).ClearBlocked)
}

// ClearWirelessApproved clears the base station's approved-device
// list.
func (c *Client) ClearWirelessApproved(handle WirelessHandle) bool {
	return c.wirelessCall(handle, (*wireless.Session).ClearApproved)
}

// ResetWirelessConfig resets the base station's wireless
// configuration.
func (c *Client) ResetWirelessConfig(handle WirelessHandle) bool {
	return c.wirelessCall(handle, (*wireless.Session).ResetConfig)
}

// SetWirelessIntervalLength sets the wireless polling interval length
// in milliseconds.
func (c *Client) SetWirelessIntervalLength(handle WirelessHandle, intervalMs uint32) bool {
	return c.wirelessCall(handle, func(s *wireless.Session) bool { return s.SetIntervalLength(intervalMs) })
}

// ApproveWirelessIntervalPairing approves a pending interval-pairing
// request.
func (c *Client) ApproveWirelessIntervalPairing(handle WirelessHandle, uuid uint32) bool {
	return c.wirelessCall(handle, func(s *wireless.Session) bool { return s.ApproveIntervalPairing(uuid) })
}

// SleepWirelessDevice requests the device enter low-power sleep.
func (c *Client) SleepWirelessDevice(handle WirelessHandle, uuid uint32) bool {
	return c.wirelessCall(handle, func(s *wireless.Session) bool { return s.Sleep(uuid) })
}

// WakeWirelessDevice requests the device wake from sleep.
func (c *Client) WakeWirelessDevice(handle WirelessHandle, uuid uint32) bool {
	return c.wirelessCall(handle, func(s *wireless.Session) bool { return s.Wake(uuid) })
}

// EnableDataLogging requests the service begin capturing packets to
// dir/file.
func (c *Client) EnableDataLogging(ctx context.Context, dir, file string, overwrite bool) (DataLogState, error) {
	return c.reg.EnableDataLogging(ctx, dir, file, overwrite)
}

// DisableDataLogging requests the service stop capturing packets.
func (c *Client) DisableDataLogging(ctx context.Context) (DataLogState, error) {
	return c.reg.DisableDataLogging(ctx)
}
