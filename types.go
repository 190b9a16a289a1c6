package trackingsdk

import (
	"github.com/ommotech/trackingsdk/internal/params"
	"github.com/ommotech/trackingsdk/internal/ring"
	"github.com/ommotech/trackingsdk/internal/wire"
)

// Tag is the opaque handle spec.md §3 hands out for every open
// subscription. Tag 0 denotes invalid/failure; in this implementation
// the registry never hands out 0, so any non-zero Tag that is not
// currently open is simply treated as unknown (spec.md §7).
type Tag = uint32

// WirelessHandle is the opaque handle returned by CreateWirelessManager.
type WirelessHandle = uint32

// Data model types (spec.md §3), re-exported from the internal wire
// package so callers never need to import it directly.
type (
	DeviceID                  = wire.DeviceID
	DeviceDescriptor          = wire.DeviceDescriptor
	SensorUnitDescriptor      = wire.SensorUnitDescriptor
	FusionMode                = wire.FusionMode
	Pose                      = wire.Pose
	ReportMetadata            = wire.ReportMetadata
	BatteryState              = wire.BatteryState
	LatencyStamp              = wire.LatencyStamp
	LatencyStampKind          = wire.LatencyStampKind
	Packet                    = wire.Packet
	DataFrame                 = wire.DataFrame
	FramePayload              = wire.FramePayload
	TrackingDeviceEvent       = wire.TrackingDeviceEvent
	ChannelState              = wire.ChannelState
	HardwareState             = wire.HardwareState
	WirelessManagementEvent   = wire.WirelessManagementEvent
	WirelessEventKind         = wire.WirelessEventKind
	ReferenceDeviceStateEvent = wire.ReferenceDeviceStateEvent
	DataLogState              = wire.DataLogState
)

const (
	FusionModeUnspecified = wire.FusionModeUnspecified
	FusionModeSixDOF      = wire.FusionModeSixDOF
	FusionModeNineDOF     = wire.FusionModeNineDOF
	FusionModeMagFree     = wire.FusionModeMagFree

	LatencyStampSample          = wire.LatencyStampSample
	LatencyStampServiceReceived = wire.LatencyStampServiceReceived
	LatencyStampServiceSent     = wire.LatencyStampServiceSent
	LatencyStampSDKReceived     = wire.LatencyStampSDKReceived

	ChannelIdle             = wire.ChannelIdle
	ChannelConnecting       = wire.ChannelConnecting
	ChannelReady            = wire.ChannelReady
	ChannelTransientFailure = wire.ChannelTransientFailure
	ChannelShutdown         = wire.ChannelShutdown
	ChannelUnknown          = wire.ChannelUnknown

	DataLogDisabled = wire.DataLogDisabled
	DataLogEnabled  = wire.DataLogEnabled
	DataLogRpcFail  = wire.DataLogRpcFail
)

// DataRequest is the common parameter set for a DeviceData or DataFrame
// subscription (spec.md §3).
type DataRequest = params.DataRequest

// Result is the outcome of a pull read against a Ring (spec.md §4.1).
type Result = ring.Result

// IndexedPacket pairs a packet with the monotonic index its Ring
// assigned it.
type IndexedPacket = ring.IndexedPacket

// Status reports what kind of result a read returned.
type Status = ring.Status

const (
	StatusNoData      = ring.StatusNoData
	StatusPartialData = ring.StatusPartialData
	StatusSuccess     = ring.StatusSuccess
)
