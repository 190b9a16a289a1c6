// Package wire declares the surface this SDK consumes from the
// IDL-generated service stub. The stub itself (protoc-gen-go-grpc output)
// is an external collaborator per the spec this module implements; this
// package only names the shapes the core needs in order to stay
// testable without a live service.
package wire

import (
	"fmt"
	"time"
)

// DeviceID identifies a tracking device by the sensor-interface-unit it is
// plugged into and the port on that unit.
type DeviceID struct {
	SIUUUID uint32
	PortID  uint32
}

// Hash returns a collision-free 64-bit key suitable for map indexing.
// The source SDK this is distilled from used (siu_uuid<<8)|port_id, which
// collides for plausible inputs; widening to a 64-bit pair avoids that
// at no extra cost.
func (d DeviceID) Hash() uint64 {
	return uint64(d.SIUUUID)<<32 | uint64(d.PortID)
}

func (d DeviceID) String() string {
	return fmt.Sprintf("%08x:%d", d.SIUUUID, d.PortID)
}

// FusionMode enumerates the sensor-fusion modes a device may support.
type FusionMode int32

const (
	FusionModeUnspecified FusionMode = iota
	FusionModeSixDOF
	FusionModeNineDOF
	FusionModeMagFree
)

// SensorUnitDescriptor describes one onboard sensor unit of a device.
type SensorUnitDescriptor struct {
	Index       uint32
	Name        string
	HasAccel    bool
	HasGyro     bool
	HasMag      bool
	PoseCount   uint32
}

// DeviceDescriptor is the service's description of a connected device. It
// is copied on every deliver; the core never shares a single instance
// across manager boundaries.
type DeviceDescriptor struct {
	ID            DeviceID
	ButtonCount   uint32
	FusionModes   []FusionMode
	SensorUnits   []SensorUnitDescriptor
	PartNumber    string
}

// Clone returns a deep copy suitable for handing to a second manager.
func (d DeviceDescriptor) Clone() DeviceDescriptor {
	out := d
	out.FusionModes = append([]FusionMode(nil), d.FusionModes...)
	out.SensorUnits = append([]SensorUnitDescriptor(nil), d.SensorUnits...)
	return out
}

// LatencyStampKind tags one point in a packet's trip from sensor to SDK.
type LatencyStampKind int32

const (
	LatencyStampSample LatencyStampKind = iota
	LatencyStampServiceReceived
	LatencyStampServiceSent
	LatencyStampSDKReceived
)

// LatencyStamp is one timestamp in a packet's latency sequence.
type LatencyStamp struct {
	Kind LatencyStampKind
	At   time.Time
}

// Pose is one tracked pose on a device, ordered by PoseIndex.
type Pose struct {
	PoseIndex   uint32
	PositionXYZ [3]float32
	OrientWXYZ  [4]float32
}

// ReportMetadata carries the per-report fields the service stamps onto
// every packet.
type ReportMetadata struct {
	AngleDeg  float32
	SpeedMps  float32
	Timestamp time.Time
}

// BatteryState is the device's reported power status.
type BatteryState struct {
	PercentCharge float32
	Charging      bool
}

// Packet is one sample for one device. It is immutable after it is
// stored in a Ring.
type Packet struct {
	Device       DeviceID
	Report       ReportMetadata
	Poses        []Pose
	RawSensor    []float32
	Buttons      []bool
	Latency      []LatencyStamp
	Battery      BatteryState
}

// LatencyStampAt returns the latency timestamp of the given kind, and
// whether one was present.
func (p Packet) LatencyStampAt(kind LatencyStampKind) (time.Time, bool) {
	for _, s := range p.Latency {
		if s.Kind == kind {
			return s.At, true
		}
	}
	return time.Time{}, false
}

// TrackingDeviceEvent is delivered on the device-event stream.
type TrackingDeviceEvent struct {
	Connected  bool
	Descriptor DeviceDescriptor
}

// DataFrame bundles the per-device payloads the combined frame stream
// produces in a single delivery.
type DataFrame struct {
	Devices []FramePayload
}

// FramePayload is one device's contribution to a DataFrame.
type FramePayload struct {
	Device DeviceID
	Packet Packet
}

// ChannelState mirrors google.golang.org/grpc/connectivity.State's value
// set, which already matches the four/five states this SDK needs to
// observe (Idle, Connecting, Ready, TransientFailure, Shutdown).
type ChannelState int32

const (
	ChannelIdle ChannelState = iota
	ChannelConnecting
	ChannelReady
	ChannelTransientFailure
	ChannelShutdown
	// ChannelUnknown is the sentinel "never observed" state the Channel
	// Monitor starts from.
	ChannelUnknown ChannelState = -1
)

func (s ChannelState) String() string {
	switch s {
	case ChannelIdle:
		return "IDLE"
	case ChannelConnecting:
		return "CONNECTING"
	case ChannelReady:
		return "READY"
	case ChannelTransientFailure:
		return "TRANSIENT_FAILURE"
	case ChannelShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// HardwareState is the richer-than-a-single-enum hardware status payload
// the GetHardwareStates RPC returns: per-SIU connection quality, firmware
// version, and battery in one shot.
type HardwareState struct {
	SIUUUID           uint32
	ConnectionQuality float32
	FirmwareVersion   string
	Battery           BatteryState
}

// WirelessManagementEvent is delivered on the wireless bidi stream's
// inbound half. Ownership passes to the callback; the core allocates it
// once per delivery and does not retain it.
type WirelessManagementEvent struct {
	CorrelationID string
	UUID          uint32
	Kind          WirelessEventKind
	Detail        string
}

type WirelessEventKind int32

const (
	WirelessEventUnspecified WirelessEventKind = iota
	WirelessEventPairingRequested
	WirelessEventPairingApproved
	WirelessEventPairingDenied
	WirelessEventUnpaired
	WirelessEventBlocked
	WirelessEventUnblocked
	WirelessEventSlept
	WirelessEventWoke
)

// WirelessManagementRequest is one outbound message on the wireless bidi
// stream's write half.
type WirelessManagementRequest struct {
	CorrelationID string
	UUID          uint32
	Kind          WirelessRequestKind
	IntervalMs    uint32
}

type WirelessRequestKind int32

const (
	WirelessRequestEnablePairing WirelessRequestKind = iota
	WirelessRequestDisablePairing
	WirelessRequestApprovePairing
	WirelessRequestDenyPairing
	WirelessRequestUnpair
	WirelessRequestBlock
	WirelessRequestUnblock
	WirelessRequestClearBlocked
	WirelessRequestClearApproved
	WirelessRequestResetConfig
	WirelessRequestSetIntervalLength
	WirelessRequestApproveIntervalPairing
	WirelessRequestSleep
	WirelessRequestWake
)

// ReferenceDeviceStateEvent is delivered on the reference-device-state
// stream whenever the service's selected reference device changes.
type ReferenceDeviceStateEvent struct {
	Enabled bool
	Device  DeviceID
}

// DataLogState is the result of enabling or disabling local data logging
// on the service side.
type DataLogState int32

const (
	DataLogDisabled DataLogState = iota
	DataLogEnabled
	DataLogRpcFail
)
