package wire

import "context"

// DeviceEventStream is the server-streaming RPC that delivers device
// connect/disconnect events.
type DeviceEventStream interface {
	Recv() (TrackingDeviceEvent, error)
	CloseSend() error
}

// DeviceDataStream delivers per-device packets for one device.
type DeviceDataStream interface {
	Recv() (Packet, error)
	CloseSend() error
}

// DataFrameStream delivers combined multi-device frames.
type DataFrameStream interface {
	Recv() (DataFrame, error)
	CloseSend() error
}

// BaseStationDataStream delivers base-station packets.
type BaseStationDataStream interface {
	Recv() (Packet, error)
	CloseSend() error
}

// WirelessManagementStream is the one bidirectional stream this SDK
// consumes: requests flow out, events flow in, independently.
type WirelessManagementStream interface {
	Send(WirelessManagementRequest) error
	Recv() (WirelessManagementEvent, error)
	CloseSend() error
}

// ReferenceDeviceStateStream delivers reference-device selection
// changes.
type ReferenceDeviceStateStream interface {
	Recv() (ReferenceDeviceStateEvent, error)
	CloseSend() error
}

// DeviceDataRequest parametrizes OpenTrackingDeviceDataStream and
// OpenDataFrameStream.
type DeviceDataRequest struct {
	Device            DeviceID
	FieldMask         []string
	ReportIntervalMs  uint32
	BufferDepth       uint32
	FusionMode        FusionMode
	IncludeRaw        bool
}

// DataFrameRequest parametrizes the combined frame stream: it carries the
// device set to frame together rather than a single device.
type DataFrameRequest struct {
	Devices           []DeviceID
	FieldMask         []string
	ReportIntervalMs  uint32
	BufferDepth       uint32
	FusionMode        FusionMode
	IncludeRaw        bool
}

// Client is the narrow surface this SDK core consumes from the
// IDL-generated service stub. Spec.md §1 treats the stub itself as an
// external collaborator; this interface is what makes every component
// built against it unit-testable without a live service or a real
// *grpc.ClientConn.
type Client interface {
	// Unary calls.
	GetTrackingDevices(ctx context.Context) ([]DeviceDescriptor, error)
	GetHardwareStates(ctx context.Context) ([]HardwareState, error)
	SetBaseStationMotorRunning(ctx context.Context, active bool) (bool, error)
	SendDataLoggingRequest(ctx context.Context, dir, file string, overwrite bool, enable bool) (DataLogState, error)
	SelectReferenceDevice(ctx context.Context, enabled bool, siuUUID, portNum uint32) (bool, error)

	// Server-streaming opens.
	OpenTrackingDevicesEventStream(ctx context.Context) (DeviceEventStream, error)
	OpenTrackingDeviceDataStream(ctx context.Context, req DeviceDataRequest) (DeviceDataStream, error)
	OpenDataFrameStream(ctx context.Context, req DataFrameRequest) (DataFrameStream, error)
	OpenBaseStationDataStream(ctx context.Context) (BaseStationDataStream, error)
	OpenReferenceDeviceStateStream(ctx context.Context) (ReferenceDeviceStateStream, error)

	// Bidirectional open.
	OpenWirelessManagementStream(ctx context.Context) (WirelessManagementStream, error)
}
