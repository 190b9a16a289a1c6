// Package params holds the user-supplied request parameters that the
// DeviceData and DataFrame subscription variants (spec.md §3) carry:
// field mask, report interval, buffer depth, fusion mode, the raw-sensor
// inclusion flag, and an optional device-id filter list. A BaseStation
// subscription takes no parameters.
package params

import "github.com/ommotech/trackingsdk/internal/wire"

// DataRequest is the common parameter set for a DeviceData or DataFrame
// subscription. An empty Devices list means "every connected device
// matches" (spec.md §4.3's is_requested rule).
type DataRequest struct {
	Devices          []wire.DeviceID
	FieldMask        []string
	ReportIntervalMs uint32
	BufferDepth      uint32
	FusionMode       wire.FusionMode
	IncludeRaw       bool
}

// IsRequested reports whether id matches this request's device filter.
func (d DataRequest) IsRequested(id wire.DeviceID) bool {
	if len(d.Devices) == 0 {
		return true
	}
	for _, want := range d.Devices {
		if want == id {
			return true
		}
	}
	return false
}

// DeviceDataRequest builds the wire-level open parameters for one device
// under this request.
func (d DataRequest) DeviceDataRequest(id wire.DeviceID) wire.DeviceDataRequest {
	return wire.DeviceDataRequest{
		Device:           id,
		FieldMask:        d.FieldMask,
		ReportIntervalMs: d.ReportIntervalMs,
		BufferDepth:      d.BufferDepth,
		FusionMode:       d.FusionMode,
		IncludeRaw:       d.IncludeRaw,
	}
}

// FrameRequest builds the wire-level open parameters for the combined
// frame stream against the given device set.
func (d DataRequest) FrameRequest(devices []wire.DeviceID) wire.DataFrameRequest {
	return wire.DataFrameRequest{
		Devices:          devices,
		FieldMask:        d.FieldMask,
		ReportIntervalMs: d.ReportIntervalMs,
		BufferDepth:      d.BufferDepth,
		FusionMode:       d.FusionMode,
		IncludeRaw:       d.IncludeRaw,
	}
}
