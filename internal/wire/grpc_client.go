package wire

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/ommotech/trackingsdk/internal/convert"
)

const serviceName = "trackingsdk.v1.TrackingService"

// jsonCodec is the one seam a real deployment swaps out for the codec
// protoc-gen-go-grpc generates: every wire.* type in this package is a
// plain Go struct, so JSON is a functionally complete substitute for
// the protobuf wire format the real IDL-generated stub would use.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

// GRPCClient is the concrete wire.Client backed by a real
// *grpc.ClientConn. spec.md §1 treats the actual IDL-generated stub as
// an external collaborator; this type fills that seam so the rest of
// the module can be wired to a live service without depending on
// generated code this repository does not own.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewClient builds a Client over an already-dialed connection. See
// wire.Dial for the default insecure dial path.
func NewClient(conn *grpc.ClientConn) *GRPCClient {
	if conn == nil {
		panic("wire: NewClient called with a nil connection")
	}
	return &GRPCClient{conn: conn}
}

func rpcMethod(name string) string {
	return "/" + serviceName + "/" + name
}

func (c *GRPCClient) invoke(ctx context.Context, name string, req, resp any) error {
	return c.conn.Invoke(ctx, rpcMethod(name), req, resp, grpc.ForceCodec(jsonCodec{}))
}

func (c *GRPCClient) openStream(ctx context.Context, name string, clientStreams, serverStreams bool) (grpc.ClientStream, error) {
	desc := &grpc.StreamDesc{StreamName: name, ClientStreams: clientStreams, ServerStreams: serverStreams}
	return c.conn.NewStream(ctx, desc, rpcMethod(name), grpc.ForceCodec(jsonCodec{}))
}

// serverStream adapts a grpc.ClientStream into the narrow Recv/CloseSend
// surface a server-streaming RPC exposes.
type serverStream[T any] struct {
	cs grpc.ClientStream
}

func (s serverStream[T]) Recv() (T, error) {
	var out T
	err := s.cs.RecvMsg(&out)
	if err == nil {
		now := convert.Now()
		switch m := any(&out).(type) {
		case *Packet:
			m.Latency = append(m.Latency, LatencyStamp{Kind: LatencyStampSDKReceived, At: now})
		case *DataFrame:
			for i := range m.Devices {
				p := &m.Devices[i].Packet
				p.Latency = append(p.Latency, LatencyStamp{Kind: LatencyStampSDKReceived, At: now})
			}
		}
	}
	return out, err
}

func (s serverStream[T]) CloseSend() error { return s.cs.CloseSend() }

func openServerStream[T any](ctx context.Context, c *GRPCClient, name string, req any) (serverStream[T], error) {
	cs, err := c.openStream(ctx, name, false, true)
	if err != nil {
		return serverStream[T]{}, err
	}
	if err := cs.SendMsg(req); err != nil {
		return serverStream[T]{}, err
	}
	if err := cs.CloseSend(); err != nil {
		return serverStream[T]{}, err
	}
	return serverStream[T]{cs: cs}, nil
}

// bidiStream adapts a grpc.ClientStream into the full duplex Send/Recv
// surface the wireless management stream needs.
type bidiStream[Req, Resp any] struct {
	cs grpc.ClientStream
}

func (s bidiStream[Req, Resp]) Send(req Req) error { return s.cs.SendMsg(req) }

func (s bidiStream[Req, Resp]) Recv() (Resp, error) {
	var out Resp
	err := s.cs.RecvMsg(&out)
	return out, err
}

func (s bidiStream[Req, Resp]) CloseSend() error { return s.cs.CloseSend() }

// Unary calls.

func (c *GRPCClient) GetTrackingDevices(ctx context.Context) ([]DeviceDescriptor, error) {
	var resp struct{ Devices []DeviceDescriptor }
	if err := c.invoke(ctx, "GetTrackingDevices", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

func (c *GRPCClient) GetHardwareStates(ctx context.Context) ([]HardwareState, error) {
	var resp struct{ States []HardwareState }
	if err := c.invoke(ctx, "GetHardwareStates", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.States, nil
}

func (c *GRPCClient) SetBaseStationMotorRunning(ctx context.Context, active bool) (bool, error) {
	req := struct{ Active bool }{Active: active}
	var resp struct{ Ok bool }
	if err := c.invoke(ctx, "SetBaseStationMotorRunning", req, &resp); err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (c *GRPCClient) SendDataLoggingRequest(ctx context.Context, dir, file string, overwrite bool, enable bool) (DataLogState, error) {
	req := struct {
		Dir, File           string
		Overwrite, Enable bool
	}{dir, file, overwrite, enable}
	var resp struct{ State DataLogState }
	if err := c.invoke(ctx, "SendDataLoggingRequest", req, &resp); err != nil {
		return DataLogRpcFail, err
	}
	return resp.State, nil
}

func (c *GRPCClient) SelectReferenceDevice(ctx context.Context, enabled bool, siuUUID, portNum uint32) (bool, error) {
	req := struct {
		Enabled          bool
		SIUUUID, PortNum uint32
	}{enabled, siuUUID, portNum}
	var resp struct{ Ok bool }
	if err := c.invoke(ctx, "SelectReferenceDevice", req, &resp); err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// Server-streaming opens.

func (c *GRPCClient) OpenTrackingDevicesEventStream(ctx context.Context) (DeviceEventStream, error) {
	return openServerStream[TrackingDeviceEvent](ctx, c, "OpenTrackingDevicesEventStream", struct{}{})
}

func (c *GRPCClient) OpenTrackingDeviceDataStream(ctx context.Context, req DeviceDataRequest) (DeviceDataStream, error) {
	return openServerStream[Packet](ctx, c, "OpenTrackingDeviceDataStream", req)
}

func (c *GRPCClient) OpenDataFrameStream(ctx context.Context, req DataFrameRequest) (DataFrameStream, error) {
	return openServerStream[DataFrame](ctx, c, "OpenDataFrameStream", req)
}

func (c *GRPCClient) OpenBaseStationDataStream(ctx context.Context) (BaseStationDataStream, error) {
	return openServerStream[Packet](ctx, c, "OpenBaseStationDataStream", struct{}{})
}

func (c *GRPCClient) OpenReferenceDeviceStateStream(ctx context.Context) (ReferenceDeviceStateStream, error) {
	return openServerStream[ReferenceDeviceStateEvent](ctx, c, "OpenReferenceDeviceStateStream", struct{}{})
}

// Bidirectional open.

func (c *GRPCClient) OpenWirelessManagementStream(ctx context.Context) (WirelessManagementStream, error) {
	cs, err := c.openStream(ctx, "OpenWirelessManagementStream", true, true)
	if err != nil {
		return nil, err
	}
	return bidiStream[WirelessManagementRequest, WirelessManagementEvent]{cs: cs}, nil
}

var _ Client = (*GRPCClient)(nil)
