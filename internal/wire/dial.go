package wire

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultAddress is used when the caller does not provide one.
const DefaultAddress = "localhost:50051"

// Dial opens an insecure *grpc.ClientConn to addr, defaulting to
// DefaultAddress. This is spec.md §6's "insecure credentials" default
// dial path; TLS is left to an explicit grpc.DialOption a caller can add
// through extra.
func Dial(addr string, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	if addr == "" {
		addr = DefaultAddress
	}
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, extra...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", addr, err)
	}
	return conn, nil
}

// ChannelStateOf converts a grpc connectivity.State to the wire package's
// own ChannelState. The value sets are identical by construction; this
// exists so the rest of the core never imports grpc/connectivity
// directly (see internal/channelmonitor).
func ChannelStateOf(s connectivity.State) ChannelState {
	switch s {
	case connectivity.Idle:
		return ChannelIdle
	case connectivity.Connecting:
		return ChannelConnecting
	case connectivity.Ready:
		return ChannelReady
	case connectivity.TransientFailure:
		return ChannelTransientFailure
	case connectivity.Shutdown:
		return ChannelShutdown
	default:
		return ChannelUnknown
	}
}

// Conn is the minimal slice of *grpc.ClientConn the Channel Monitor
// needs. Expressed as an interface so the monitor can be driven by a
// fake in tests.
type Conn interface {
	GetState() connectivity.State
	WaitForStateChange(ctx context.Context, since connectivity.State) bool
}

var _ Conn = (*grpc.ClientConn)(nil)
