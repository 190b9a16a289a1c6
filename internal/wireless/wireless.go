// Package wireless implements the Wireless Control Session (spec.md
// §4.6): a bidi reactor over the wireless management stream. Outbound
// control requests are thin wrappers over the reactor's queued send;
// inbound events are delivered to a single registered callback. If the
// stream is not currently open, sends are dropped and logged, matching
// the source SDK's "drop silently, log a warning" contract.
package wireless

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ommotech/trackingsdk/internal/reactor"
	"github.com/ommotech/trackingsdk/internal/wire"
)

// Session owns one bidi reactor over the wireless management stream.
type Session struct {
	client wire.Client
	logger *slog.Logger

	mu       sync.Mutex
	reactor  *reactor.BidiReactor[wire.WirelessManagementRequest, wire.WirelessManagementEvent]
	callback func(wire.WirelessManagementEvent)
}

// New creates a Session. The underlying stream is opened separately via
// Open.
func New(client wire.Client, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{client: client, logger: logger}
}

// Open opens the bidi reactor if one is not already open.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.reactor != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	r := reactor.NewBidi[wire.WirelessManagementRequest, wire.WirelessManagementEvent](s.deliver, s.clearReactor)
	err := r.Open(ctx, func(ctx context.Context) (reactor.BidiStream[wire.WirelessManagementRequest, wire.WirelessManagementEvent], error) {
		return s.client.OpenWirelessManagementStream(ctx)
	})
	if err != nil {
		s.logger.Warn("wireless management stream open failed", slog.Any("err", err))
		return err
	}

	s.mu.Lock()
	s.reactor = r
	s.mu.Unlock()
	return nil
}

func (s *Session) deliver(ev wire.WirelessManagementEvent) {
	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func (s *Session) clearReactor() {
	s.mu.Lock()
	s.reactor = nil
	s.mu.Unlock()
}

// Detached reports whether the backing reactor is not currently open.
func (s *Session) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reactor == nil
}

// Cancel cancels the backing reactor, if open.
func (s *Session) Cancel() {
	s.mu.Lock()
	r := s.reactor
	s.reactor = nil
	s.mu.Unlock()
	if r != nil {
		r.Cancel()
	}
}

// SetCallback registers the inbound event callback, replacing any prior
// registration.
func (s *Session) SetCallback(cb func(wire.WirelessManagementEvent)) {
	s.mu.Lock()
	s.callback = cb
	s.mu.Unlock()
}

// ResetCallback clears the registered callback.
func (s *Session) ResetCallback() {
	s.SetCallback(nil)
}

func (s *Session) send(kind wire.WirelessRequestKind, uuidVal uint32, intervalMs uint32) bool {
	s.mu.Lock()
	r := s.reactor
	s.mu.Unlock()
	if r == nil {
		s.logger.Warn("wireless send dropped: stream not active", slog.Any("kind", kind))
		return false
	}
	ok := r.Send(wire.WirelessManagementRequest{
		CorrelationID: uuid.NewString(),
		UUID:          uuidVal,
		Kind:          kind,
		IntervalMs:    intervalMs,
	})
	if !ok {
		s.logger.Warn("wireless send dropped: stream not active", slog.Any("kind", kind))
	}
	return ok
}

// EnablePairing requests that the base station accept new pairing
// requests.
func (s *Session) EnablePairing() bool { return s.send(wire.WirelessRequestEnablePairing, 0, 0) }

// DisablePairing requests that the base station stop accepting new
// pairing requests.
func (s *Session) DisablePairing() bool { return s.send(wire.WirelessRequestDisablePairing, 0, 0) }

// ApprovePairing approves a pending pairing request for the given
// device UUID.
func (s *Session) ApprovePairing(uuidVal uint32) bool {
	return s.send(wire.WirelessRequestApprovePairing, uuidVal, 0)
}

// DenyPairing denies a pending pairing request.
func (s *Session) DenyPairing(uuidVal uint32) bool {
	return s.send(wire.WirelessRequestDenyPairing, uuidVal, 0)
}

// Unpair removes a previously paired device.
func (s *Session) Unpair(uuidVal uint32) bool {
	return s.send(wire.WirelessRequestUnpair, uuidVal, 0)
}

// Block blocks a device from pairing.
func (s *Session) Block(uuidVal uint32) bool {
	return s.send(wire.WirelessRequestBlock, uuidVal, 0)
}

// Unblock reverses Block.
func (s *Session) Unblock(uuidVal uint32) bool {
	return s.send(wire.WirelessRequestUnblock, uuidVal, 0)
}

// ClearBlocked clears the base station's blocked-device list.
func (s *Session) ClearBlocked() bool {
	return s.send(wire.WirelessRequestClearBlocked, 0, 0)
}

// ClearApproved clears the base station's approved-device list.
func (s *Session) ClearApproved() bool {
	return s.send(wire.WirelessRequestClearApproved, 0, 0)
}

// ResetConfig resets the base station's wireless configuration.
func (s *Session) ResetConfig() bool {
	return s.send(wire.WirelessRequestResetConfig, 0, 0)
}

// SetIntervalLength sets the wireless polling interval length in
// milliseconds.
func (s *Session) SetIntervalLength(intervalMs uint32) bool {
	return s.send(wire.WirelessRequestSetIntervalLength, 0, intervalMs)
}

// ApproveIntervalPairing approves a pending interval-pairing request.
func (s *Session) ApproveIntervalPairing(uuidVal uint32) bool {
	return s.send(wire.WirelessRequestApproveIntervalPairing, uuidVal, 0)
}

// Sleep requests the device enter low-power sleep.
func (s *Session) Sleep(uuidVal uint32) bool {
	return s.send(wire.WirelessRequestSleep, uuidVal, 0)
}

// Wake requests the device wake from sleep.
func (s *Session) Wake(uuidVal uint32) bool {
	return s.send(wire.WirelessRequestWake, uuidVal, 0)
}
