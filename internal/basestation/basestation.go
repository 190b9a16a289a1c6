// Package basestation implements the shared base-station storage
// (spec.md §4.5): one Ring and one reactor backing every tag the Tag
// Registry currently has bound to base-station data. Reference-counting
// the tags is the registry's job (spec.md §4.8); this package only
// knows how to open, detect detachment, and cancel the single backing
// stream.
package basestation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ommotech/trackingsdk/internal/reactor"
	"github.com/ommotech/trackingsdk/internal/ring"
	"github.com/ommotech/trackingsdk/internal/wire"
)

// Storage is the shared Ring plus its backing reactor.
type Storage struct {
	client  wire.Client
	logger  *slog.Logger
	storage *ring.Ring

	mu      sync.Mutex
	reactor *reactor.Reactor[wire.Packet]
}

// New creates a Storage with an empty Ring; the reactor is opened
// separately via Open.
func New(client wire.Client, bufSize int, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{client: client, logger: logger, storage: ring.New(bufSize)}
}

// Ring returns the backing Ring.
func (s *Storage) Ring() *ring.Ring {
	return s.storage
}

// Open opens the backing reactor if one is not already open.
func (s *Storage) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.reactor != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	r := reactor.New(func(p wire.Packet) { s.storage.Push(p) }, s.clearReactor)
	err := r.Open(ctx, func(ctx context.Context) (reactor.Stream[wire.Packet], error) {
		return s.client.OpenBaseStationDataStream(ctx)
	})
	if err != nil {
		s.logger.Warn("base station stream open failed", slog.Any("err", err))
		return err
	}

	s.mu.Lock()
	s.reactor = r
	s.mu.Unlock()
	return nil
}

func (s *Storage) clearReactor() {
	s.mu.Lock()
	s.reactor = nil
	s.mu.Unlock()
}

// Detached reports whether the backing reactor is not currently open,
// i.e. the Channel Monitor should reopen it on the next Ready
// transition (spec.md §4.7).
func (s *Storage) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reactor == nil
}

// Cancel cancels the backing reactor, if open.
func (s *Storage) Cancel() {
	s.mu.Lock()
	r := s.reactor
	s.reactor = nil
	s.mu.Unlock()
	if r != nil {
		r.Cancel()
	}
}
