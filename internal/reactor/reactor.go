// Package reactor implements the per-stream lifecycle wrapper spec'd in
// spec.md §4.2: one goroutine per open RPC, pumping Recv in a loop and
// handing each message to a sink, with a cancel path that is guaranteed
// not to race a sink delivery.
package reactor

import (
	"context"
	"sync"
)

// State is the reactor's lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateProcessing
	StateFinish
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateProcessing:
		return "PROCESSING"
	case StateFinish:
		return "FINISH"
	default:
		return "UNKNOWN"
	}
}

// Stream is the minimal receive half of a server-streaming (or the read
// half of a bidi) RPC that a Reactor can pump.
type Stream[T any] interface {
	Recv() (T, error)
	CloseSend() error
}

// Reactor wraps one open streaming RPC delivering messages of type T.
// Construct with New, open the call with Open, and release it with
// Cancel. A Reactor is used once; it is not restartable after Cancel.
type Reactor[T any] struct {
	mu sync.Mutex

	state          State
	listenerActive bool

	stream Stream[T]
	cancel context.CancelFunc
	done   chan struct{}

	sink             func(T)
	clearAssociation func()
	finishOnce       sync.Once
}

// New creates a Reactor that delivers received messages to sink and, on
// entering Finish, invokes clearAssociation so the owning subscription
// can drop its pointer to this reactor. Either may be nil.
func New[T any](sink func(T), clearAssociation func()) *Reactor[T] {
	return &Reactor[T]{sink: sink, clearAssociation: clearAssociation}
}

// Open issues the call via openFn, enters Connecting then Processing, and
// starts the read loop. openFn is handed a context that Cancel will
// cancel; it must return a Stream built against that context.
func (r *Reactor[T]) Open(ctx context.Context, openFn func(context.Context) (Stream[T], error)) error {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.state = StateConnecting
	r.listenerActive = true
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	stream, err := openFn(ctx)
	if err != nil {
		cancel()
		r.finish()
		return err
	}

	r.mu.Lock()
	r.stream = stream
	r.state = StateProcessing
	r.mu.Unlock()

	go r.readLoop()
	return nil
}

func (r *Reactor[T]) readLoop() {
	defer close(r.done)
	for {
		msg, err := r.stream.Recv()
		if err != nil {
			r.finish()
			return
		}

		r.mu.Lock()
		active := r.listenerActive
		sink := r.sink
		r.mu.Unlock()
		if !active {
			return
		}
		if sink != nil {
			sink(msg)
		}
	}
}

// Cancel sets listener_active false, cancels the call's context, and
// blocks until the read loop has fully exited before returning — so a
// caller that has observed Cancel return can rely on the sink never
// being invoked again (spec.md §4.2's no-race-with-delivery guarantee).
func (r *Reactor[T]) Cancel() {
	r.mu.Lock()
	if !r.listenerActive {
		r.mu.Unlock()
		return
	}
	r.listenerActive = false
	cancel := r.cancel
	stream := r.stream
	done := r.done
	r.mu.Unlock()

	if stream != nil {
		_ = stream.CloseSend()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	r.finish()
}

func (r *Reactor[T]) finish() {
	r.finishOnce.Do(func() {
		r.mu.Lock()
		r.state = StateFinish
		clear := r.clearAssociation
		r.mu.Unlock()
		if clear != nil {
			clear()
		}
	})
}

// State returns the reactor's current lifecycle state.
func (r *Reactor[T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
