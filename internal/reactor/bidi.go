package reactor

import (
	"context"
	"sync"
)

// WriteState is the bidi reactor's write-half state (spec.md §4.2).
type WriteState int

const (
	WriteWaiting WriteState = iota
	WritePending
)

// BidiStream is the full duplex surface a BidiReactor pumps: Send on the
// write half, Recv on the read half, independently.
type BidiStream[Req, Resp any] interface {
	Send(Req) error
	Recv() (Resp, error)
	CloseSend() error
}

// BidiReactor wraps one open bidirectional RPC (the wireless control
// stream, spec.md §4.6). Outbound requests queued with Send are pumped
// out one at a time, FIFO, by a dedicated writer goroutine; inbound
// responses are delivered to sink by a dedicated reader goroutine.
type BidiReactor[Req, Resp any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	state          State
	writeState     WriteState
	listenerActive bool

	queue  []Req
	stream BidiStream[Req, Resp]
	cancel context.CancelFunc

	readDone  chan struct{}
	writeDone chan struct{}

	sink             func(Resp)
	clearAssociation func()
	finishOnce       sync.Once
}

// NewBidi creates a BidiReactor delivering inbound messages to sink.
func NewBidi[Req, Resp any](sink func(Resp), clearAssociation func()) *BidiReactor[Req, Resp] {
	r := &BidiReactor[Req, Resp]{sink: sink, clearAssociation: clearAssociation}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Open issues the call via openFn and starts the reader and writer loops.
func (r *BidiReactor[Req, Resp]) Open(ctx context.Context, openFn func(context.Context) (BidiStream[Req, Resp], error)) error {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.state = StateConnecting
	r.listenerActive = true
	r.writeState = WriteWaiting
	r.cancel = cancel
	r.readDone = make(chan struct{})
	r.writeDone = make(chan struct{})
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
	go r.writeLoop()
	return nil
}

func (r *BidiReactor[Req, Resp]) readLoop() {
	defer close(r.readDone)
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

func (r *BidiReactor[Req, Resp]) writeLoop() {
	defer close(r.writeDone)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && r.listenerActive {
			r.writeState = WriteWaiting
			r.cond.Wait()
		}
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		req := r.queue[0]
		r.queue = r.queue[1:]
		r.writeState = WritePending
		stream := r.stream
		r.mu.Unlock()

		if err := stream.Send(req); err != nil {
			r.finish()
			return
		}
	}
}

// Send enqueues req on the write FIFO. It reports false without
// enqueuing if the reactor is no longer active; spec.md §4.6 calls for
// the caller to log a warning and drop the request in that case.
func (r *BidiReactor[Req, Resp]) Send(req Req) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.listenerActive {
		return false
	}
	r.queue = append(r.queue, req)
	r.cond.Signal()
	return true
}

// Cancel stops both loops and waits for them to exit before returning.
func (r *BidiReactor[Req, Resp]) Cancel() {
	r.mu.Lock()
	if !r.listenerActive {
		r.mu.Unlock()
		return
	}
	r.listenerActive = false
	cancel := r.cancel
	stream := r.stream
	readDone := r.readDone
	writeDone := r.writeDone
	r.mu.Unlock()

	r.cond.Broadcast()
	if stream != nil {
		_ = stream.CloseSend()
	}
	if cancel != nil {
		cancel()
	}
	if readDone != nil {
		<-readDone
	}
	if writeDone != nil {
		<-writeDone
	}
	r.finish()
}

func (r *BidiReactor[Req, Resp]) finish() {
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
func (r *BidiReactor[Req, Resp]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
