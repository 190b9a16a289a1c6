// Package ring implements the per-stream double-buffered packet store
// (spec.md §4.1). One writer pushes; many readers pull bounded windows
// concurrently with each other. A push waits for reads in progress, and
// reads wait for a push in progress.
package ring

import (
	"sync"
	"time"

	"github.com/ommotech/trackingsdk/internal/wire"
)

// DefaultCapacity is the default per-array capacity N (spec.md §3).
const DefaultCapacity = 500

// Status reports what kind of result a read returned.
type Status int

const (
	// StatusNoData means no packets matched the request at all.
	StatusNoData Status = iota
	// StatusPartialData means fewer packets were returned than asked
	// for, because the ring does not retain that far back.
	StatusPartialData
	// StatusSuccess means the full requested window was returned.
	StatusSuccess
)

// IndexedPacket pairs a packet with the monotonic index the Ring
// assigned it at insert time.
type IndexedPacket struct {
	Index  uint64
	Packet wire.Packet
}

// Result is the outcome of a Ring read.
type Result struct {
	Status  Status
	Packets []IndexedPacket
}

// Ring is the double-buffered store for one stream (spec.md §4.1). Two
// equal-sized arrays, one "write" and one "read"; pushes always land in
// the write array, and once it fills the next push swaps the arrays and
// starts over, discarding whatever was in the previous read array.
//
// A single sync.RWMutex guards the whole ring: every push, including
// one that swaps the arrays, takes the write (exclusive) side; reads
// take the read (shared) side. Pushes do not run concurrently with
// reads. write_count/read_count are plain ints, written only under the
// exclusive lock and read only under the shared lock; no atomics are
// used.
type Ring struct {
	mu sync.RWMutex

	capacity int

	writeArr []wire.Packet
	readArr  []wire.Packet

	writeCount int
	readCount  int

	// writeBase/readBase are the packet_idx of slot 0 in each array.
	writeBase uint64
	readBase  uint64

	nextIndex uint64
}

// New creates a Ring with the given per-array capacity. A capacity <= 0
// uses DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		capacity: capacity,
		writeArr: make([]wire.Packet, capacity),
		readArr:  make([]wire.Packet, capacity),
	}
}

// Push stores packet, assigning it the next packet_idx, and returns the
// IndexedPacket that was stored. Push never fails; once the write array
// fills, the next push swaps the arrays, discarding the previous read
// array's contents (spec.md §4.1).
func (r *Ring) Push(packet wire.Packet) IndexedPacket {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writeCount >= r.capacity {
		r.swapLocked()
	}

	idx := r.nextIndex
	r.writeArr[r.writeCount] = packet
	r.writeCount++
	r.nextIndex++

	return IndexedPacket{Index: idx, Packet: packet}
}

// swapLocked must be called with mu held exclusively. It makes the
// current write array the new read array and resets the write array for
// fresh pushes.
func (r *Ring) swapLocked() {
	r.readArr, r.writeArr = r.writeArr, r.readArr
	r.readCount = r.writeCount
	r.readBase = r.writeBase
	r.writeBase = r.writeBase + uint64(r.writeCount)
	r.writeCount = 0
}

// Latest returns the single most recent packet, preferring the write
// array's last element and falling back to the read array's last.
func (r *Ring) Latest() Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.writeCount > 0 {
		idx := r.writeBase + uint64(r.writeCount-1)
		return Result{Status: StatusSuccess, Packets: []IndexedPacket{{Index: idx, Packet: r.writeArr[r.writeCount-1]}}}
	}
	if r.readCount > 0 {
		idx := r.readBase + uint64(r.readCount-1)
		return Result{Status: StatusSuccess, Packets: []IndexedPacket{{Index: idx, Packet: r.readArr[r.readCount-1]}}}
	}
	return Result{Status: StatusNoData}
}

// LatestN returns the last n packets in chronological order.
func (r *Ring) LatestN(n int) Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestNLocked(n)
}

func (r *Ring) latestNLocked(n int) Result {
	if n <= 0 {
		return Result{Status: StatusNoData}
	}

	total := r.readCount + r.writeCount
	if total == 0 {
		return Result{Status: StatusNoData}
	}

	status := StatusSuccess
	if n > total {
		n = total
		status = StatusPartialData
	}

	out := make([]IndexedPacket, 0, n)

	if n <= r.writeCount {
		start := r.writeCount - n
		for i := start; i < r.writeCount; i++ {
			out = append(out, IndexedPacket{Index: r.writeBase + uint64(i), Packet: r.writeArr[i]})
		}
		return Result{Status: status, Packets: out}
	}

	fromRead := n - r.writeCount
	start := r.readCount - fromRead
	for i := start; i < r.readCount; i++ {
		out = append(out, IndexedPacket{Index: r.readBase + uint64(i), Packet: r.readArr[i]})
	}
	for i := 0; i < r.writeCount; i++ {
		out = append(out, IndexedPacket{Index: r.writeBase + uint64(i), Packet: r.writeArr[i]})
	}
	return Result{Status: status, Packets: out}
}

// SinceIndex returns every stored packet with packet_idx >= i.
func (r *Ring) SinceIndex(i uint64) Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := r.readCount + r.writeCount
	if total == 0 {
		return Result{Status: StatusNoData}
	}

	largest := r.writeBase + uint64(r.writeCount) - 1
	if r.writeCount == 0 {
		largest = r.readBase + uint64(r.readCount) - 1
	}
	if i > largest {
		return Result{Status: StatusNoData}
	}

	smallest := r.readBase
	if r.readCount == 0 {
		smallest = r.writeBase
	}

	status := StatusSuccess
	if i < smallest {
		i = smallest
		status = StatusPartialData
	}

	out := make([]IndexedPacket, 0, total)
	for idx := 0; idx < r.readCount; idx++ {
		packetIdx := r.readBase + uint64(idx)
		if packetIdx >= i {
			out = append(out, IndexedPacket{Index: packetIdx, Packet: r.readArr[idx]})
		}
	}
	for idx := 0; idx < r.writeCount; idx++ {
		packetIdx := r.writeBase + uint64(idx)
		if packetIdx >= i {
			out = append(out, IndexedPacket{Index: packetIdx, Packet: r.writeArr[idx]})
		}
	}
	return Result{Status: status, Packets: out}
}

// WithMaxAge returns the contiguous newest run of packets whose
// SdkReceived latency stamp is within maxAge of now. Packets lacking an
// SdkReceived stamp are treated as out-of-age.
func (r *Ring) WithMaxAge(maxAge time.Duration) Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	total := r.readCount + r.writeCount
	all := make([]IndexedPacket, 0, total)
	for idx := 0; idx < r.readCount; idx++ {
		all = append(all, IndexedPacket{Index: r.readBase + uint64(idx), Packet: r.readArr[idx]})
	}
	for idx := 0; idx < r.writeCount; idx++ {
		all = append(all, IndexedPacket{Index: r.writeBase + uint64(idx), Packet: r.writeArr[idx]})
	}

	// Walk from the newest backwards, stopping at the first out-of-age
	// or missing-stamp packet, to keep the contiguous "newest run"
	// semantics spec.md §4.1 calls for.
	cut := len(all)
	for cut > 0 {
		stamp, ok := all[cut-1].Packet.LatencyStampAt(wire.LatencyStampSDKReceived)
		if !ok || now.Sub(stamp) > maxAge {
			break
		}
		cut--
	}
	window := all[cut:]
	if len(window) == 0 {
		return Result{Status: StatusNoData}
	}
	return Result{Status: StatusSuccess, Packets: window}
}

// LatestWithTimeout behaves like Latest but returns StatusNoData if the
// chosen packet's SdkReceived stamp is older than now-timeout.
func (r *Ring) LatestWithTimeout(timeout time.Duration) Result {
	res := r.Latest()
	if res.Status != StatusSuccess || len(res.Packets) == 0 {
		return res
	}
	stamp, ok := res.Packets[0].Packet.LatencyStampAt(wire.LatencyStampSDKReceived)
	if !ok || time.Since(stamp) > timeout {
		return Result{Status: StatusNoData}
	}
	return res
}

// Len returns the number of packets currently retained (read+write).
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readCount + r.writeCount
}

// TotalPushed returns the number of packets ever pushed, i.e. the next
// packet_idx that will be assigned.
func (r *Ring) TotalPushed() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextIndex
}
