// Package ringbuf implements the fixed-capacity circular byte buffer shared
// crosswise between the two halves of a connection (see internal/iostream).
// It is the one serialization point for a direction: one goroutine pushes
// bytes in from a read descriptor, another drains them out to a write
// descriptor, and the buffer's bookkeeping is the only thing they share.
package ringbuf

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Default capacities, per the data model: 8 KiB for a stream connection, 64
// KiB for datagram or bulk-transfer traffic.
const (
	DefaultStreamCapacity   = 8 * 1024
	DefaultDatagramCapacity = 64 * 1024
)

// Buffer is a fixed-capacity ring of bytes with a producer-closed marker.
// Zero value is not usable; construct with New.
type Buffer struct {
	mu             sync.Mutex
	buf            []byte
	capacity       int
	count          int
	readCursor     int
	producerClosed bool
	notify         chan struct{}
}

// New allocates a ring buffer with the given capacity. capacity must be > 0.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Buffer{
		buf:      make([]byte, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

func (b *Buffer) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Capacity returns the buffer's fixed size.
func (b *Buffer) Capacity() int { return b.capacity }

// Count returns the number of unread bytes currently held.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Readable reports whether drain_to has bytes available right now.
func (b *Buffer) Readable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count > 0
}

// Writable reports whether push_from has free space right now.
func (b *Buffer) Writable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count < b.capacity
}

// ProducerClosed reports whether the feeding side has reached EOF.
func (b *Buffer) ProducerClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.producerClosed
}

// IsDrained reports count=0 AND producer-closed: the consumer must now
// observe EOF.
func (b *Buffer) IsDrained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count == 0 && b.producerClosed
}

// MarkProducerClosed sets the sticky producer-closed flag and wakes any
// waiter blocked in WaitReadableOrClosed.
func (b *Buffer) MarkProducerClosed() {
	b.mu.Lock()
	b.producerClosed = true
	b.mu.Unlock()
	b.signal()
}

// WaitWritable blocks until the buffer has free space, or ctx is done.
func (b *Buffer) WaitWritable(ctx context.Context) error {
	for {
		if b.Writable() {
			return nil
		}
		select {
		case <-b.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitReadableOrClosed blocks until the buffer has bytes to drain, or the
// producer has closed (so the caller can observe drained+closed), or ctx is
// done.
func (b *Buffer) WaitReadableOrClosed(ctx context.Context) error {
	for {
		b.mu.Lock()
		ready := b.count > 0 || b.producerClosed
		b.mu.Unlock()
		if ready {
			return nil
		}
		select {
		case <-b.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PushFrom reads up to min(free_space, max) bytes from r in a single Read
// call and advances the write cursor. max<=0 means no extra cap beyond the
// free space currently available. A 0-byte read with io.EOF marks the
// buffer producer-closed. The wrap-around policy offers at most one
// contiguous segment per call; the caller (the stream's read goroutine) is
// responsible for calling again to pick up a second segment.
func (b *Buffer) PushFrom(r io.Reader, max int) (int, error) {
	b.mu.Lock()
	free := b.capacity - b.count
	if free == 0 {
		b.mu.Unlock()
		return 0, nil
	}
	n := free
	if max > 0 && max < n {
		n = max
	}
	start := (b.readCursor + b.count) % b.capacity
	segment := b.capacity - start
	if segment > n {
		segment = n
	}
	b.mu.Unlock()

	nr, err := r.Read(b.buf[start : start+segment])
	if nr > 0 {
		b.mu.Lock()
		b.count += nr
		b.mu.Unlock()
		b.signal()
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			b.MarkProducerClosed()
		}
		return nr, err
	}
	return nr, nil
}

// DrainTo writes up to min(count, max) contiguous bytes from the read cursor
// to w. For a datagram socket (datagram=true) it issues exactly one write of
// the whole chunk and treats a short write as an error, so one logical
// packet is never split across two sends. For a stream socket, partial
// writes are normal and simply advance the cursor by the bytes actually
// written.
func (b *Buffer) DrainTo(w io.Writer, max int, datagram bool) (int, error) {
	b.mu.Lock()
	count := b.count
	if count == 0 {
		b.mu.Unlock()
		return 0, nil
	}
	n := count
	if max > 0 && max < n {
		n = max
	}
	start := b.readCursor
	segment := b.capacity - start
	if segment > n {
		segment = n
	}
	chunk := make([]byte, segment)
	copy(chunk, b.buf[start:start+segment])
	b.mu.Unlock()

	nw, err := w.Write(chunk)
	if nw > 0 {
		b.mu.Lock()
		b.readCursor = (b.readCursor + nw) % b.capacity
		b.count -= nw
		b.mu.Unlock()
		b.signal()
	}
	if datagram && err == nil && nw != len(chunk) {
		return nw, io.ErrShortWrite
	}
	return nw, err
}
