// Package iostream implements the I/O Stream: one direction of data
// movement from a read descriptor into a fill buffer, and from a drain
// buffer out to a write descriptor, together with the half-close and
// hold-timeout policy that governs when the underlying descriptor is torn
// down.
//
// Go's runtime already multiplexes blocking reads/writes across goroutines
// via its netpoller, so each Stream's read and write sides run as their own
// goroutine rather than being serviced from a single hand-rolled select
// loop; the engine (internal/engine) only has to wait for both to finish.
package iostream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtaci/nccat/internal/nctypes"
	"github.com/xtaci/nccat/internal/ringbuf"
)

// HoldIndefinite means "wait forever" for hold_timeout: n<0. HoldImmediate
// means "tear down as soon as the read side closes": n=0.
const (
	HoldIndefinite = time.Duration(-1)
	HoldImmediate  = time.Duration(0)
)

type halfCloser interface {
	CloseWrite() error
}

// State is the per-stream finite state machine of spec §4.2, derived from
// two independent read/write completion flags rather than stored directly,
// so that READ_CLOSED and WRITE_CLOSED can occur in either order.
type State int32

const (
	StateOpen State = iota
	StateReadClosed
	StateWriteClosed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReadClosed:
		return "READ_CLOSED"
	case StateWriteClosed:
		return "WRITE_CLOSED"
	case StateClosed:
		return "CLOSED"
	default:
		return "OPEN"
	}
}

// Stream is a directional endpoint: read_fd/write_fd, a fill buffer, a
// drain buffer, and the policy knobs from the data model.
type Stream struct {
	Name string

	Reader      io.Reader
	ReadCloser  io.Closer
	Writer      io.Writer
	WriteCloser io.Closer
	// Unbuffered marks stdio descriptors: closing them is a normal
	// termination, never a half-close decision, and the process exit
	// handles the actual fd cleanup, so Close is skipped here.
	Unbuffered bool

	Fill  *ringbuf.Buffer
	Drain *ringbuf.Buffer

	SockType             nctypes.SockType
	MTU                  int
	NRU                  int
	HalfCloseSuppressed  bool
	HoldTimeout          time.Duration
	InitiallyReadClosed  bool

	// OnFatalWrite is invoked once if the write side hits an unrecoverable
	// error; the engine wires it to the peer stream's ForceReadClosed so a
	// write that can never be delivered stops being read at all.
	OnFatalWrite func()

	mu          sync.Mutex
	readClosed  bool
	writeClosed bool
	lastErr     error

	readDone  chan struct{}
	writeDone chan struct{}
	done      chan struct{}

	writeCancel context.CancelFunc
	readCancel  context.CancelFunc

	closeOnce sync.Once
	holdOnce  sync.Once

	bytesIn  int64
	bytesOut int64
}

// NewStdio builds the local stream bound to standard input/output. Its
// default hold-timeout is indefinite: stdin reaching EOF must not cut off
// whatever is still arriving from the remote side and waiting to be
// flushed to stdout (see spec scenario S1).
func NewStdio(name string, stdin io.Reader, stdout io.Writer) *Stream {
	return &Stream{
		Name:       name,
		Reader:     stdin,
		Writer:     stdout,
		Unbuffered: true,
		SockType:   nctypes.SockNone,
		// Closing stdout is a normal termination for the local stream; it
		// never carries the suppressed-half-close policy.
		HalfCloseSuppressed: false,
		HoldTimeout:         HoldIndefinite,
	}
}

// NewSocket builds a stream bound to one socket used for both reading and
// writing, as remote connections are in this core. Its defaults match spec
// §4.2: half-close suppressed (a read-EOF tears the whole connection down)
// and a zero hold-timeout, overridable by --half-close/--hold-timeout.
func NewSocket(name string, conn io.ReadWriteCloser, sockType nctypes.SockType) *Stream {
	return &Stream{
		Name:                name,
		Reader:              conn,
		Writer:              conn,
		ReadCloser:          conn,
		WriteCloser:         conn,
		SockType:            sockType,
		HalfCloseSuppressed: true,
		HoldTimeout:         HoldImmediate,
	}
}

// Wire attaches the two shared ring buffers: fill is where this stream's
// read side deposits bytes, drain is where this stream's write side draws
// from (and is the peer stream's fill buffer).
func (s *Stream) Wire(fill, drain *ringbuf.Buffer) {
	s.Fill = fill
	s.Drain = drain
}

// State reports the combined state derived from the two completion flags.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.readClosed && s.writeClosed:
		return StateClosed
	case s.readClosed:
		return StateReadClosed
	case s.writeClosed:
		return StateWriteClosed
	default:
		return StateOpen
	}
}

// Done is closed once both the read and write sides have terminated.
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) BytesIn() int64  { return atomic.LoadInt64(&s.bytesIn) }
func (s *Stream) BytesOut() int64 { return atomic.LoadInt64(&s.bytesOut) }

// LastErr returns the first read or write error observed, if any.
func (s *Stream) LastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Stream) recordErr(err error) {
	s.mu.Lock()
	if s.lastErr == nil {
		s.lastErr = err
	}
	s.mu.Unlock()
}

func (s *Stream) setReadClosed() {
	s.mu.Lock()
	s.readClosed = true
	s.mu.Unlock()
}

func (s *Stream) setWriteClosed() {
	s.mu.Lock()
	s.writeClosed = true
	s.mu.Unlock()
}

// Start launches the read and write goroutines (unless the stream begins
// with its read side pre-closed, for RECV_DATA_ONLY/SEND_DATA_ONLY) and a
// finalizer that closes Done once both finish.
func (s *Stream) Start(parent context.Context) {
	s.readDone = make(chan struct{})
	s.writeDone = make(chan struct{})
	s.done = make(chan struct{})

	readCtx, readCancel := context.WithCancel(parent)
	s.readCancel = readCancel
	writeCtx, writeCancel := context.WithCancel(parent)
	s.writeCancel = writeCancel

	if s.InitiallyReadClosed {
		// A synthetic read-closed state from RECV_DATA_ONLY/SEND_DATA_ONLY
		// is not an EOF event: there is nothing to bound a flush against,
		// so the hold-timeout deadline is never armed here. The write side
		// keeps running until its own drain buffer naturally empties.
		s.Fill.MarkProducerClosed()
		s.setReadClosed()
		close(s.readDone)
	} else {
		go s.runReader(readCtx)
	}
	go s.runWriter(writeCtx)
	go s.finalize()
}

func (s *Stream) runReader(ctx context.Context) {
	defer close(s.readDone)
	for {
		err := ctx.Err()
		if err == nil {
			err = s.Fill.WaitWritable(ctx)
		}
		if err != nil {
			// Forced closed (peer write fatally failed, or engine abort):
			// mark the buffer closed so the peer's writer observes drained.
			s.Fill.MarkProducerClosed()
			s.setReadClosed()
			return
		}
		max := 0
		if s.SockType == nctypes.SockDatagram {
			max = s.NRU
		}
		n, err := s.Fill.PushFrom(s.Reader, max)
		if n > 0 {
			atomic.AddInt64(&s.bytesIn, int64(n))
		}
		if err != nil {
			if err != io.EOF {
				s.recordErr(err)
			}
			// PushFrom only marks EOF; a hard read error must also let the
			// peer's writer observe drained.
			s.Fill.MarkProducerClosed()
			s.setReadClosed()
			s.armHold()
			return
		}
	}
}

// armHold arms the deadline that bounds how much longer this stream's write
// side is allowed to keep draining once its own read side has closed.
func (s *Stream) armHold() {
	s.holdOnce.Do(func() {
		switch {
		case s.HoldTimeout == HoldImmediate:
			s.writeCancel()
		case s.HoldTimeout < 0:
			// indefinite: no deadline armed, the writer runs until the
			// drain buffer naturally empties.
		default:
			time.AfterFunc(s.HoldTimeout, s.writeCancel)
		}
	})
}

func (s *Stream) runWriter(ctx context.Context) {
	defer close(s.writeDone)
	for {
		err := ctx.Err()
		if err == nil {
			err = s.Drain.WaitReadableOrClosed(ctx)
		}
		if err != nil {
			// Hold deadline expired, or forced abort, before the drain
			// buffer emptied naturally: give up and tear the fd down.
			s.setWriteClosed()
			s.closeAll()
			return
		}
		if s.Drain.Readable() {
			max := 0
			if s.SockType == nctypes.SockDatagram {
				max = s.MTU
			}
			n, err := s.Drain.DrainTo(s.Writer, max, s.SockType == nctypes.SockDatagram)
			if n > 0 {
				atomic.AddInt64(&s.bytesOut, int64(n))
			}
			if err != nil {
				s.recordErr(err)
				s.setWriteClosed()
				s.closeAll()
				if s.OnFatalWrite != nil {
					s.OnFatalWrite()
				}
				return
			}
			continue
		}

		// Drain buffer empty and its producer (the peer's read side) is
		// closed: apply half-close policy.
		s.setWriteClosed()
		if s.HalfCloseSuppressed {
			s.closeAll()
		} else if hc, ok := s.WriteCloser.(halfCloser); ok {
			_ = hc.CloseWrite()
		}
		// else: nothing to shut down early (stdio, or no CloseWrite
		// support); the descriptor closes at finalize once CLOSED.
		return
	}
}

// ForceReadClosed stops this stream from reading any further and marks its
// fill buffer closed, without waiting for a natural EOF. The engine calls
// this on the peer stream when this stream's write side dies: there is no
// point reading data that can never be forwarded anywhere.
func (s *Stream) ForceReadClosed() {
	if s.readCancel != nil {
		s.readCancel()
	}
}

func (s *Stream) closeAll() {
	s.closeOnce.Do(func() {
		if s.Unbuffered {
			return
		}
		if s.ReadCloser != nil {
			_ = s.ReadCloser.Close()
		}
		if s.WriteCloser != nil && s.WriteCloser != s.ReadCloser {
			_ = s.WriteCloser.Close()
		}
	})
}

func (s *Stream) finalize() {
	<-s.readDone
	<-s.writeDone
	s.closeAll()
	close(s.done)
}
