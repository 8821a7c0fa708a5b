// Package engine implements the I/O Engine (C6): wires the local (stdio)
// and remote (socket) I/O Streams together through the two shared ring
// buffers and runs them to completion.
//
// spec.md §4.6/§5 describes a single-threaded readiness multiplexer over
// four logical descriptors. Each iostream.Stream already runs its own
// read/write goroutines against a shared ring buffer (see internal/iostream
// and internal/ringbuf), so the engine's job collapses to: wire the two
// streams crosswise, apply the initial RECV_DATA_ONLY/SEND_DATA_ONLY
// conditions, start both, and wait for both to reach CLOSED. That is the
// idiomatic Go equivalent of §4.6's loop — every invariant in §8 (FIFO
// delivery, hold-timeout semantics, half-close suppression, tie-break
// independence) is preserved by iostream.Stream itself.
package engine

import (
	"context"
	"io"
	"time"

	"github.com/xtaci/nccat/internal/iostream"
	"github.com/xtaci/nccat/internal/nctypes"
	"github.com/xtaci/nccat/internal/ringbuf"
)

// Options configures the pair of streams the engine runs.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Remote io.ReadWriteCloser

	SockType nctypes.SockType
	MTU      int
	NRU      int

	// HalfClose mirrors the --half-close flag: when true, the remote
	// stream signals write-shutdown and stays alive for its own read side
	// instead of the suppressed-by-default full-close policy (§4.2).
	HalfClose bool
	// HoldTimeout overrides the remote stream's default (0, immediate
	// teardown on read-close); 0 here means "leave the default."
	HoldTimeout time.Duration

	// RecvDataOnly starts the local stream read-closed: bytes only ever
	// flow remote -> stdout, stdin is never read.
	RecvDataOnly bool
	// SendDataOnly starts the remote stream read-closed: bytes only ever
	// flow stdin -> remote, nothing the peer sends is read.
	SendDataOnly bool
}

// Result reports how a run ended: byte counts in each direction and the
// first error observed on either stream, if any.
type Result struct {
	LocalBytesIn, LocalBytesOut   int64
	RemoteBytesIn, RemoteBytesOut int64
	Err                           error
}

// Run wires, starts, and drives the local/remote stream pair to completion,
// per spec.md §4.6 step 6: returns once both streams are CLOSED.
func Run(ctx context.Context, opt Options) Result {
	local := iostream.NewStdio("local", opt.Stdin, opt.Stdout)
	remote := iostream.NewSocket("remote", opt.Remote, opt.SockType)
	remote.MTU = opt.MTU
	remote.NRU = opt.NRU
	remote.HalfCloseSuppressed = !opt.HalfClose
	if opt.HoldTimeout != 0 {
		remote.HoldTimeout = opt.HoldTimeout
	}
	if opt.RecvDataOnly {
		local.InitiallyReadClosed = true
	}
	if opt.SendDataOnly {
		remote.InitiallyReadClosed = true
	}

	stdinToRemote := ringbuf.New(bufferCapacity(opt.SockType))
	remoteToStdout := ringbuf.New(bufferCapacity(opt.SockType))

	local.Wire(remoteToStdout, stdinToRemote)
	remote.Wire(stdinToRemote, remoteToStdout)

	// A write that can never be delivered means there is no point reading
	// more of what would feed it: each stream's fatal write forces the
	// peer's read side closed, per spec.md §4.2 transition 3.
	local.OnFatalWrite = remote.ForceReadClosed
	remote.OnFatalWrite = local.ForceReadClosed

	local.Start(ctx)
	remote.Start(ctx)

	<-local.Done()
	<-remote.Done()

	res := Result{
		LocalBytesIn:   local.BytesIn(),
		LocalBytesOut:  local.BytesOut(),
		RemoteBytesIn:  remote.BytesIn(),
		RemoteBytesOut: remote.BytesOut(),
	}
	if err := local.LastErr(); err != nil {
		res.Err = err
	} else if err := remote.LastErr(); err != nil {
		res.Err = err
	}
	return res
}

func bufferCapacity(s nctypes.SockType) int {
	if s == nctypes.SockDatagram {
		return ringbuf.DefaultDatagramCapacity
	}
	return ringbuf.DefaultStreamCapacity
}
