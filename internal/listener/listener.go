// Package listener implements the Listener (C5): binds every usable local
// candidate, races acceptance across all of them, and returns the first
// peer allowed by the peer filter, closing the rest.
package listener

import (
	"context"
	"net"
	"sync"

	"github.com/fatih/color"
	"github.com/xtaci/nccat/internal/filter"
	"github.com/xtaci/nccat/internal/nctypes"
	"github.com/xtaci/nccat/internal/resolve"
	"github.com/xtaci/nccat/internal/sockopt"
)

// maxDatagramPeek bounds a single peek read: large enough for any UDP
// datagram (65507 is the theoretical IPv4 max payload).
const maxDatagramPeek = 65536

// Target describes the local endpoint(s) to bind and the optional remote
// filter that restricts which peer may be accepted.
type Target struct {
	LocalHost, LocalService   string
	RemoteHost, RemoteService string
	Family                    nctypes.Family
	SockType                  nctypes.SockType
	DontReuseAddr             bool
	Verbose                   bool
}

// Result is the accepted peer, handed to the remote I/O Stream.
type Result struct {
	Conn      net.Conn
	Candidate resolve.Candidate
}

type binding struct {
	candidate resolve.Candidate
	streamLn  net.Listener
	dgramConn *net.UDPConn
}

// Accept runs the full bind-then-accept algorithm of spec.md §4.5. It
// blocks until a peer is accepted (and allowed by the filter), ctx is
// canceled, or every listening candidate fails to bind.
func Accept(ctx context.Context, t Target) (*Result, error) {
	candidates, err := resolve.Resolve(ctx, t.LocalHost, t.LocalService, resolve.Options{
		Family:   t.Family,
		SockType: t.SockType,
		Passive:  true,
	})
	if err != nil {
		return nil, err
	}
	candidates = resolve.OrderIPv6First(candidates)

	bindings := bindAll(ctx, candidates, t)
	if len(bindings) == 0 {
		return nil, nctypes.NewBindError("failed to bind")
	}
	defer closeBindings(bindings)

	pred, err := filter.FromRemote(ctx, t.RemoteHost, t.RemoteService, t.SockType)
	if err != nil {
		return nil, err
	}

	return raceAccept(ctx, bindings, pred)
}

func bindAll(ctx context.Context, candidates []resolve.Candidate, t Target) []binding {
	lc := sockopt.Listener(t.DontReuseAddr)
	var bindings []binding
	for _, c := range candidates {
		switch c.SockType {
		case nctypes.SockStream:
			ln, err := lc.Listen(ctx, c.Network(), c.Addr())
			if err != nil {
				if t.Verbose {
					color.Yellow("nccat: bind %s: %v", c.Describe(true), err)
				}
				continue
			}
			bindings = append(bindings, binding{candidate: c, streamLn: ln})
		case nctypes.SockDatagram:
			pc, err := lc.ListenPacket(ctx, c.Network(), c.Addr())
			if err != nil {
				if t.Verbose {
					color.Yellow("nccat: bind %s: %v", c.Describe(true), err)
				}
				continue
			}
			udpConn, ok := pc.(*net.UDPConn)
			if !ok {
				pc.Close()
				continue
			}
			bindings = append(bindings, binding{candidate: c, dgramConn: udpConn})
		default:
			continue
		}
	}
	return bindings
}

// raceAccept runs one goroutine per binding, each looping its own
// accept/peek until it produces an allowed peer or its descriptor is
// closed out from under it. The first allowed peer wins; closing every
// binding (the caller's responsibility once this returns) unblocks the
// rest, which is the goroutine-based idiomatic equivalent of the single
// readiness-multiplexer wait spec.md §4.5 step 4 describes.
func raceAccept(ctx context.Context, bindings []binding, pred filter.Predicate) (*Result, error) {
	type outcome struct {
		res *Result
		err error
	}
	results := make(chan outcome, len(bindings))

	acceptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, b := range bindings {
		b := b
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := acceptOne(acceptCtx, b, pred)
			if res == nil && err == nil {
				return
			}
			results <- outcome{res: res, err: err}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case o := <-results:
		cancel()
		closeBindings(bindings)
		<-done
		return o.res, o.err
	case <-done:
		return nil, nctypes.NewAcceptError("no listening candidate accepted a peer")
	case <-ctx.Done():
		cancel()
		closeBindings(bindings)
		<-done
		return nil, ctx.Err()
	}
}

func acceptOne(ctx context.Context, b binding, pred filter.Predicate) (*Result, error) {
	if b.streamLn != nil {
		return acceptStream(ctx, b, pred)
	}
	return acceptDatagram(ctx, b, pred)
}

func acceptStream(ctx context.Context, b binding, pred filter.Predicate) (*Result, error) {
	for {
		conn, err := b.streamLn.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, nctypes.NewAcceptError(err.Error())
		}
		ok, err := pred(conn.RemoteAddr())
		if err != nil {
			conn.Close()
			return nil, err
		}
		if !ok {
			conn.Close()
			continue
		}
		return &Result{Conn: conn, Candidate: b.candidate}, nil
	}
}

func acceptDatagram(ctx context.Context, b binding, pred filter.Predicate) (*Result, error) {
	buf := make([]byte, maxDatagramPeek)
	for {
		_, peer, err := sockopt.PeekUDP(b.dgramConn, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, nctypes.NewAcceptError(err.Error())
		}

		ok, err := pred(peer)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Disallowed: drain the peeked packet so it doesn't keep
			// satisfying the next peek, and keep listening.
			_, _ = b.dgramConn.Read(buf)
			continue
		}

		session, err := sockopt.DupAndConnectUDP(b.dgramConn, peer)
		if err != nil {
			return nil, nctypes.NewAcceptError(err.Error())
		}
		return &Result{Conn: session, Candidate: b.candidate}, nil
	}
}

func closeBindings(bindings []binding) {
	for _, b := range bindings {
		if b.streamLn != nil {
			_ = b.streamLn.Close()
		}
		if b.dgramConn != nil {
			_ = b.dgramConn.Close()
		}
	}
}
