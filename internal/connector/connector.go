// Package connector implements the Connector (C4): walks a resolved
// candidate list, optionally binds a source endpoint, connects, and reports
// the chosen peer on the remote I/O Stream.
package connector

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/xtaci/nccat/internal/nctypes"
	"github.com/xtaci/nccat/internal/resolve"
	"github.com/xtaci/nccat/internal/sockopt"
)

// Target describes what to connect to and, optionally, where from.
type Target struct {
	RemoteHost, RemoteService string
	LocalHost, LocalService   string
	Family                    nctypes.Family
	SockType                  nctypes.SockType
	ConnectTimeout            time.Duration // 0 means no deadline on the whole walk
	DisableNagle              bool
	Verbose                   bool
}

// Result is what a successful Connect reports back to the caller (cmd/nccat
// assembles the pair of I/O Streams from it).
type Result struct {
	Conn      net.Conn
	Candidate resolve.Candidate
}

// Connect resolves Target.RemoteHost/RemoteService and walks the resulting
// candidates until one connects, per spec.md §4.4. Connect-timeout is
// applied once to the whole walk (original_source/connection.c arms a
// single alarm rather than one per candidate); ctx is derived with
// context.WithTimeout here rather than left to the caller so every
// candidate attempt shares the same deadline.
func Connect(parent context.Context, t Target) (*Result, error) {
	ctx := parent
	if t.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, t.ConnectTimeout)
		defer cancel()
	}

	remotes, err := resolve.Resolve(ctx, t.RemoteHost, t.RemoteService, resolve.Options{
		Family:   t.Family,
		SockType: t.SockType,
	})
	if err != nil {
		return nil, err
	}

	var attempted bool
	var lastErr error
	for _, candidate := range remotes {
		if candidate.SockType != nctypes.SockStream && candidate.SockType != nctypes.SockDatagram {
			continue
		}
		attempted = true

		if t.Verbose {
			color.Cyan("nccat: trying %s", candidate.Describe(false))
		}

		conn, err := dialCandidate(ctx, t, candidate)
		if err != nil {
			if fatal, ok := err.(*fatalDialError); ok {
				return nil, nctypes.NewSocketCreateError(false, fatal.Error())
			}
			lastErr = err
			if t.Verbose {
				color.Yellow("nccat: %s: %v", candidate.Describe(true), err)
			}
			continue
		}

		if err := sockopt.SetNoDelay(conn, t.DisableNagle); err != nil && t.Verbose {
			color.Yellow("nccat: nagle option: %v", err)
		}
		return &Result{Conn: conn, Candidate: candidate}, nil
	}

	if attempted {
		return nil, nctypes.NewConnectError("no candidate connected: " + errString(lastErr))
	}
	return nil, nctypes.NewConnectError("no usable socket types")
}

// fatalDialError marks a socket()-stage failure that is not a recognized
// "unsupported family" case: per §4.4 step a, this aborts the whole walk
// rather than trying the next candidate.
type fatalDialError struct{ err error }

func (e *fatalDialError) Error() string { return e.err.Error() }
func (e *fatalDialError) Unwrap() error { return e.err }

func dialCandidate(ctx context.Context, t Target, candidate resolve.Candidate) (net.Conn, error) {
	dialer := *sockopt.Dialer(0)

	locals, err := localCandidates(ctx, t, candidate)
	if err != nil {
		return nil, err
	}

	if len(locals) == 0 {
		return dialOne(ctx, dialer, candidate, nil)
	}

	var lastErr error
	for _, local := range locals {
		laddr, err := localAddr(candidate.Network(), local)
		if err != nil {
			lastErr = err
			continue
		}
		conn, err := dialOne(ctx, dialer, candidate, laddr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func dialOne(ctx context.Context, dialer net.Dialer, candidate resolve.Candidate, laddr net.Addr) (net.Conn, error) {
	dialer.LocalAddr = laddr
	conn, err := dialer.DialContext(ctx, candidate.Network(), candidate.Addr())
	if err == nil {
		return conn, nil
	}

	stage := syscallStage(err)
	if stage == "socket" {
		if sockopt.IsUnsupportedFamily(err) {
			return nil, err
		}
		return nil, &fatalDialError{err: err}
	}
	return nil, err
}

// localCandidates resolves the local endpoint when the caller asked for one
// (§4.4 step c); an empty result means "let the OS choose."
func localCandidates(ctx context.Context, t Target, remote resolve.Candidate) ([]resolve.Candidate, error) {
	if t.LocalHost == "" && t.LocalService == "" {
		return nil, nil
	}
	return resolve.Resolve(ctx, t.LocalHost, t.LocalService, resolve.Options{
		Family:   remote.Family,
		SockType: remote.SockType,
		Passive:  true,
	})
}

func localAddr(network string, c resolve.Candidate) (net.Addr, error) {
	switch {
	case network == "tcp" || network == "tcp4" || network == "tcp6":
		return &net.TCPAddr{IP: c.IP, Port: c.Port}, nil
	case network == "udp" || network == "udp4" || network == "udp6":
		return &net.UDPAddr{IP: c.IP, Port: c.Port}, nil
	default:
		return nil, nctypes.NewInternalInvariantError("unrecognized network " + network)
	}
}

// syscallStage reports which syscall inside net's dial path produced err, so
// a hard socket()-stage failure can be distinguished from an ordinary
// bind/connect failure that just means "try the next candidate."
func syscallStage(err error) string {
	var serr *os.SyscallError
	if errors.As(err, &serr) {
		return serr.Syscall
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return "no candidates attempted"
	}
	return err.Error()
}
