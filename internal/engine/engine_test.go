package engine

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xtaci/nccat/internal/nctypes"
)

// loopbackEcho makes every Write immediately available to a later Read,
// standing in for a remote peer that echoes instantly without depending on
// real socket/scheduling timing (see internal/iostream's identical fixture
// for why a synchronous net.Pipe rendezvous would be flaky here).
type loopbackEcho struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
	notify chan struct{}
}

func newLoopbackEcho() *loopbackEcho { return &loopbackEcho{notify: make(chan struct{}, 1)} }

func (l *loopbackEcho) signal() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *loopbackEcho) Write(p []byte) (int, error) {
	l.mu.Lock()
	l.buf = append(l.buf, p...)
	l.mu.Unlock()
	l.signal()
	return len(p), nil
}

func (l *loopbackEcho) Read(p []byte) (int, error) {
	for {
		l.mu.Lock()
		if len(l.buf) > 0 {
			n := copy(p, l.buf)
			l.buf = l.buf[n:]
			l.mu.Unlock()
			return n, nil
		}
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return 0, io.EOF
		}
		<-l.notify
	}
}

func (l *loopbackEcho) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
	return nil
}

func TestRunEchoesStdinToStdout(t *testing.T) {
	in := strings.NewReader("the quick brown fox")
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := Run(ctx, Options{
		Stdin:    in,
		Stdout:   &out,
		Remote:   newLoopbackEcho(),
		SockType: nctypes.SockStream,
	})

	if res.Err != nil {
		t.Fatalf("unexpected engine error: %+v", res.Err)
	}
	if out.String() != "the quick brown fox" {
		t.Fatalf("got %q, want echoed input", out.String())
	}
	if res.LocalBytesIn != int64(len("the quick brown fox")) {
		t.Fatalf("unexpected LocalBytesIn: %d", res.LocalBytesIn)
	}
}

func TestRunRecvDataOnlyNeverSendsStdin(t *testing.T) {
	in := strings.NewReader("must never be sent")
	var out bytes.Buffer
	remote := newLoopbackEcho()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := Run(ctx, Options{
		Stdin:        in,
		Stdout:       &out,
		Remote:       remote,
		SockType:     nctypes.SockStream,
		RecvDataOnly: true,
	})

	if res.Err != nil {
		t.Fatalf("unexpected engine error: %+v", res.Err)
	}
	if res.LocalBytesOut != 0 || res.RemoteBytesIn != 0 {
		t.Fatalf("RECV_DATA_ONLY must never forward stdin to the remote side")
	}
}

func TestRunSendDataOnlyNeverReadsRemote(t *testing.T) {
	in := strings.NewReader("hello")
	var out bytes.Buffer
	remote := newLoopbackEcho()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := Run(ctx, Options{
		Stdin:        in,
		Stdout:       &out,
		Remote:       remote,
		SockType:     nctypes.SockStream,
		SendDataOnly: true,
	})

	if res.Err != nil {
		t.Fatalf("unexpected engine error: %+v", res.Err)
	}
	if out.Len() != 0 {
		t.Fatalf("SEND_DATA_ONLY must never write anything to stdout, got %q", out.String())
	}
	if res.LocalBytesIn != int64(len("hello")) {
		t.Fatalf("stdin should still have been sent to the remote side")
	}
}
