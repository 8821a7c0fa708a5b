package ringbuf

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestPushDrainRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 8192} {
		cap := 8192
		b := New(cap)
		payload := strings.Repeat("x", n)
		src := strings.NewReader(payload)

		var got bytes.Buffer
		for src.Len() > 0 {
			if _, err := b.PushFrom(src, 0); err != nil && err != io.EOF {
				t.Fatalf("PushFrom: %v", err)
			}
			for b.Readable() {
				if _, err := b.DrainTo(&got, 0, false); err != nil {
					t.Fatalf("DrainTo: %v", err)
				}
			}
		}
		if got.String() != payload {
			t.Fatalf("n=%d: round trip mismatch: got %q want %q", n, got.String(), payload)
		}
	}
}

func TestPushFromMarksProducerClosedOnEOF(t *testing.T) {
	b := New(16)
	src := strings.NewReader("hi")
	if _, err := b.PushFrom(src, 0); err != nil {
		t.Fatalf("PushFrom: %v", err)
	}
	n, err := b.PushFrom(src, 0)
	if n != 0 || err != io.EOF {
		t.Fatalf("expected (0, io.EOF), got (%d, %v)", n, err)
	}
	if !b.ProducerClosed() {
		t.Fatalf("expected producer closed after EOF")
	}
	if b.IsDrained() {
		t.Fatalf("buffer still has bytes, must not report drained")
	}
	var got bytes.Buffer
	if _, err := b.DrainTo(&got, 0, false); err != nil {
		t.Fatalf("DrainTo: %v", err)
	}
	if !b.IsDrained() {
		t.Fatalf("expected drained once count reaches 0 after producer closed")
	}
}

func TestInvariantCountNeverExceedsCapacity(t *testing.T) {
	b := New(4)
	src := strings.NewReader("abcdefgh")
	for i := 0; i < 10; i++ {
		b.PushFrom(src, 0)
		if c := b.Count(); c < 0 || c > b.Capacity() {
			t.Fatalf("invariant violated: count=%d capacity=%d", c, b.Capacity())
		}
	}
}

func TestDrainToDatagramRejectsShortWrite(t *testing.T) {
	b := New(16)
	b.PushFrom(strings.NewReader("datagram!"), 0)
	_, err := b.DrainTo(shortWriter{limit: 3}, 0, true)
	if err != io.ErrShortWrite {
		t.Fatalf("expected io.ErrShortWrite, got %v", err)
	}
}

func TestDrainToStreamToleratesPartialWrite(t *testing.T) {
	b := New(16)
	b.PushFrom(strings.NewReader("0123456789"), 0)
	n, err := b.DrainTo(shortWriter{limit: 3}, 0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected partial write of 3, got %d", n)
	}
	if b.Count() != 7 {
		t.Fatalf("expected cursor advanced by 3, count=%d", b.Count())
	}
}

func TestWaitWritableUnblocksOnDrain(t *testing.T) {
	b := New(2)
	src := strings.NewReader("ab")
	b.PushFrom(src, 0)
	if b.Writable() {
		t.Fatalf("expected buffer full")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.WaitWritable(ctx) }()

	time.Sleep(10 * time.Millisecond)
	var sink bytes.Buffer
	b.DrainTo(&sink, 1, false)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitWritable: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitWritable did not unblock after drain")
	}
}

func TestWaitReadableOrClosedUnblocksOnProducerClose(t *testing.T) {
	b := New(4)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.WaitReadableOrClosed(ctx) }()

	time.Sleep(10 * time.Millisecond)
	b.MarkProducerClosed()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitReadableOrClosed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitReadableOrClosed did not unblock on producer close")
	}
}

type shortWriter struct{ limit int }

func (s shortWriter) Write(p []byte) (int, error) {
	if len(p) > s.limit {
		return s.limit, nil
	}
	return len(p), nil
}
