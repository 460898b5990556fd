package pipe

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testAddr(t *testing.T) string {
	t.Helper()
	return Address(t.TempDir(), "test-"+uuid.NewString()[:8])
}

func startCollector(t *testing.T, ctx context.Context, addr string) (*Server, <-chan Message) {
	t.Helper()
	got := make(chan Message, 8)
	s, err := Start(ctx, addr, func(_ context.Context, msg Message) {
		got <- msg
	}, Options{ReadTimeout: time.Second})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, got
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestServerRoundTrip(t *testing.T) {
	ctx := context.Background()
	addr := testAddr(t)
	_, got := startCollector(t, ctx, addr)

	want := []Message{Trigger(), Credential("alice", "p@ss"), Trigger()}
	for _, msg := range want {
		if err := Send(ctx, addr, msg); err != nil {
			t.Fatalf("Send(%v): %v", msg, err)
		}
	}
	for i, w := range want {
		if m := receive(t, got); m != w {
			t.Fatalf("message %d = %+v, want %+v", i, m, w)
		}
	}
}

func TestServerDropsMalformed(t *testing.T) {
	ctx := context.Background()
	addr := testAddr(t)
	_, got := startCollector(t, ctx, addr)

	for _, raw := range [][]byte{{0x01}, utf16le(t, "garbage"), nil} {
		conn, err := dial(ctx, addr)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		conn.Write(raw)
		conn.Close()
	}
	if err := (Client{Addr: addr}).Send(ctx, Trigger()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if m := receive(t, got); m != Trigger() {
		t.Fatalf("first delivered message = %+v, want trigger", m)
	}
	select {
	case m := <-got:
		t.Fatalf("unexpected message %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServerStop(t *testing.T) {
	ctx := context.Background()
	addr := testAddr(t)
	s, _ := startCollector(t, ctx, addr)

	s.Stop()
	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	sendCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := Send(sendCtx, addr, Trigger()); err == nil {
		t.Fatal("Send succeeded after Stop")
	}
}

func TestServerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := startCollector(t, ctx, testAddr(t))

	cancel()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit after cancel")
	}
}

func TestSendNoServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := Send(ctx, testAddr(t), Trigger()); err == nil {
		t.Fatal("Send without a server succeeded")
	}
}

func TestSendRejectsBeforeConnect(t *testing.T) {
	if err := Send(context.Background(), testAddr(t), Credential("a::FaceWinUnlock::b", "")); err != ErrAmbiguousCredential {
		t.Fatalf("Send error = %v, want ErrAmbiguousCredential", err)
	}
}
