package bridge

import (
	"sync"
	"testing"
)

func TestPublishTake(t *testing.T) {
	var m Mailbox
	if _, ok := m.Take(); ok {
		t.Fatal("empty mailbox returned a value")
	}

	m.Publish(Credential{Username: "alice", Password: "one"})
	m.Publish(Credential{Username: "bob", Password: "two", Domain: "CORP"})

	if got, ok := m.Peek(); !ok || got.Username != "bob" {
		t.Fatalf("Peek = %+v, %v", got, ok)
	}
	got, ok := m.Take()
	if !ok {
		t.Fatal("Take returned nothing")
	}
	want := Credential{Username: "bob", Password: "two", Domain: "CORP"}
	if got != want {
		t.Fatalf("Take = %+v, want %+v", got, want)
	}
	if _, ok := m.Take(); ok {
		t.Fatal("second Take returned a value")
	}
}

func TestPublishDefaultDomain(t *testing.T) {
	var m Mailbox
	m.Publish(Credential{Username: "alice"})
	got, _ := m.Take()
	if got.Domain != DefaultDomain {
		t.Fatalf("Domain = %q, want %q", got.Domain, DefaultDomain)
	}
}

func TestUnlockRequestIndependent(t *testing.T) {
	var m Mailbox
	m.RequestUnlock()
	if !m.ConsumeUnlockRequest() {
		t.Fatal("first consume = false")
	}
	if m.ConsumeUnlockRequest() {
		t.Fatal("second consume = true")
	}

	m.Publish(Credential{Username: "alice"})
	if m.ConsumeUnlockRequest() {
		t.Fatal("Publish raised the unlock flag")
	}
	if _, ok := m.Peek(); !ok {
		t.Fatal("consuming the flag cleared the credential")
	}
}

func TestConcurrentTakeOnce(t *testing.T) {
	var m Mailbox
	m.Publish(Credential{Username: "alice"})

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := m.Take(); ok {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if taken != 1 {
		t.Fatalf("taken %d times, want 1", taken)
	}
}

func TestSentinel(t *testing.T) {
	tests := []struct {
		c    Credential
		want bool
	}{
		{Credential{Username: "null", Password: "null"}, true},
		{Credential{Username: "null", Password: "x"}, false},
		{Credential{Username: "alice", Password: "null"}, false},
	}
	for _, tt := range tests {
		if got := tt.c.IsSentinel(); got != tt.want {
			t.Fatalf("%+v.IsSentinel() = %v", tt.c, got)
		}
	}
}
