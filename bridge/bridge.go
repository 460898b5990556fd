// Package bridge holds the credential handed from the agent to the host
// until the logon UI collects it.
package bridge

import (
	"sync"
	"sync/atomic"
)

// DefaultDomain is used when a credential carries no domain.
const DefaultDomain = "."

// Credential is one username and password pair.
type Credential struct {
	Username string
	Password string
	Domain   string
}

// Empty reports whether c carries no username.
func (c Credential) Empty() bool { return c.Username == "" }

// IsSentinel reports whether c is the "null"/"null" pair the agent sends
// when no face matched.
func (c Credential) IsSentinel() bool {
	return c.Username == "null" && c.Password == "null"
}

// Mailbox holds at most one unconsumed Credential, plus an independent
// unlock-requested flag consulted by tile enumeration.
type Mailbox struct {
	mu    sync.Mutex
	cred  Credential
	ready bool

	unlock atomic.Bool
}

// Publish stores cred, replacing any unconsumed value.
func (m *Mailbox) Publish(cred Credential) {
	if cred.Domain == "" {
		cred.Domain = DefaultDomain
	}
	m.mu.Lock()
	m.cred = cred
	m.ready = true
	m.mu.Unlock()
}

// Take returns the stored credential and clears it. ok is false when
// nothing was published since the last Take.
func (m *Mailbox) Take() (cred Credential, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok = m.cred, m.ready
	m.cred, m.ready = Credential{}, false
	return cred, ok
}

// Peek returns the stored credential without clearing it.
func (m *Mailbox) Peek() (Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, m.ready
}

// RequestUnlock asks the next tile enumeration to auto-logon.
func (m *Mailbox) RequestUnlock() { m.unlock.Store(true) }

// ConsumeUnlockRequest reports and clears the unlock-requested flag.
func (m *Mailbox) ConsumeUnlockRequest() bool { return m.unlock.Swap(false) }
