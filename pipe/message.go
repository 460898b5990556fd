// Package pipe carries single messages between the host and the agent over
// a local, well-known channel. Each connection carries exactly one message
// and is terminated by the writer closing it.
package pipe

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Well-known channel names.
const (
	// TriggerChannel carries Trigger messages from the host to the agent.
	TriggerChannel = "faceunlock-trigger"
	// CredentialChannel carries Credential messages from the agent to the host.
	CredentialChannel = "faceunlock-credential"
)

// Separator divides the username and password of a Credential message.
const Separator = "::FaceWinUnlock::"

const triggerText = "run"

var (
	// ErrMalformed is returned when a payload is neither a Trigger nor a Credential.
	ErrMalformed = errors.New("pipe: malformed message")
	// ErrAmbiguousCredential is returned when a username contains Separator.
	ErrAmbiguousCredential = errors.New("pipe: username contains separator")
)

// Kind identifies the message variant.
type Kind int

const (
	KindTrigger Kind = iota + 1
	KindCredential
)

func (k Kind) String() string {
	switch k {
	case KindTrigger:
		return "trigger"
	case KindCredential:
		return "credential"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Message is either a Trigger or a Credential. Username and Password are
// only meaningful for KindCredential.
type Message struct {
	Kind     Kind
	Username string
	Password string
}

// Trigger returns a Trigger message.
func Trigger() Message { return Message{Kind: KindTrigger} }

// Credential returns a Credential message.
func Credential(username, password string) Message {
	return Message{Kind: KindCredential, Username: username, Password: password}
}

// String never includes the password.
func (m Message) String() string {
	if m.Kind == KindCredential {
		return "credential(" + m.Username + ")"
	}
	return m.Kind.String()
}

var (
	wireEncoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	wireDecoding = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
)

// Encode renders m as UTF-16LE text.
func Encode(m Message) ([]byte, error) {
	var text string
	switch m.Kind {
	case KindTrigger:
		text = triggerText
	case KindCredential:
		if m.Username == "" {
			return nil, fmt.Errorf("%w: empty username", ErrMalformed)
		}
		if strings.Contains(m.Username, Separator) {
			return nil, ErrAmbiguousCredential
		}
		text = m.Username + Separator + m.Password
	default:
		return nil, fmt.Errorf("%w: unknown kind %v", ErrMalformed, m.Kind)
	}
	b, err := wireEncoding.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode utf-16: %w", err)
	}
	return b, nil
}

// Decode parses a UTF-16LE payload. A leading byte order mark and trailing
// NUL characters are ignored. The payload is split on the first Separator,
// so a password may itself contain it.
func Decode(b []byte) (Message, error) {
	if len(b)%2 != 0 {
		return Message{}, fmt.Errorf("%w: odd payload length %d", ErrMalformed, len(b))
	}
	raw, err := wireDecoding.NewDecoder().Bytes(b)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	raw = bytes.TrimRight(raw, "\x00")
	text := string(raw)

	if text == triggerText {
		return Trigger(), nil
	}
	user, pass, ok := strings.Cut(text, Separator)
	if !ok || user == "" {
		return Message{}, ErrMalformed
	}
	return Credential(user, pass), nil
}
