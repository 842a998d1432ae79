// Package invocation implements the delivery semantics offered to callers.
//
// Under at-least-once every datagram runs its handler, retransmissions
// included. Under at-most-once the first reply to a (correlation id, client
// address) pair is cached and every later datagram with the same key gets
// the cached bytes back without touching a handler.
package invocation

import (
	"fmt"
	"strings"
)

// Mode selects the invocation semantics of the server.
type Mode uint8

const (
	AtMostOnce Mode = iota
	AtLeastOnce
)

func (m Mode) String() string {
	switch m {
	case AtMostOnce:
		return "at-most-once"
	case AtLeastOnce:
		return "at-least-once"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode accepts "at-least-once" and "at-most-once", case-insensitively
// and with underscores in place of dashes. The empty string means at-most-once.
func ParseMode(s string) (Mode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "", "at-most-once", "amo":
		return AtMostOnce, nil
	case "at-least-once", "alo":
		return AtLeastOnce, nil
	}
	return AtMostOnce, fmt.Errorf("unknown invocation semantics %q", s)
}

// UnmarshalText lets configuration files name the mode.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
