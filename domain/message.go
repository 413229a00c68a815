// Package domain contains core concepts of the chat relay.
// This file defines the Message union exchanged on the wire and its size rules.
// No transport, runtime, or UI logic should be added here.
package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameBytes = 64
	MaxTextBytes = 512
)

// DisplayName is the name a connection registered under.
type DisplayName string

// ChatPayload is the text of a single chat message. It is never stored.
type ChatPayload string

// NewDisplayName trims the input and checks it holds 1 to MaxNameBytes bytes.
func NewDisplayName(s string) (DisplayName, error) {
	name := DisplayName(strings.TrimSpace(s))
	if err := name.Validate(); err != nil {
		return "", err
	}
	return name, nil
}

func (n DisplayName) Validate() error {
	if len(n) == 0 {
		return errors.ErrInvalidName
	}
	if len(n) > MaxNameBytes {
		return fmt.Errorf("display name is %d bytes, max %d: %w", len(n), MaxNameBytes, errors.ErrCapacityExceeded)
	}
	if !utf8.ValidString(string(n)) {
		return fmt.Errorf("display name: %w", errors.ErrInvalidUTF8)
	}
	return nil
}

func (p ChatPayload) Validate() error {
	if len(p) > MaxTextBytes {
		return fmt.Errorf("chat payload is %d bytes, max %d: %w", len(p), MaxTextBytes, errors.ErrCapacityExceeded)
	}
	if !utf8.ValidString(string(p)) {
		return fmt.Errorf("chat payload: %w", errors.ErrInvalidUTF8)
	}
	return nil
}

// Kind is the single-byte discriminant preceding every payload on the wire.
type Kind byte

const (
	KindRegister Kind = 0x00
	KindChat     Kind = 0x01
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindChat:
		return "chat"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(k))
	}
}

// Message is either a Register or a Chat.
type Message interface {
	Kind() Kind
}

// Register announces the display name of the sending connection.
// Sending it again renames the connection.
type Register struct {
	Name DisplayName
}

func (Register) Kind() Kind { return KindRegister }

// Chat carries a chat line. Name is empty when a client sends it and is
// filled in by the relay before broadcasting.
type Chat struct {
	Name DisplayName
	Text ChatPayload
}

func (Chat) Kind() Kind { return KindChat }
