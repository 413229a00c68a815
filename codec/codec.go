// Package codec turns domain messages into datagrams and back.
//
// Every frame starts with a one-byte tag (domain.Kind). Strings are UTF-8
// prefixed by their byte length as a little-endian uint16:
//
//	Register            [0x00][len][name]
//	Chat, upstream      [0x01][len][text]
//	Chat, downstream    [0x01][len][name][len][text]
//
// Upstream frames travel from a client to the relay, downstream frames from
// the relay to its clients. The codec has no side effects.
package codec

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

const (
	tagSize    = 1
	prefixSize = 2
)

type Direction int

const (
	Upstream Direction = iota
	Downstream
)

func (d Direction) String() string {
	if d == Downstream {
		return "downstream"
	}
	return "upstream"
}

type Codec struct {
	dir Direction
}

func New(dir Direction) Codec {
	return Codec{dir: dir}
}

func (c Codec) Direction() Direction { return c.dir }

// Encode validates sizes before allocating anything, so an oversize input
// never produces a partial frame.
func (c Codec) Encode(m domain.Message) ([]byte, error) {
	switch msg := m.(type) {
	case domain.Register:
		if err := msg.Name.Validate(); err != nil {
			return nil, err
		}
		buf := make([]byte, 0, tagSize+prefixSize+len(msg.Name))
		buf = append(buf, byte(domain.KindRegister))
		return appendString(buf, string(msg.Name)), nil
	case domain.Chat:
		if err := msg.Text.Validate(); err != nil {
			return nil, err
		}
		if c.dir == Upstream {
			buf := make([]byte, 0, tagSize+prefixSize+len(msg.Text))
			buf = append(buf, byte(domain.KindChat))
			return appendString(buf, string(msg.Text)), nil
		}
		if err := msg.Name.Validate(); err != nil {
			return nil, err
		}
		buf := make([]byte, 0, tagSize+2*prefixSize+len(msg.Name)+len(msg.Text))
		buf = append(buf, byte(domain.KindChat))
		buf = appendString(buf, string(msg.Name))
		return appendString(buf, string(msg.Text)), nil
	case nil:
		return nil, fmt.Errorf("nil message: %w", errors.ErrUnknownTag)
	default:
		return nil, fmt.Errorf("message kind %s: %w", m.Kind(), errors.ErrUnknownTag)
	}
}

// Decode reads one frame. Bytes after the last field are ignored.
func (c Codec) Decode(b []byte) (domain.Message, error) {
	if len(b) < tagSize {
		return nil, fmt.Errorf("missing tag: %w", errors.ErrTruncated)
	}
	kind := domain.Kind(b[0])
	switch kind {
	case domain.KindRegister:
		name, _, err := readString(b, tagSize, domain.MaxNameBytes)
		if err != nil {
			return nil, fmt.Errorf("register name: %w", err)
		}
		if name == "" {
			return nil, fmt.Errorf("register name: %w", errors.ErrInvalidName)
		}
		return domain.Register{Name: domain.DisplayName(name)}, nil
	case domain.KindChat:
		if c.dir == Upstream {
			text, _, err := readString(b, tagSize, domain.MaxTextBytes)
			if err != nil {
				return nil, fmt.Errorf("chat text: %w", err)
			}
			return domain.Chat{Text: domain.ChatPayload(text)}, nil
		}
		name, next, err := readString(b, tagSize, domain.MaxNameBytes)
		if err != nil {
			return nil, fmt.Errorf("chat sender: %w", err)
		}
		text, _, err := readString(b, next, domain.MaxTextBytes)
		if err != nil {
			return nil, fmt.Errorf("chat text: %w", err)
		}
		return domain.Chat{Name: domain.DisplayName(name), Text: domain.ChatPayload(text)}, nil
	default:
		return nil, fmt.Errorf("tag 0x%02x: %w", b[0], errors.ErrUnknownTag)
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func readString(b []byte, offset, capacity int) (string, int, error) {
	if len(b)-offset < prefixSize {
		return "", offset, errors.ErrTruncated
	}
	n := int(binary.LittleEndian.Uint16(b[offset:]))
	if n > capacity {
		return "", offset, fmt.Errorf("%d bytes, max %d: %w", n, capacity, errors.ErrOversize)
	}
	start := offset + prefixSize
	if len(b)-start < n {
		return "", offset, fmt.Errorf("want %d bytes, have %d: %w", n, len(b)-start, errors.ErrTruncated)
	}
	raw := b[start : start+n]
	if !utf8.Valid(raw) {
		return "", offset, errors.ErrInvalidUTF8
	}
	return string(raw), start + n, nil
}
