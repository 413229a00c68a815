package codec

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		dir  Direction
		msg  domain.Message
	}{
		{"register", Upstream, domain.Register{Name: "Alice"}},
		{"register downstream", Downstream, domain.Register{Name: "Bob"}},
		{"register max name", Upstream, domain.Register{Name: domain.DisplayName(strings.Repeat("n", domain.MaxNameBytes))}},
		{"chat upstream", Upstream, domain.Chat{Text: "hi"}},
		{"chat upstream empty text", Upstream, domain.Chat{Text: ""}},
		{"chat upstream max text", Upstream, domain.Chat{Text: domain.ChatPayload(strings.Repeat("t", domain.MaxTextBytes))}},
		{"chat downstream", Downstream, domain.Chat{Name: "Carol", Text: "héllo wörld"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			c := New(tt.dir)

			b, err := c.Encode(tt.msg)
			req.NoError(err)

			got, err := c.Decode(b)
			req.NoError(err)
			req.Equal(tt.msg, got)
		})
	}
}

func TestCodec_Encode_Layout(t *testing.T) {
	req := require.New(t)

	b, err := New(Upstream).Encode(domain.Register{Name: "Al"})
	req.NoError(err)
	req.Equal([]byte{0x00, 0x02, 0x00, 'A', 'l'}, b)

	b, err = New(Upstream).Encode(domain.Chat{Name: "ignored", Text: "hi"})
	req.NoError(err)
	req.Equal([]byte{0x01, 0x02, 0x00, 'h', 'i'}, b)

	b, err = New(Downstream).Encode(domain.Chat{Name: "Al", Text: "hi"})
	req.NoError(err)
	req.Equal([]byte{0x01, 0x02, 0x00, 'A', 'l', 0x02, 0x00, 'h', 'i'}, b)
}

func TestCodec_Encode_CapacityExceeded(t *testing.T) {
	req := require.New(t)

	// Given a name of 65 bytes
	_, err := New(Upstream).Encode(domain.Register{Name: domain.DisplayName(strings.Repeat("a", 65))})
	req.ErrorIs(err, errors.ErrCapacityExceeded)

	// Given a chat of 513 bytes
	_, err = New(Upstream).Encode(domain.Chat{Text: domain.ChatPayload(strings.Repeat("a", 513))})
	req.ErrorIs(err, errors.ErrCapacityExceeded)

	// Given a broadcast with an oversize sender
	_, err = New(Downstream).Encode(domain.Chat{Name: domain.DisplayName(strings.Repeat("a", 65)), Text: "hi"})
	req.ErrorIs(err, errors.ErrCapacityExceeded)
}

func TestCodec_Encode_RejectsEmptyName(t *testing.T) {
	req := require.New(t)

	_, err := New(Upstream).Encode(domain.Register{})
	req.ErrorIs(err, errors.ErrInvalidName)

	_, err = New(Downstream).Encode(domain.Chat{Text: "hi"})
	req.ErrorIs(err, errors.ErrInvalidName)
}

func TestCodec_Encode_Rejects_Invalid_UTF8(t *testing.T) {
	req := require.New(t)

	// Given strings that Decode would refuse
	_, err := New(Upstream).Encode(domain.Register{Name: "\xff\xfe"})
	req.ErrorIs(err, errors.ErrInvalidUTF8)

	_, err = New(Upstream).Encode(domain.Chat{Text: "caf\xe9"})
	req.ErrorIs(err, errors.ErrInvalidUTF8)

	_, err = New(Downstream).Encode(domain.Chat{Name: "Bob\x80", Text: "hi"})
	req.ErrorIs(err, errors.ErrInvalidUTF8)
}

func TestCodec_Encode_Nil(t *testing.T) {
	_, err := New(Upstream).Encode(nil)
	require.ErrorIs(t, err, errors.ErrUnknownTag)
}

func TestCodec_Decode_Errors(t *testing.T) {
	tests := []struct {
		name string
		dir  Direction
		in   []byte
		want error
	}{
		{"empty buffer", Upstream, nil, errors.ErrTruncated},
		{"unknown tag", Upstream, []byte{0x07, 0x00, 0x00}, errors.ErrUnknownTag},
		{"missing length prefix", Upstream, []byte{0x00, 0x01}, errors.ErrTruncated},
		{"short name", Upstream, []byte{0x00, 0x05, 0x00, 'A'}, errors.ErrTruncated},
		{"oversize name", Upstream, []byte{0x00, 65, 0x00}, errors.ErrOversize},
		{"oversize text", Upstream, []byte{0x01, 0x01, 0x02}, errors.ErrOversize},
		{"empty name", Upstream, []byte{0x00, 0x00, 0x00}, errors.ErrInvalidName},
		{"invalid utf8", Upstream, []byte{0x01, 0x02, 0x00, 0xff, 0xfe}, errors.ErrInvalidUTF8},
		{"broadcast missing text", Downstream, []byte{0x01, 0x01, 0x00, 'A'}, errors.ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.dir).Decode(tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCodec_Decode_IgnoresTrailingBytes(t *testing.T) {
	req := require.New(t)

	got, err := New(Upstream).Decode([]byte{0x01, 0x02, 0x00, 'h', 'i', 0xAA, 0xBB})

	req.NoError(err)
	req.Equal(domain.Chat{Text: "hi"}, got)
}
