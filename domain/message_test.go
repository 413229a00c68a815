package domain

import (
	"chat-relay/errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDisplayName_TrimsAndAccepts(t *testing.T) {
	req := require.New(t)

	name, err := NewDisplayName("  Alice  ")

	req.NoError(err)
	req.Equal(DisplayName("Alice"), name)
}

func TestNewDisplayName_Rejects(t *testing.T) {
	req := require.New(t)

	// Given a blank name
	_, err := NewDisplayName("   ")
	req.ErrorIs(err, errors.ErrInvalidName)

	// Given a name one byte too long
	_, err = NewDisplayName(strings.Repeat("a", MaxNameBytes+1))
	req.ErrorIs(err, errors.ErrCapacityExceeded)

	// Given a name at the exact limit
	_, err = NewDisplayName(strings.Repeat("a", MaxNameBytes))
	req.NoError(err)
}

func TestDisplayName_CountsBytesNotRunes(t *testing.T) {
	req := require.New(t)

	// 44 runes but 110 bytes
	name := DisplayName(strings.Repeat("é", 22) + strings.Repeat("€", 22))

	req.ErrorIs(name.Validate(), errors.ErrCapacityExceeded)
}

func TestChatPayload_Validate(t *testing.T) {
	req := require.New(t)

	req.NoError(ChatPayload(strings.Repeat("x", MaxTextBytes)).Validate())
	req.ErrorIs(ChatPayload(strings.Repeat("x", 600)).Validate(), errors.ErrCapacityExceeded)
}

func TestValidate_Rejects_Invalid_UTF8(t *testing.T) {
	req := require.New(t)

	_, err := NewDisplayName("Al\xffce")
	req.ErrorIs(err, errors.ErrInvalidUTF8)
	req.ErrorIs(ChatPayload("\xc3\x28").Validate(), errors.ErrInvalidUTF8)
	req.NoError(ChatPayload("déjà vu €").Validate())
}

func TestKind_String(t *testing.T) {
	req := require.New(t)

	req.Equal("register", Register{}.Kind().String())
	req.Equal("chat", Chat{}.Kind().String())
	req.Equal("unknown(0x07)", Kind(7).String())
}
