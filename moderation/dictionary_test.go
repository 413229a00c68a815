package moderation

import (
	"chat-relay/errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoadDictionary(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"words/en.txt":     {Data: []byte("darn\r\nheck\n\n")},
		"words/fr.txt":     {Data: []byte("  zut \nheck\n")},
		"words/README.md":  {Data: []byte("not a list")},
		"words/old/de.txt": {Data: []byte("mist")},
	}

	dict, err := LoadDictionary(fsys, "words")

	req.NoError(err)
	req.Equal([]string{"en", "fr"}, dict.Languages)
	req.ElementsMatch([]string{"darn", "heck", "zut"}, dict.Words)
}

func TestLoadDictionary_Empty(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{"words/en.txt": {Data: []byte("\n  \n")}}

	_, err := LoadDictionary(fsys, "words")

	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestLoadDictionary_Missing_Dir(t *testing.T) {
	_, err := LoadDictionary(fstest.MapFS{}, "nowhere")
	require.Error(t, err)
}
