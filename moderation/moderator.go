// Package moderation masks blocked words in chat text before the relay
// broadcasts it. Matching ignores case, punctuation, spacing and common
// leet substitutions, while the masked output keeps the original layout.
package moderation

import (
	"chat-relay/domain"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

var leet = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
}

type Moderator struct {
	matcher *goahocorasick.Machine
	mask    rune
}

// NewModerator builds the automaton once; Censor is then safe to call from
// a single goroutine per Moderator. The mask must be a single byte so that a
// censored text is never longer than the original.
func NewModerator(words []string, mask rune) (*Moderator, error) {
	if utf8.RuneLen(mask) != 1 {
		return nil, fmt.Errorf("mask %q must be a single byte character", mask)
	}
	patterns := lo.FilterMap(words, func(w string, _ int) ([]rune, bool) {
		folded, _ := fold([]rune(strings.TrimSpace(w)))
		return folded, len(folded) > 0
	})
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no blocked words to build a moderator from")
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("building moderation automaton: %w", err)
	}
	return &Moderator{matcher: m, mask: mask}, nil
}

// ParseWords splits a comma separated list, dropping blanks.
func ParseWords(csv string) []string {
	return lo.Compact(lo.Map(strings.Split(csv, ","), func(w string, _ int) string {
		return strings.TrimSpace(w)
	}))
}

// Censor replaces every rune of a blocked word, including the noise runes
// between its letters, with the mask rune.
func (m *Moderator) Censor(text domain.ChatPayload) domain.ChatPayload {
	original := []rune(string(text))
	folded, positions := fold(original)
	if len(folded) == 0 {
		return text
	}
	hits := m.matcher.MultiPatternSearch(folded, false)
	if len(hits) == 0 {
		return text
	}
	for _, hit := range hits {
		end := hit.Pos + len(hit.Word)
		if hit.Pos < 0 || end > len(positions) {
			continue
		}
		for i := positions[hit.Pos]; i <= positions[end-1]; i++ {
			original[i] = m.mask
		}
	}
	return domain.ChatPayload(original)
}

// fold lowercases, undoes leet substitutions and drops noise runes. It also
// returns, for each kept rune, its index in the input.
func fold(in []rune) ([]rune, []int) {
	out := make([]rune, 0, len(in))
	positions := make([]int, 0, len(in))
	for i, r := range in {
		if plain, ok := leet[r]; ok {
			r = plain
		}
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
		positions = append(positions, i)
	}
	return out, positions
}
