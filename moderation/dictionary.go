package moderation

import (
	"bufio"
	"bytes"
	"chat-relay/errors"
	"io/fs"
	"path"
	"strings"

	"github.com/samber/lo"
)

// Dictionary is the merged content of a directory of word lists.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDictionary reads every .txt file of dir in fsys, one word per line.
// The file name without extension names the language ("fr.txt" is "fr").
func LoadDictionary(fsys fs.FS, dir string) (Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return Dictionary{}, err
	}

	var dict Dictionary
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		dict.Languages = append(dict.Languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return Dictionary{}, err
		}
		// Scanner copes with \r\n
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				dict.Words = append(dict.Words, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return Dictionary{}, err
		}
	}

	dict.Words = lo.Uniq(dict.Words)
	if len(dict.Words) == 0 {
		return Dictionary{}, errors.ErrEmptyWords
	}
	return dict, nil
}
