package moderation

import (
	"bufio"
	"embed"
	"fmt"
	"path"
	"strings"

	"chat-direct/errors"
)

//go:embed censored/*
var censoredFolder embed.FS

// Wordlist aggregates the embedded censored vocabularies.
type Wordlist struct {
	Languages []string
	Words     []string
}

// LoadWordlist reads every file under the embedded censored directory.
// One word per line; blank lines and '#' comments are skipped. The file
// name (without extension) is recorded as the language code.
func LoadWordlist() (Wordlist, error) {
	entries, err := censoredFolder.ReadDir("censored")
	if err != nil {
		return Wordlist{}, err
	}

	var result Wordlist
	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			return Wordlist{}, errors.ErrOnlyCensoredFiles
		}
		file, err := censoredFolder.Open(path.Join("censored", entry.Name()))
		if err != nil {
			return Wordlist{}, err
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			result.Words = append(result.Words, word)
		}
		if err := scanner.Err(); err != nil {
			_ = file.Close()
			return Wordlist{}, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		_ = file.Close()

		lang := strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))
		result.Languages = append(result.Languages, lang)
	}

	if len(result.Words) == 0 {
		return Wordlist{}, errors.ErrEmptyWords
	}
	return result, nil
}
