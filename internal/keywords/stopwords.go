package keywords

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed stopwords.txt
var defaultStopWords string

// StopWords is a set of normalized tokens dropped during extraction.
type StopWords map[string]struct{}

// DefaultStopWords returns the built-in English list.
func DefaultStopWords() StopWords {
	sw, err := ReadStopWords(strings.NewReader(defaultStopWords))
	if err != nil {
		// The embedded list is read from memory and cannot fail.
		panic(err)
	}
	return sw
}

// LoadStopWords reads a stop-word list from path. An empty path yields the
// built-in list.
func LoadStopWords(path string) (StopWords, error) {
	if path == "" {
		return DefaultStopWords(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stop-words: %w", err)
	}
	defer f.Close()

	sw, err := ReadStopWords(f)
	if err != nil {
		return nil, fmt.Errorf("reading stop-words %s: %w", path, err)
	}
	return sw, nil
}

// ReadStopWords parses one word per line, skipping blanks and # comments.
// Words are normalized the same way extracted tokens are.
func ReadStopWords(r io.Reader) (StopWords, error) {
	sw := StopWords{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sw[normalize(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sw, nil
}

// Has reports whether token is a stop-word.
func (s StopWords) Has(token string) bool {
	_, ok := s[token]
	return ok
}
