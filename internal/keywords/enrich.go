package keywords

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// TokenEnricher optionally corrects a token and proposes synonyms for it.
// Implementations are best-effort: Correct returns its input when it has
// nothing better, and Expand returns nil.
type TokenEnricher interface {
	Correct(token string) string
	Expand(token string) []string
}

// NoopEnricher leaves tokens unchanged.
type NoopEnricher struct{}

func (NoopEnricher) Correct(token string) string  { return token }
func (NoopEnricher) Expand(token string) []string { return nil }

// DictionaryCorrector maps tokens onto a known vocabulary. A token is
// corrected through the explicit misspelling table first, then to the single
// closest vocabulary word within edit distance one. Ambiguous tokens resolve
// to the alphabetically first candidate.
type DictionaryCorrector struct {
	vocabulary   map[string]struct{}
	sorted       []string
	misspellings map[string]string
}

// NewDictionaryCorrector builds a corrector from a vocabulary and a table of
// known misspellings (misspelling -> canonical).
func NewDictionaryCorrector(vocabulary []string, misspellings map[string]string) *DictionaryCorrector {
	d := &DictionaryCorrector{
		vocabulary:   make(map[string]struct{}, len(vocabulary)),
		misspellings: make(map[string]string, len(misspellings)),
	}
	for _, w := range vocabulary {
		w = normalize(w)
		if w == "" {
			continue
		}
		if _, dup := d.vocabulary[w]; !dup {
			d.vocabulary[w] = struct{}{}
			d.sorted = append(d.sorted, w)
		}
	}
	slices.Sort(d.sorted)
	for from, to := range misspellings {
		d.misspellings[normalize(from)] = normalize(to)
	}
	return d
}

// LoadVocabulary reads a word-per-line vocabulary file for a DictionaryCorrector.
func LoadVocabulary(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary %s: %w", path, err)
	}
	return words, nil
}

func (d *DictionaryCorrector) Correct(token string) string {
	if _, ok := d.vocabulary[token]; ok {
		return token
	}
	if fixed, ok := d.misspellings[token]; ok {
		return fixed
	}
	// Short tokens have too many neighbours to correct safely.
	if len([]rune(token)) < 4 {
		return token
	}
	for _, w := range d.sorted {
		if withinOneEdit(token, w) {
			return w
		}
	}
	return token
}

func (d *DictionaryCorrector) Expand(string) []string { return nil }

// withinOneEdit reports whether a and b differ by at most one insertion,
// deletion or substitution.
func withinOneEdit(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(rb)-len(ra) > 1 {
		return false
	}
	i, j, edits := 0, 0, 0
	for i < len(ra) && j < len(rb) {
		if ra[i] == rb[j] {
			i++
			j++
			continue
		}
		edits++
		if edits > 1 {
			return false
		}
		if len(ra) == len(rb) {
			i++
		}
		j++
	}
	return edits+(len(rb)-j)-(len(ra)-i) <= 1
}

// SynonymExpander adds every other member of a token's synonym groups.
type SynonymExpander struct {
	groups map[string][]string
}

// NewSynonymExpander builds an expander from groups of interchangeable words.
func NewSynonymExpander(groups [][]string) *SynonymExpander {
	s := &SynonymExpander{groups: map[string][]string{}}
	for _, group := range groups {
		var members []string
		for _, w := range group {
			if w = normalize(w); w != "" {
				members = append(members, w)
			}
		}
		for _, w := range members {
			for _, other := range members {
				if other != w && !slices.Contains(s.groups[w], other) {
					s.groups[w] = append(s.groups[w], other)
				}
			}
		}
	}
	return s
}

type synonymFile struct {
	Groups [][]string `yaml:"groups"`
}

// LoadSynonyms reads synonym groups from a YAML file of the form
//
//	groups:
//	  - [phone, cellphone, smartphone]
func LoadSynonyms(path string) (*SynonymExpander, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading synonyms: %w", err)
	}
	var file synonymFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing synonyms %s: %w", path, err)
	}
	return NewSynonymExpander(file.Groups), nil
}

func (s *SynonymExpander) Correct(token string) string { return token }

func (s *SynonymExpander) Expand(token string) []string {
	return slices.Clone(s.groups[token])
}
