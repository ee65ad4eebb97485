package model

import (
	"encoding/json"
	"slices"
	"strings"
)

// KeywordSet is a set of normalized keyword tokens.
type KeywordSet map[string]struct{}

// NewKeywordSet builds a set from the given tokens, skipping blanks.
func NewKeywordSet(tokens ...string) KeywordSet {
	s := make(KeywordSet, len(tokens))
	for _, t := range tokens {
		s.Add(t)
	}
	return s
}

// ParseKeywordSet decodes the comma-joined storage form.
func ParseKeywordSet(stored string) KeywordSet {
	if strings.TrimSpace(stored) == "" {
		return KeywordSet{}
	}
	return NewKeywordSet(strings.Split(stored, ",")...)
}

// Add inserts a token. Blank tokens are ignored.
func (s KeywordSet) Add(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	s[token] = struct{}{}
}

// Has reports whether the token is in the set.
func (s KeywordSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Len returns the number of tokens.
func (s KeywordSet) Len() int { return len(s) }

// Intersect returns the tokens present in both sets.
func (s KeywordSet) Intersect(other KeywordSet) KeywordSet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := KeywordSet{}
	for t := range small {
		if large.Has(t) {
			out[t] = struct{}{}
		}
	}
	return out
}

// Sorted returns the tokens in lexical order.
func (s KeywordSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// String returns the comma-joined storage form. Tokens are sorted so the
// stored value is stable.
func (s KeywordSet) String() string {
	return strings.Join(s.Sorted(), ",")
}

// MarshalJSON encodes the set as a sorted array.
func (s KeywordSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of tokens.
func (s *KeywordSet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	*s = NewKeywordSet(tokens...)
	return nil
}
