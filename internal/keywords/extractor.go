// Package keywords turns free-text item descriptions into normalized keyword
// sets.
//
// Extraction folds case, strips accents, splits on anything that is not a
// letter, digit or underscore, and drops tokens of two runes or fewer as well
// as stop-words. Each surviving token is then passed through the configured
// TokenEnricher chain, which may correct it and add synonyms.
package keywords

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/erazemk/lostfound/internal/model"
)

// MinTokenLength is the shortest token, in runes, kept by the extractor.
const MinTokenLength = 3

var splitPattern = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// Extractor derives keyword sets from item text. It is safe for concurrent use
// as long as its enrichers are.
type Extractor struct {
	stop      StopWords
	enrichers []TokenEnricher
	logger    *slog.Logger
}

// NewExtractor creates an extractor. A nil stop-word set means none; with no
// enrichers tokens pass through unchanged.
func NewExtractor(stop StopWords, logger *slog.Logger, enrichers ...TokenEnricher) *Extractor {
	if stop == nil {
		stop = StopWords{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{stop: stop, enrichers: enrichers, logger: logger}
}

// Extract returns the keyword set of the given fields. Blank fields are skipped.
func (e *Extractor) Extract(fields ...string) model.KeywordSet {
	set := model.KeywordSet{}
	for _, field := range fields {
		if strings.TrimSpace(field) == "" {
			continue
		}
		for _, token := range e.tokens(field) {
			e.addEnriched(set, token)
		}
	}
	return set
}

// tokens splits normalized text and applies the length and stop-word filters.
func (e *Extractor) tokens(text string) []string {
	var out []string
	for _, token := range splitPattern.Split(normalize(text), -1) {
		if e.keep(token) {
			out = append(out, token)
		}
	}
	return out
}

func (e *Extractor) keep(token string) bool {
	return utf8.RuneCountInString(token) >= MinTokenLength && !e.stop.Has(token)
}

func (e *Extractor) addEnriched(set model.KeywordSet, token string) {
	for _, en := range e.enrichers {
		if corrected := e.correct(en, token); corrected != "" {
			token = corrected
		}
	}
	set.Add(token)

	for _, en := range e.enrichers {
		for _, synonym := range e.expand(en, token) {
			// Multi-word synonyms contribute each of their words.
			for _, t := range e.tokens(synonym) {
				set.Add(t)
			}
		}
	}
}

func (e *Extractor) correct(en TokenEnricher, token string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("keyword correction failed", "token", token, "panic", r)
			out = token
		}
	}()
	return normalize(en.Correct(token))
}

func (e *Extractor) expand(en TokenEnricher, token string) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("keyword expansion failed", "token", token, "panic", r)
			out = nil
		}
	}()
	return en.Expand(token)
}

// normalize folds case and strips combining marks. Casers are stateful, so a
// fresh chain is built per call.
func normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return strings.TrimSpace(out)
}
