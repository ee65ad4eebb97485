package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/lostfound/internal/config"
	"github.com/erazemk/lostfound/internal/handoff"
	"github.com/erazemk/lostfound/internal/keywords"
	"github.com/erazemk/lostfound/internal/matching"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/taxonomy"
)

// services bundles the components built from configuration.
type services struct {
	extractor *keywords.Extractor
	taxonomy  *taxonomy.Taxonomy
	registry  *matching.Registry
	workflow  *handoff.Workflow
}

func buildServices(ctx context.Context, cfg *config.Config, database *sql.DB, queue notify.Queue) (*services, error) {
	extractor, err := buildExtractor(cfg.Matching)
	if err != nil {
		return nil, err
	}

	tax := taxonomy.Default()
	if cfg.Matching.CategoriesFile != "" {
		if tax, err = taxonomy.Load(cfg.Matching.CategoriesFile); err != nil {
			return nil, fmt.Errorf("loading categories: %w", err)
		}
	}

	scorer, err := buildScorer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &services{
		extractor: extractor,
		taxonomy:  tax,
		registry: matching.NewRegistry(database, matching.Options{
			Scorer:  scorer,
			Queue:   queue,
			Logger:  slog.Default(),
			Workers: cfg.Matching.Workers,
		}),
		workflow: handoff.NewWorkflow(database, queue, slog.Default()),
	}, nil
}

func buildExtractor(m config.Matching) (*keywords.Extractor, error) {
	stop := keywords.DefaultStopWords()
	if m.StopWordsFile != "" {
		var err error
		if stop, err = keywords.LoadStopWords(m.StopWordsFile); err != nil {
			return nil, fmt.Errorf("loading stop-words: %w", err)
		}
	}

	var enrichers []keywords.TokenEnricher
	if m.VocabularyFile != "" {
		vocabulary, err := keywords.LoadVocabulary(m.VocabularyFile)
		if err != nil {
			return nil, err
		}
		enrichers = append(enrichers, keywords.NewDictionaryCorrector(vocabulary, nil))
	}
	if m.SynonymsFile != "" {
		synonyms, err := keywords.LoadSynonyms(m.SynonymsFile)
		if err != nil {
			return nil, err
		}
		enrichers = append(enrichers, synonyms)
	}
	return keywords.NewExtractor(stop, slog.Default(), enrichers...), nil
}

func buildScorer(ctx context.Context, cfg *config.Config) (matching.Scorer, error) {
	if cfg.Matching.Scorer != config.ScorerGemini {
		return matching.KeywordScorer{}, nil
	}
	scorer, err := matching.NewGeminiScorer(ctx, matching.GeminiConfig{
		APIKey:       cfg.Gemini.APIKey,
		Model:        cfg.Gemini.Model,
		Instructions: cfg.Gemini.Instructions,
		Timeout:      cfg.GeminiTimeout(),
	}, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("creating gemini scorer: %w", err)
	}
	return scorer, nil
}

// buildSink returns the delivery target selected in the config.
func buildSink(n config.Notifications, timeout time.Duration) notify.Sink {
	switch n.Sink {
	case config.SinkSMTP:
		return notify.NewSMTPSink(n.SMTPAddr, n.SMTPFrom, n.SMTPUsername, n.SMTPPassword)
	case config.SinkWebhook:
		return notify.NewWebhookSink(n.WebhookURL, timeout)
	case config.SinkNone:
		return nil
	default:
		return notify.LogSink{Logger: slog.Default()}
	}
}
