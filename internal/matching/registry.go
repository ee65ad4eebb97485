package matching

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
)

// AutoHandoffNote is recorded on handoffs opened by a confirmation.
const AutoHandoffNote = "Auto-created from confirmed match"

// Candidate is a scored lost item proposed for a found item.
type Candidate struct {
	Item       model.LostItem `json:"lost_item"`
	Confidence int            `json:"confidence_score"`
	Reason     string         `json:"reason"`
	Confirmed  bool           `json:"confirmed"`
}

// FoundWithMatches is one row of the all-pairs report.
type FoundWithMatches struct {
	Found            model.FoundItem `json:"found_item"`
	Matches          []Candidate     `json:"matches"`
	TotalMatches     int             `json:"total_matches"`
	ConfirmedMatches int             `json:"confirmed_matches"`
}

// Registry owns match records: it proposes tentative pairs, confirms pairs
// atomically together with their handoff, and releases them again.
type Registry struct {
	db      *sql.DB
	scorer  Scorer
	queue   notify.Queue
	logger  *slog.Logger
	workers int
	locks   keyedMutex
	now     func() time.Time
}

// Options tune a Registry. Zero values select defaults.
type Options struct {
	Scorer  Scorer
	Queue   notify.Queue
	Logger  *slog.Logger
	Workers int // parallel scorers in ScoreAllPairs
}

// NewRegistry creates a registry over db.
func NewRegistry(db *sql.DB, opts Options) *Registry {
	r := &Registry{
		db:      db,
		scorer:  opts.Scorer,
		queue:   opts.Queue,
		logger:  opts.Logger,
		workers: opts.Workers,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if r.scorer == nil {
		r.scorer = KeywordScorer{}
	}
	if r.queue == nil {
		r.queue = notify.Discard
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.workers <= 0 {
		r.workers = 4
	}
	return r
}

// pool loads everything needed to rate candidates for found: the lost items
// filed alongside it and the set of lost IDs already confirmed to it.
func (r *Registry) pool(ctx context.Context, found *model.FoundItem) ([]model.LostItem, map[int64]*model.ItemMatch, error) {
	lost, err := store.ListLostItems(ctx, r.db, store.ItemFilter{
		Category:    found.Category,
		Subcategory: found.Subcategory,
	})
	if err != nil {
		return nil, nil, err
	}
	rows, err := store.ListMatches(ctx, r.db, store.MatchFilter{FoundItemID: found.ID})
	if err != nil {
		return nil, nil, err
	}
	existing := make(map[int64]*model.ItemMatch, len(rows))
	for i := range rows {
		existing[rows[i].LostItemID] = &rows[i]
	}
	return lost, existing, nil
}

func (r *Registry) getFound(ctx context.Context, id int64) (*model.FoundItem, error) {
	found, err := store.GetFoundItem(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, model.Errorf(model.ErrNotFound, "found item %d", id)
	}
	return found, nil
}

// FindCandidates returns the lost items sharing the most keywords with a found
// item, all of them when several tie. Every compatible pair with any overlap
// is recorded as a tentative match unless a row already exists for it. A found
// item that is already confirmed has no candidates.
func (r *Registry) FindCandidates(ctx context.Context, foundID int64) ([]model.LostItem, error) {
	found, err := r.getFound(ctx, foundID)
	if err != nil {
		return nil, err
	}
	if found.Keywords.Len() == 0 || found.Status != model.FoundStatusUnclaimed {
		return nil, nil
	}

	lost, existing, err := r.pool(ctx, found)
	if err != nil {
		return nil, err
	}

	var best []model.LostItem
	var fresh []int64
	maxOverlap := 0
	for _, l := range lost {
		if !Compatible(found, &l) || existing[l.ID].Confirmed() {
			continue
		}
		overlap := found.Keywords.Intersect(l.Keywords).Len()
		if overlap == 0 {
			continue
		}
		if existing[l.ID] == nil {
			fresh = append(fresh, l.ID)
		}
		switch {
		case overlap > maxOverlap:
			maxOverlap = overlap
			best = []model.LostItem{l}
		case overlap == maxOverlap:
			best = append(best, l)
		}
	}

	if err := r.recordTentative(ctx, foundID, fresh); err != nil {
		return nil, err
	}
	return best, nil
}

func (r *Registry) recordTentative(ctx context.Context, foundID int64, lostIDs []int64) error {
	if len(lostIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// The pool was read outside this transaction. Items confirmed since then
	// are skipped by the guarded insert.
	at := r.now()
	created := 0
	for _, lostID := range lostIDs {
		ok, err := store.InsertTentativeMatch(ctx, tx, lostID, foundID, model.SystemActor, at)
		if err != nil {
			return err
		}
		if ok {
			created++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tentative matches: %w", err)
	}
	if created > 0 {
		r.logger.Info("tentative matches recorded", "found_item_id", foundID, "count", created)
	}
	return nil
}

// FindWeightedCandidates scores every candidate for a found item and returns
// those scoring above zero, best first. A lost item already confirmed to this
// found item is included and flagged.
func (r *Registry) FindWeightedCandidates(ctx context.Context, foundID int64) ([]Candidate, error) {
	found, err := r.getFound(ctx, foundID)
	if err != nil {
		return nil, err
	}
	lost, existing, err := r.pool(ctx, found)
	if err != nil {
		return nil, err
	}
	confirmed := map[int64]bool{}
	for lostID, m := range existing {
		if m.Confirmed() {
			confirmed[lostID] = true
		}
	}
	return r.rank(ctx, found, lost, confirmed), nil
}

func (r *Registry) rank(ctx context.Context, found *model.FoundItem, lost []model.LostItem, confirmed map[int64]bool) []Candidate {
	var out []Candidate
	for _, l := range lost {
		isConfirmed := confirmed[l.ID]
		if !isConfirmed && !Compatible(found, &l) {
			continue
		}
		res := r.scorer.Score(ctx, found, &l)
		if res.Confidence <= 0 {
			continue
		}
		out = append(out, Candidate{Item: l, Confidence: res.Confidence, Reason: res.Reason, Confirmed: isConfirmed})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})
	return out
}

// ScoreAllPairs builds the weighted candidate list of every found item.
// Scoring runs in parallel; storage is only read up front.
func (r *Registry) ScoreAllPairs(ctx context.Context) ([]FoundWithMatches, error) {
	founds, err := store.ListFoundItems(ctx, r.db, store.ItemFilter{})
	if err != nil {
		return nil, err
	}
	lost, err := store.ListLostItems(ctx, r.db, store.ItemFilter{})
	if err != nil {
		return nil, err
	}
	rows, err := store.ListMatches(ctx, r.db, store.MatchFilter{Status: model.MatchStatusConfirmed})
	if err != nil {
		return nil, err
	}
	confirmed := map[int64]map[int64]bool{}
	for _, m := range rows {
		if confirmed[m.FoundItemID] == nil {
			confirmed[m.FoundItemID] = map[int64]bool{}
		}
		confirmed[m.FoundItemID][m.LostItemID] = true
	}

	report := make([]FoundWithMatches, len(founds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range founds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found := &founds[i]
			matches := r.rank(gctx, found, lost, confirmed[found.ID])
			entry := FoundWithMatches{Found: *found, Matches: matches, TotalMatches: len(matches)}
			for _, c := range matches {
				if c.Confirmed {
					entry.ConfirmedMatches++
				}
			}
			report[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring pairs: %w", err)
	}

	if err := store.PutSetting(ctx, r.db, store.SettingLastPairScan, r.now().Format(time.RFC3339)); err != nil {
		r.logger.Warn("recording pair scan time failed", "error", err)
	}
	return report, nil
}

// Confirm approves the pairing of lostID and foundID. Every other match row
// touching either item is removed, both items become MATCHED and a PENDING
// handoff is opened, all in one transaction. Confirming an already confirmed
// pair returns the existing match without side effects.
func (r *Registry) Confirm(ctx context.Context, lostID, foundID int64, actor string) (*model.ItemMatch, error) {
	if actor == "" {
		return nil, model.Errorf(model.ErrValidation, "actor is required to confirm a match")
	}

	unlock := r.locks.Lock(foundID)
	defer unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	lost, err := store.GetLostItem(ctx, tx, lostID)
	if err != nil {
		return nil, err
	}
	if lost == nil {
		return nil, model.Errorf(model.ErrNotFound, "lost item %d", lostID)
	}
	found, err := store.GetFoundItem(ctx, tx, foundID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, model.Errorf(model.ErrNotFound, "found item %d", foundID)
	}

	pair, err := store.GetMatchByPair(ctx, tx, lostID, foundID)
	if err != nil {
		return nil, err
	}
	if pair.Confirmed() {
		return pair, nil
	}

	if held, err := store.GetConfirmedMatchForFound(ctx, tx, foundID); err != nil {
		return nil, err
	} else if held != nil {
		return nil, model.Errorf(model.ErrConflict, "found item %d is already matched with lost item %d", foundID, held.LostItemID)
	}
	if held, err := store.GetConfirmedMatchForLost(ctx, tx, lostID); err != nil {
		return nil, err
	} else if held != nil {
		return nil, model.Errorf(model.ErrConflict, "lost item %d is already matched with found item %d", lostID, held.FoundItemID)
	}

	superseded, err := store.DeleteOtherMatches(ctx, tx, lostID, foundID)
	if err != nil {
		return nil, err
	}
	if err := store.SetLostItemStatus(ctx, tx, lostID, model.LostStatusMatched); err != nil {
		return nil, err
	}
	if err := store.SetFoundItemStatus(ctx, tx, foundID, model.FoundStatusMatched); err != nil {
		return nil, err
	}
	matchID, err := store.UpsertConfirmedMatch(ctx, tx, lostID, foundID, actor, r.now())
	if err != nil {
		if store.IsConstraintViolation(err) {
			return nil, model.Errorf(model.ErrConflict, "found item %d was matched concurrently", foundID)
		}
		return nil, err
	}
	handoff, err := store.CreateHandoff(ctx, tx, &model.Handoff{
		MatchID:     matchID,
		Status:      model.HandoffPending,
		InitiatedBy: actor,
		InitiatedAt: r.now(),
		Notes:       AutoHandoffNote,
	})
	if err != nil {
		return nil, err
	}
	match, err := store.GetMatch(ctx, tx, matchID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if store.IsConstraintViolation(err) {
			return nil, model.Errorf(model.ErrConflict, "found item %d was matched concurrently", foundID)
		}
		return nil, fmt.Errorf("committing confirmation: %w", err)
	}

	r.logger.Info("match confirmed",
		"match_id", matchID,
		"lost_item_id", lostID,
		"found_item_id", foundID,
		"handoff_id", handoff.ID,
		"superseded", superseded,
		"actor", actor,
	)

	lost.Status = model.LostStatusMatched
	found.Status = model.FoundStatusMatched
	r.publish(notify.KindMatchConfirmed, notify.Context{Lost: lost, Found: found, MatchID: matchID})

	return match, nil
}

// Release reverts a match: the lost item becomes OPEN, the found item
// UNCLAIMED, and the match row with its handoff is removed. Matches whose
// handoff completed cannot be released.
func (r *Registry) Release(ctx context.Context, matchID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	h, err := store.GetHandoffByMatch(ctx, tx, matchID)
	if err != nil {
		return err
	}
	if h != nil && h.Status == model.HandoffCompleted {
		return model.Errorf(model.ErrInvalidTransition, "match %d has a completed handoff", matchID)
	}

	m, err := store.ReleaseMatch(ctx, tx, matchID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing release: %w", err)
	}

	r.logger.Info("match released", "match_id", matchID, "lost_item_id", m.LostItemID, "found_item_id", m.FoundItemID)
	return nil
}

// CreateTentative records a manual tentative pairing. An existing row for the
// pair is returned unchanged. Items already holding a confirmed match cannot
// take new tentative rows.
func (r *Registry) CreateTentative(ctx context.Context, lostID, foundID int64, actor string) (*model.ItemMatch, error) {
	if actor == "" {
		actor = model.SystemActor
	}

	unlock := r.locks.Lock(foundID)
	defer unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if l, err := store.GetLostItem(ctx, tx, lostID); err != nil {
		return nil, err
	} else if l == nil {
		return nil, model.Errorf(model.ErrNotFound, "lost item %d", lostID)
	}
	if f, err := store.GetFoundItem(ctx, tx, foundID); err != nil {
		return nil, err
	} else if f == nil {
		return nil, model.Errorf(model.ErrNotFound, "found item %d", foundID)
	}

	existing, err := store.GetMatchByPair(ctx, tx, lostID, foundID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if held, err := store.GetConfirmedMatchForFound(ctx, tx, foundID); err != nil {
		return nil, err
	} else if held != nil {
		return nil, model.Errorf(model.ErrConflict, "found item %d is already matched", foundID)
	}
	if held, err := store.GetConfirmedMatchForLost(ctx, tx, lostID); err != nil {
		return nil, err
	} else if held != nil {
		return nil, model.Errorf(model.ErrConflict, "lost item %d is already matched", lostID)
	}

	if _, err := store.InsertTentativeMatch(ctx, tx, lostID, foundID, actor, r.now()); err != nil {
		return nil, err
	}
	m, err := store.GetMatchByPair(ctx, tx, lostID, foundID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, model.Errorf(model.ErrConflict, "lost item %d or found item %d is no longer open", lostID, foundID)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing tentative match: %w", err)
	}
	return m, nil
}

// ListMatches returns match rows for audit display.
func (r *Registry) ListMatches(ctx context.Context, filter store.MatchFilter) ([]model.ItemMatch, error) {
	return store.ListMatches(ctx, r.db, filter)
}

func (r *Registry) publish(kind notify.Kind, c notify.Context) {
	events, err := notify.Participants(kind, c)
	if err != nil {
		r.logger.Error("rendering notification failed", "kind", kind, "error", err)
		return
	}
	r.queue.Enqueue(events...)
}
