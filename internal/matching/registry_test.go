package matching

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/lostfound/internal/db"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
)

type fixture struct {
	db       *sql.DB
	registry *Registry
	sent     *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := &notify.Recorder{}
	return &fixture{
		db:   database,
		sent: rec,
		registry: NewRegistry(database, Options{
			Queue:  notify.SyncDispatcher{Sink: rec, Logger: logger},
			Logger: logger,
		}),
	}
}

func (f *fixture) lost(t *testing.T, title string, keywords ...string) *model.LostItem {
	t.Helper()
	item, err := store.CreateLostItem(context.Background(), f.db, &model.LostItem{
		Title: title, Category: "Personal", Subcategory: "Wallet",
		OwnerName: "Ana", OwnerEmail: "ana@campus.test",
		DateLost: date("2024-03-01"),
		Keywords: model.NewKeywordSet(keywords...),
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) found(t *testing.T, title string, keywords ...string) *model.FoundItem {
	t.Helper()
	item, err := store.CreateFoundItem(context.Background(), f.db, &model.FoundItem{
		Title: title, Category: "Personal", Subcategory: "Wallet",
		ReporterName: "Ben", ReporterEmail: "ben@campus.test",
		DateFound: date("2024-03-03"),
		Keywords:  model.NewKeywordSet(keywords...),
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) matches(t *testing.T, filter store.MatchFilter) []model.ItemMatch {
	t.Helper()
	rows, err := store.ListMatches(context.Background(), f.db, filter)
	require.NoError(t, err)
	return rows
}

func TestFindCandidatesReturnsTiesAndRecordsTentatives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	found := f.found(t, "Wallet", "blue", "wallet", "leather")
	a := f.lost(t, "A", "wallet", "leather")
	b := f.lost(t, "B", "leather", "blue", "cards")
	c := f.lost(t, "C", "wallet")
	f.lost(t, "Disjoint", "umbrella")

	got, err := f.registry.FindCandidates(ctx, found.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)

	rows := f.matches(t, store.MatchFilter{FoundItemID: found.ID})
	require.Len(t, rows, 3, "one tentative row per overlapping pair")
	for _, m := range rows {
		assert.Equal(t, model.MatchStatusTentative, m.Status)
		assert.Equal(t, model.SystemActor, m.MatchedBy)
		assert.Contains(t, []int64{a.ID, b.ID, c.ID}, m.LostItemID)
	}

	// Repeating the search does not duplicate rows.
	_, err = f.registry.FindCandidates(ctx, found.ID)
	require.NoError(t, err)
	assert.Len(t, f.matches(t, store.MatchFilter{FoundItemID: found.ID}), 3)
}

func TestFindCandidatesDisjointCreatesNoRows(t *testing.T) {
	f := newFixture(t)

	found := f.found(t, "Wallet", "blue", "wallet")
	f.lost(t, "Umbrella", "umbrella", "black")

	got, err := f.registry.FindCandidates(context.Background(), found.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, f.matches(t, store.MatchFilter{}))
}

func TestFindCandidatesUnknownFoundItem(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.FindCandidates(context.Background(), 42)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFindWeightedCandidatesRanksAndFlagsConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	found := f.found(t, "Wallet", "blue", "wallet", "leather")
	weak := f.lost(t, "Weak", "wallet", "red", "zip", "coins", "cards")
	strong := f.lost(t, "Strong", "wallet", "leather", "brown")
	f.lost(t, "Disjoint", "umbrella")

	got, err := f.registry.FindWeightedCandidates(ctx, found.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, strong.ID, got[0].Item.ID)
	assert.Equal(t, 77, got[0].Confidence)
	assert.Equal(t, weak.ID, got[1].Item.ID)
	assert.Less(t, got[1].Confidence, got[0].Confidence)
	assert.Empty(t, f.matches(t, store.MatchFilter{}), "weighted search does not persist rows")

	_, err = f.registry.Confirm(ctx, strong.ID, found.ID, "staff")
	require.NoError(t, err)

	got, err = f.registry.FindWeightedCandidates(ctx, found.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, strong.ID, got[0].Item.ID)
	assert.True(t, got[0].Confirmed)
}

func TestConfirmTransitionsItemsAndOpensHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	found := f.found(t, "Wallet", "blue", "wallet", "leather")
	lost := f.lost(t, "Brown wallet", "wallet", "leather", "brown")
	other := f.lost(t, "Other wallet", "wallet")
	_, err := f.registry.FindCandidates(ctx, found.ID)
	require.NoError(t, err)
	require.Len(t, f.matches(t, store.MatchFilter{}), 2)

	m, err := f.registry.Confirm(ctx, lost.ID, found.ID, "staff")
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusConfirmed, m.Status)
	assert.Equal(t, "staff", m.MatchedBy)

	gotLost, _ := store.GetLostItem(ctx, f.db, lost.ID)
	gotFound, _ := store.GetFoundItem(ctx, f.db, found.ID)
	assert.Equal(t, model.LostStatusMatched, gotLost.Status)
	assert.Equal(t, model.FoundStatusMatched, gotFound.Status)

	rows := f.matches(t, store.MatchFilter{})
	require.Len(t, rows, 1, "superseded tentative rows are removed")
	assert.Equal(t, m.ID, rows[0].ID)
	assert.Empty(t, f.matches(t, store.MatchFilter{LostItemID: other.ID}))

	handoffs, err := store.ListHandoffs(ctx, f.db, store.HandoffFilter{})
	require.NoError(t, err)
	require.Len(t, handoffs, 1)
	assert.Equal(t, m.ID, handoffs[0].MatchID)
	assert.Equal(t, model.HandoffPending, handoffs[0].Status)
	assert.Equal(t, AutoHandoffNote, handoffs[0].Notes)

	assert.Equal(t, []notify.Kind{notify.KindMatchConfirmed, notify.KindMatchConfirmed}, f.sent.Kinds())
	recipients := []string{f.sent.Events()[0].Recipient, f.sent.Events()[1].Recipient}
	assert.ElementsMatch(t, []string{"ana@campus.test", "ben@campus.test"}, recipients)
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	found := f.found(t, "Wallet", "wallet")
	lost := f.lost(t, "Wallet", "wallet")

	first, err := f.registry.Confirm(ctx, lost.ID, found.ID, "staff")
	require.NoError(t, err)
	f.sent.Reset()

	second, err := f.registry.Confirm(ctx, lost.ID, found.ID, "other-staff")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "staff", second.MatchedBy)

	assert.Len(t, f.matches(t, store.MatchFilter{Status: model.MatchStatusConfirmed}), 1)
	handoffs, _ := store.ListHandoffs(ctx, f.db, store.HandoffFilter{})
	assert.Len(t, handoffs, 1)
	assert.Empty(t, f.sent.Events())
}

func TestConfirmConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	found := f.found(t, "Wallet", "wallet")
	otherFound := f.found(t, "Purse", "wallet")
	lost := f.lost(t, "Wallet", "wallet")
	otherLost := f.lost(t, "Other", "wallet")

	_, err := f.registry.Confirm(ctx, lost.ID, found.ID, "staff")
	require.NoError(t, err)

	_, err = f.registry.Confirm(ctx, otherLost.ID, found.ID, "staff")
	assert.ErrorIs(t, err, model.ErrConflict, "found item already matched")

	_, err = f.registry.Confirm(ctx, lost.ID, otherFound.ID, "staff")
	assert.ErrorIs(t, err, model.ErrConflict, "lost item already matched")

	gotOther, _ := store.GetLostItem(ctx, f.db, otherLost.ID)
	assert.Equal(t, model.LostStatusOpen, gotOther.Status, "rejected confirm leaves state unchanged")
}

func TestConfirmMissingItems(t *testing.T) {
	f := newFixture(t)
	found := f.found(t, "Wallet", "wallet")

	_, err := f.registry.Confirm(context.Background(), 999, found.ID, "staff")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.registry.Confirm(context.Background(), 1, found.ID, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestConcurrentConfirmsOnOneFoundItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	found := f.found(t, "Wallet", "wallet")
	var lostIDs []int64
	for _, title := range []string{"A", "B", "C", "D"} {
		lostIDs = append(lostIDs, f.lost(t, title, "wallet").ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(lostIDs))
	for i, id := range lostIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.registry.Confirm(ctx, id, found.ID, "staff")
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, model.ErrConflict), "loser should get Conflict, got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.matches(t, store.MatchFilter{FoundItemID: found.ID, Status: model.MatchStatusConfirmed}), 1)
}

func TestReleaseFreesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	found := f.found(t, "Wallet", "wallet")
	lost := f.lost(t, "Wallet", "wallet")
	m, err := f.registry.Confirm(ctx, lost.ID, found.ID, "staff")
	require.NoError(t, err)

	require.NoError(t, f.registry.Release(ctx, m.ID))

	gotLost, _ := store.GetLostItem(ctx, f.db, lost.ID)
	gotFound, _ := store.GetFoundItem(ctx, f.db, found.ID)
	assert.Equal(t, model.LostStatusOpen, gotLost.Status)
	assert.Equal(t, model.FoundStatusUnclaimed, gotFound.Status)
	assert.Empty(t, f.matches(t, store.MatchFilter{}))

	assert.ErrorIs(t, f.registry.Release(ctx, m.ID), model.ErrNotFound)
}

func TestCreateTentative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	found := f.found(t, "Wallet", "wallet")
	lost := f.lost(t, "Scarf", "scarf")

	m, err := f.registry.CreateTentative(ctx, lost.ID, found.ID, "staff")
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusTentative, m.Status)

	again, err := f.registry.CreateTentative(ctx, lost.ID, found.ID, "staff")
	require.NoError(t, err)
	assert.Equal(t, m.ID, again.ID)

	other := f.lost(t, "Wallet", "wallet")
	_, err = f.registry.Confirm(ctx, other.ID, found.ID, "staff")
	require.NoError(t, err)

	_, err = f.registry.CreateTentative(ctx, lost.ID, found.ID, "staff")
	assert.ErrorIs(t, err, model.ErrConflict, "confirmation removed the old row and locks the found item")
}

func TestScoreAllPairs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wallet := f.found(t, "Wallet", "blue", "wallet", "leather")
	keys := f.found(t, "Keys", "keys", "ring")
	brown := f.lost(t, "Brown wallet", "wallet", "leather", "brown")
	f.lost(t, "Red wallet", "wallet", "red")

	_, err := f.registry.Confirm(ctx, brown.ID, wallet.ID, "staff")
	require.NoError(t, err)

	report, err := f.registry.ScoreAllPairs(ctx)
	require.NoError(t, err)
	require.Len(t, report, 2)

	assert.Equal(t, wallet.ID, report[0].Found.ID)
	assert.Equal(t, 2, report[0].TotalMatches)
	assert.Equal(t, 1, report[0].ConfirmedMatches)
	assert.Equal(t, brown.ID, report[0].Matches[0].Item.ID)

	assert.Equal(t, keys.ID, report[1].Found.ID)
	assert.Zero(t, report[1].TotalMatches)

	_, ok, err := store.GetSetting(ctx, f.db, store.SettingLastPairScan)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStaleCandidateSkippedAfterConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	searched := f.found(t, "Wallet", "wallet")
	other := f.found(t, "Black wallet", "wallet")
	lost := f.lost(t, "Wallet", "wallet")

	// The pool for searched still lists lost, but it was confirmed to other
	// before the tentative rows are written.
	_, err := f.registry.Confirm(ctx, lost.ID, other.ID, "staff")
	require.NoError(t, err)
	require.NoError(t, f.registry.recordTentative(ctx, searched.ID, []int64{lost.ID}))

	assert.Empty(t, f.matches(t, store.MatchFilter{FoundItemID: searched.ID}))
	rows := f.matches(t, store.MatchFilter{LostItemID: lost.ID})
	require.Len(t, rows, 1)
	assert.Equal(t, model.MatchStatusConfirmed, rows[0].Status)

	_, err = f.registry.CreateTentative(ctx, lost.ID, searched.ID, "staff")
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestFindCandidatesRacingConfirm(t *testing.T) {
	ctx := context.Background()
	for trial := 0; trial < 5; trial++ {
		f := newFixture(t)
		searched := f.found(t, "Wallet", "wallet")
		other := f.found(t, "Black wallet", "wallet")
		lost := f.lost(t, "Wallet", "wallet")
		for i := 0; i < 20; i++ {
			f.lost(t, "Noise", "wallet")
		}

		var wg sync.WaitGroup
		var findErr, confirmErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, findErr = f.registry.FindCandidates(ctx, searched.ID)
		}()
		go func() {
			defer wg.Done()
			_, confirmErr = f.registry.Confirm(ctx, lost.ID, other.ID, "staff")
		}()
		wg.Wait()
		require.NoError(t, findErr)
		require.NoError(t, confirmErr)

		rows := f.matches(t, store.MatchFilter{LostItemID: lost.ID})
		require.Len(t, rows, 1, "trial %d: confirmed lost item holds no other rows", trial)
		assert.Equal(t, model.MatchStatusConfirmed, rows[0].Status)
		assert.Equal(t, other.ID, rows[0].FoundItemID)

		gotLost, err := store.GetLostItem(ctx, f.db, lost.ID)
		require.NoError(t, err)
		assert.Equal(t, model.LostStatusMatched, gotLost.Status)
	}
}

func TestCandidatesFoldUnicodeFiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lost, err := store.CreateLostItem(ctx, f.db, &model.LostItem{
		Title: "Prijenosnik", Category: "Électronique", Subcategory: "Ordinateur",
		OwnerEmail: "ana@campus.test",
		Keywords:   model.NewKeywordSet("laptop", "silver"),
	})
	require.NoError(t, err)
	found, err := store.CreateFoundItem(ctx, f.db, &model.FoundItem{
		Title: "Laptop", Category: "électronique", Subcategory: "ORDINATEUR",
		ReporterEmail: "ben@campus.test",
		Keywords:      model.NewKeywordSet("laptop"),
	})
	require.NoError(t, err)

	got, err := f.registry.FindCandidates(ctx, found.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, lost.ID, got[0].ID)

	weighted, err := f.registry.FindWeightedCandidates(ctx, found.ID)
	require.NoError(t, err)
	require.Len(t, weighted, 1)
	assert.Equal(t, lost.ID, weighted[0].Item.ID)
}
