package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/JakeFAU/engine-proxy/internal/engine"
	"github.com/JakeFAU/engine-proxy/internal/storage/memory"
	"github.com/JakeFAU/engine-proxy/internal/storage/sqlite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// tickClock advances one second per call so creation order is observable.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newService(t *testing.T) (*Service, *memory.EngineStore) {
	t.Helper()
	store := memory.NewEngineStore()
	return NewService(store, &tickClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop()), store
}

func payload(shortcut string, isDefault bool) engine.Payload {
	return engine.Payload{
		Shortcut:    shortcut,
		DisplayName: "Engine " + shortcut,
		URLTemplate: "https://" + shortcut + ".example.com/?q={query}",
		IsDefault:   &isDefault,
	}
}

func boolPtr(b bool) *bool { return &b }
func strPtr(s string) *string { return &s }

func defaults(t *testing.T, svc *Service) []engine.Engine {
	t.Helper()
	list, err := svc.List(context.Background())
	require.NoError(t, err)
	var out []engine.Engine
	for _, e := range list {
		if e.IsDefault {
			out = append(out, e)
		}
	}
	return out
}

func requireInvariant(t *testing.T, svc *Service) {
	t.Helper()
	list, err := svc.List(context.Background())
	require.NoError(t, err)
	seen := make(map[string]bool, len(list))
	count := 0
	for _, e := range list {
		require.False(t, seen[e.Shortcut], "duplicate shortcut %q", e.Shortcut)
		seen[e.Shortcut] = true
		if e.IsDefault {
			count++
		}
	}
	if len(list) == 0 {
		require.Zero(t, count)
		return
	}
	require.Equal(t, 1, count, "expected exactly one default in %+v", list)
}

func TestCreateFirstEngineBecomesDefault(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	created, err := svc.Create(context.Background(), payload("g", false))
	require.NoError(t, err)
	require.True(t, created.IsDefault)
	requireInvariant(t, svc)
}

func TestCreateDefaultClearsPrevious(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, payload("g", true))
	require.NoError(t, err)
	yt, err := svc.Create(ctx, payload("yt", true))
	require.NoError(t, err)

	defs := defaults(t, svc)
	require.Len(t, defs, 1)
	require.Equal(t, yt.ID, defs[0].ID)
}

func TestCreateRoundTripNormalizesShortcut(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, payload("  MixedCase ", false))
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, engine.NormalizeShortcut("  MixedCase "), list[0].Shortcut)
}

func TestCreateRejectsDuplicateAndInvalid(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, payload("yt", false))
	require.NoError(t, err)

	_, err = svc.Create(ctx, payload("YT", false))
	require.ErrorIs(t, err, engine.ErrConflict)

	_, err = svc.Create(ctx, payload("x", false))
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestUpdateSetsDefault(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	g, err := svc.Create(ctx, payload("g", true))
	require.NoError(t, err)
	yt, err := svc.Create(ctx, payload("yt", false))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, yt.ID, engine.Patch{IsDefault: boolPtr(true), DisplayName: strPtr("YouTube")})
	require.NoError(t, err)
	require.True(t, updated.IsDefault)
	require.Equal(t, "YouTube", updated.DisplayName)

	got, err := svc.Get(ctx, g.ID)
	require.NoError(t, err)
	require.False(t, got.IsDefault)
	requireInvariant(t, svc)
}

func TestUpdateUnsetDefaultPromotesOldest(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	oldest, err := svc.Create(ctx, payload("aa", false))
	require.NoError(t, err)
	def, err := svc.Create(ctx, payload("bb", true))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, def.ID, engine.Patch{IsDefault: boolPtr(false)})
	require.NoError(t, err)
	require.False(t, updated.IsDefault)

	defs := defaults(t, svc)
	require.Len(t, defs, 1)
	require.Equal(t, oldest.ID, defs[0].ID)
}

func TestUpdateErrors(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, payload("aa", false))
	require.NoError(t, err)
	bb, err := svc.Create(ctx, payload("bb", false))
	require.NoError(t, err)

	_, err = svc.Update(ctx, bb.ID, engine.Patch{Shortcut: strPtr("AA")})
	require.ErrorIs(t, err, engine.ErrConflict)

	_, err = svc.Update(ctx, 999, engine.Patch{DisplayName: strPtr("Nope")})
	require.ErrorIs(t, err, engine.ErrNotFound)

	_, err = svc.Update(ctx, bb.ID, engine.Patch{URLTemplate: strPtr("ftp://nope/{query}")})
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)

	same, err := svc.Update(ctx, bb.ID, engine.Patch{Shortcut: strPtr("BB")})
	require.NoError(t, err)
	require.Equal(t, "bb", same.Shortcut)
}

func TestDeleteDefaultPromotesOldestRemaining(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	first, err := svc.Create(ctx, payload("aa", false))
	require.NoError(t, err)
	_, err = svc.Create(ctx, payload("bb", false))
	require.NoError(t, err)
	def, err := svc.Create(ctx, payload("cc", true))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, def.ID))
	defs := defaults(t, svc)
	require.Len(t, defs, 1)
	require.Equal(t, first.ID, defs[0].ID)

	require.ErrorIs(t, svc.Delete(ctx, def.ID), engine.ErrNotFound)
}

func TestDeleteLastEngineLeavesEmptyCatalog(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	only, err := svc.Create(ctx, payload("aa", true))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, only.ID))
	requireInvariant(t, svc)
}

func TestRepairIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, payload("aa", false))
	require.NoError(t, err)
	_, err = svc.Create(ctx, payload("bb", false))
	require.NoError(t, err)
	require.NoError(t, store.ClearDefaults(ctx, 0))

	promoted, err := svc.Repair(ctx)
	require.NoError(t, err)
	require.NotNil(t, promoted)
	once, err := store.List(ctx)
	require.NoError(t, err)

	promoted, err = svc.Repair(ctx)
	require.NoError(t, err)
	require.Nil(t, promoted)
	twice, err := store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestRepairOnEmptyCatalogIsNoop(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	promoted, err := svc.Repair(context.Background())
	require.NoError(t, err)
	require.Nil(t, promoted)
}

// vanishingStore loses every promotion target, as if a concurrent delete won.
type vanishingStore struct {
	engine.Store
}

func (v vanishingStore) SetDefault(_ context.Context, id int64) error {
	return fmt.Errorf("engine %d: %w", id, engine.ErrNotFound)
}

func (v vanishingStore) InTx(ctx context.Context, fn func(engine.Store) error) error {
	return v.Store.InTx(ctx, func(tx engine.Store) error {
		return fn(vanishingStore{Store: tx})
	})
}

func TestRepairSurfacesRetryableError(t *testing.T) {
	t.Parallel()

	inner := memory.NewEngineStore()
	ctx := context.Background()
	_, err := inner.Insert(ctx, engine.Engine{Shortcut: "aa", DisplayName: "AA", URLTemplate: "https://a.example/{query}"})
	require.NoError(t, err)

	svc := NewService(vanishingStore{Store: inner}, &tickClock{}, zap.NewNop())
	_, err = svc.Repair(ctx)
	require.ErrorIs(t, err, engine.ErrRetryable)
	var serr *engine.StoreError
	require.ErrorAs(t, err, &serr)
}

// failingStore fails every list call.
type failingStore struct {
	engine.Store
}

func (failingStore) List(context.Context) ([]engine.Engine, error) {
	return nil, errors.New("connection reset")
}

func TestListWrapsStoreFailures(t *testing.T) {
	t.Parallel()

	svc := NewService(failingStore{Store: memory.NewEngineStore()}, &tickClock{}, nil)
	_, err := svc.List(context.Background())
	var serr *engine.StoreError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "list engines", serr.Op)
}

func TestListNormalizesStoredShortcuts(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()
	dirty, err := store.Insert(ctx, engine.Engine{
		Shortcut:    "  YT ",
		DisplayName: "YouTube",
		URLTemplate: "https://www.youtube.com/results?search_query={query}",
		IsDefault:   true,
	})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, "yt", list[0].Shortcut)

	stored, err := store.Get(ctx, dirty.ID)
	require.NoError(t, err)
	require.Equal(t, "yt", stored.Shortcut)
}

// racingStore runs interleave once, between the List snapshot and the first
// shortcut rename, to model admin writes landing mid-normalization.
type racingStore struct {
	engine.Store
	once       sync.Once
	interleave func()
}

func (r *racingStore) RenameShortcut(ctx context.Context, id int64, from, to string) (bool, error) {
	r.once.Do(r.interleave)
	return r.Store.RenameShortcut(ctx, id, from, to)
}

func TestListNormalizationKeepsConcurrentWrites(t *testing.T) {
	t.Parallel()

	inner := memory.NewEngineStore()
	ctx := context.Background()
	a, err := inner.Insert(ctx, engine.Engine{
		Shortcut:    "  YT ",
		DisplayName: "A",
		URLTemplate: "https://a.example/?q={query}",
		IsDefault:   true,
		CreatedAt:   time.Unix(1, 0),
	})
	require.NoError(t, err)
	b, err := inner.Insert(ctx, engine.Engine{
		Shortcut:    "gg",
		DisplayName: "B",
		URLTemplate: "https://b.example/?q={query}",
		CreatedAt:   time.Unix(2, 0),
	})
	require.NoError(t, err)

	racing := &racingStore{Store: inner}
	svc := NewService(racing, &tickClock{now: time.Unix(10, 0)}, zap.NewNop())
	var promoteErr, renameErr error
	racing.interleave = func() {
		_, promoteErr = svc.Update(ctx, b.ID, engine.Patch{IsDefault: boolPtr(true)})
		_, renameErr = svc.Update(ctx, a.ID, engine.Patch{DisplayName: strPtr("Renamed")})
	}

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.NoError(t, promoteErr)
	require.NoError(t, renameErr)

	byID := make(map[int64]engine.Engine, len(list))
	for _, e := range list {
		byID[e.ID] = e
	}
	require.Equal(t, "yt", byID[a.ID].Shortcut)
	require.Equal(t, "Renamed", byID[a.ID].DisplayName)
	require.False(t, byID[a.ID].IsDefault)
	require.True(t, byID[b.ID].IsDefault)

	stored, err := inner.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "yt", stored.Shortcut)
	require.Equal(t, "Renamed", stored.DisplayName)
	require.False(t, stored.IsDefault)
	requireInvariant(t, svc)
}

func TestListSkipsRenameWhenShortcutChangedMeanwhile(t *testing.T) {
	t.Parallel()

	inner := memory.NewEngineStore()
	ctx := context.Background()
	dirty, err := inner.Insert(ctx, engine.Engine{
		Shortcut:    "YT",
		DisplayName: "YouTube",
		URLTemplate: "https://yt.example/?q={query}",
		IsDefault:   true,
	})
	require.NoError(t, err)

	racing := &racingStore{Store: inner}
	var writeErr error
	racing.interleave = func() {
		current, err := inner.Get(ctx, dirty.ID)
		if err != nil {
			writeErr = err
			return
		}
		current.Shortcut = "video"
		_, writeErr = inner.Update(ctx, current)
	}
	svc := NewService(racing, &tickClock{}, zap.NewNop())

	_, err = svc.List(ctx)
	require.NoError(t, err)
	require.NoError(t, writeErr)

	stored, err := inner.Get(ctx, dirty.ID)
	require.NoError(t, err)
	require.Equal(t, "video", stored.Shortcut)
}

func TestSeedIsRepeatable(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	n, err := svc.Seed(ctx, DefaultEngines())
	require.NoError(t, err)
	require.Equal(t, len(DefaultEngines()), n)

	_, err = svc.Seed(ctx, DefaultEngines())
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(DefaultEngines()))
	require.Equal(t, "duck", list[0].Shortcut)
	require.True(t, list[0].IsDefault)
	requireInvariant(t, svc)
}

// runRandomOperations drives seeded random creates, updates, renames and
// deletes through svc and checks the invariant after every step.
func runRandomOperations(t *testing.T, svc *Service, seed int64, steps int) {
	t.Helper()
	ctx := context.Background()
	rng := rand.New(rand.NewSource(seed))
	shortcuts := []string{"aa", "bb", "cc", "dd", "ee", "ff"}

	for step := 0; step < steps; step++ {
		list, err := svc.List(ctx)
		require.NoError(t, err)

		switch op := rng.Intn(4); {
		case op == 0 || len(list) == 0:
			_, err = svc.Create(ctx, payload(shortcuts[rng.Intn(len(shortcuts))], rng.Intn(2) == 0))
			if err != nil {
				require.ErrorIs(t, err, engine.ErrConflict)
			}
		case op == 1:
			target := list[rng.Intn(len(list))]
			_, err = svc.Update(ctx, target.ID, engine.Patch{IsDefault: boolPtr(rng.Intn(2) == 0)})
			require.NoError(t, err)
		case op == 2:
			target := list[rng.Intn(len(list))]
			_, err = svc.Update(ctx, target.ID, engine.Patch{Shortcut: strPtr(shortcuts[rng.Intn(len(shortcuts))])})
			if err != nil {
				require.ErrorIs(t, err, engine.ErrConflict)
			}
		default:
			require.NoError(t, svc.Delete(ctx, list[rng.Intn(len(list))].ID))
		}
		requireInvariant(t, svc)
	}
}

func TestInvariantHoldsForRandomOperationSequences(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	runRandomOperations(t, svc, 42, 400)
}

func openSQLite(t *testing.T) *sqlite.EngineStore {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestInvariantHoldsOnSQLiteStore(t *testing.T) {
	t.Parallel()

	store := openSQLite(t)
	svc := NewService(store, &tickClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop())
	runRandomOperations(t, svc, 7, 150)
}

// staleClearStore skips ClearDefaults, as if another writer flagged a
// default right after the clear.
type staleClearStore struct {
	engine.Store
}

func (staleClearStore) ClearDefaults(context.Context, int64) error { return nil }

func (s staleClearStore) InTx(ctx context.Context, fn func(engine.Store) error) error {
	return s.Store.InTx(ctx, func(tx engine.Store) error {
		return fn(staleClearStore{Store: tx})
	})
}

func TestSQLiteSecondDefaultSurfacesRetryable(t *testing.T) {
	t.Parallel()

	store := openSQLite(t)
	ctx := context.Background()
	clock := &tickClock{now: time.Unix(1700000000, 0).UTC()}
	_, err := NewService(store, clock, zap.NewNop()).Create(ctx, payload("aa", true))
	require.NoError(t, err)

	racing := NewService(staleClearStore{Store: store}, clock, zap.NewNop())
	_, err = racing.Create(ctx, payload("bb", true))
	require.ErrorIs(t, err, engine.ErrRetryable)

	svc := NewService(store, clock, zap.NewNop())
	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "failed transaction must roll back")
	requireInvariant(t, svc)
}

func TestInvariantConvergesUnderConcurrentWrites(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := svc.Create(ctx, payload(fmt.Sprintf("e%02d", i), i%3 == 0))
			if err != nil {
				return
			}
			if i%4 == 0 {
				_ = svc.Delete(ctx, created.ID)
			}
		}(i)
	}
	wg.Wait()

	requireInvariant(t, svc)
}
