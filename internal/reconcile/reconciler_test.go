package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnknownOwner = errors.New("owner not found")

// memStore keeps cached counts and link rows the way the database would.
type memStore struct {
	mu     sync.Mutex
	cached map[string]int
	links  map[string]int
	writes int
}

func newMemStore() *memStore {
	return &memStore{cached: map[string]int{}, links: map[string]int{}}
}

func (m *memStore) OwnerCounts(_ context.Context, ownerID string) ([]OwnerCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ownerID != "" {
		cached, ok := m.cached[ownerID]
		if !ok {
			return nil, errUnknownOwner
		}
		return []OwnerCount{{OwnerID: ownerID, Slug: ownerID, Cached: cached, Actual: m.links[ownerID]}}, nil
	}
	var out []OwnerCount
	for id, cached := range m.cached {
		out = append(out, OwnerCount{OwnerID: id, Slug: id, Cached: cached, Actual: m.links[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (m *memStore) SetRecipeCount(_ context.Context, ownerID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.cached[ownerID] = count
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcileCorrectsDrift(t *testing.T) {
	store := newMemStore()
	store.cached["bakery"] = 5
	store.links["bakery"] = 3
	store.cached["deli"] = 2
	store.links["deli"] = 2
	store.cached["empty"] = 4

	report, err := New(store, quietLogger()).Reconcile(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.OwnersChecked)
	assert.Equal(t, 2, report.OwnersDrifted)
	assert.Equal(t, 2, report.OwnersCorrected)
	assert.Equal(t, 3, store.cached["bakery"])
	assert.Equal(t, 0, store.cached["empty"])
	assert.Equal(t, 2, store.cached["deli"])
	assert.Equal(t, 2, store.links["deli"], "link rows are never touched")

	require.Len(t, report.Corrections, 2)
	assert.Equal(t, Correction{OwnerID: "bakery", Slug: "bakery", Cached: 5, Actual: 3, Applied: true}, report.Corrections[0])
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.cached["bakery"] = 5
	store.links["bakery"] = 3
	r := New(store, quietLogger())

	_, err := r.Reconcile(context.Background(), Options{})
	require.NoError(t, err)
	writes := store.writes

	second, err := r.Reconcile(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, writes, store.writes, "consistent store sees no writes")
	assert.Zero(t, second.OwnersDrifted)
	assert.Empty(t, second.Corrections)
}

func TestReconcileDryRun(t *testing.T) {
	store := newMemStore()
	store.cached["bakery"] = 5
	store.links["bakery"] = 3

	report, err := New(store, quietLogger()).Reconcile(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.OwnersDrifted)
	assert.Zero(t, report.OwnersCorrected)
	assert.False(t, report.Corrections[0].Applied)
	assert.Equal(t, 5, store.cached["bakery"])
	assert.Zero(t, store.writes)
}

func TestReconcileSingleOwner(t *testing.T) {
	store := newMemStore()
	store.cached["bakery"] = 5
	store.links["bakery"] = 3
	store.cached["deli"] = 9

	report, err := New(store, quietLogger()).Reconcile(context.Background(), Options{OwnerID: "bakery"})
	require.NoError(t, err)

	assert.Equal(t, "owner:bakery", report.Scope)
	assert.Equal(t, 1, report.OwnersChecked)
	assert.Equal(t, 3, store.cached["bakery"])
	assert.Equal(t, 9, store.cached["deli"], "other owners untouched")

	_, err = New(store, quietLogger()).Reconcile(context.Background(), Options{OwnerID: "ghost"})
	assert.ErrorIs(t, err, errUnknownOwner)
}
