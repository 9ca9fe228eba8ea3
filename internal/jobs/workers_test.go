package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
	"github.com/Togather-Foundation/recipes/internal/reconcile"
)

func TestArgsKinds(t *testing.T) {
	tests := []struct {
		args river.JobArgs
		want string
	}{
		{BatchImportArgs{JobID: "job-1"}, JobKindBatchImport},
		{ReconcileOwnerCountsArgs{}, JobKindReconcileOwnerCounts},
		{VisibilityFixupArgs{}, JobKindVisibilityFixup},
	}
	for _, tt := range tests {
		if got := tt.args.Kind(); got != tt.want {
			t.Errorf("Kind() = %q, want %q", got, tt.want)
		}
	}
}

func TestWorkersMissingDependencies(t *testing.T) {
	ctx := context.Background()

	err := BatchImportWorker{}.Work(ctx, &river.Job[BatchImportArgs]{Args: BatchImportArgs{JobID: "job-1"}})
	assert.Error(t, err)

	err = ReconcileOwnerCountsWorker{}.Work(ctx, &river.Job[ReconcileOwnerCountsArgs]{})
	assert.Error(t, err)

	err = VisibilityFixupWorker{}.Work(ctx, &river.Job[VisibilityFixupArgs]{})
	assert.Error(t, err)
}

func TestBatchImportWorkerRequiresJobID(t *testing.T) {
	m := NewBatchManager(&fakeImporter{}, fakeProber{}, newMemJobStore(), 1, zerolog.Nop())
	worker := BatchImportWorker{Manager: m}

	assert.Error(t, worker.Work(context.Background(), nil))
	assert.Error(t, worker.Work(context.Background(), &river.Job[BatchImportArgs]{}))
	assert.Equal(t, BatchImportTimeout, worker.Timeout(nil))
}

func TestBatchImportWorkerRunsJob(t *testing.T) {
	store := newMemJobStore()
	importer := &fakeImporter{}
	m := NewBatchManager(importer, fakeProber{}, store, 2, zerolog.Nop())

	batch := urls(3)
	job, err := m.Create(context.Background(), BatchRequest{URLs: batch})
	require.NoError(t, err)

	worker := BatchImportWorker{Manager: m}
	err = worker.Work(context.Background(), &river.Job[BatchImportArgs]{Args: BatchImportArgs{JobID: job.ID, URLs: batch}})
	require.NoError(t, err)

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, recipes.JobCompleted, got.Status)
	assert.Equal(t, 3, got.RecipesScraped)

	// Redelivery after completion is a no-op.
	require.NoError(t, worker.Work(context.Background(), &river.Job[BatchImportArgs]{Args: BatchImportArgs{JobID: job.ID, URLs: batch}}))
	assert.Equal(t, 3, importer.Calls())
}

type fakeOwnerStore struct {
	counts []reconcile.OwnerCount
	writes map[string]int
}

func (s *fakeOwnerStore) OwnerCounts(context.Context, string) ([]reconcile.OwnerCount, error) {
	return s.counts, nil
}

func (s *fakeOwnerStore) SetRecipeCount(_ context.Context, ownerID string, count int) error {
	s.writes[ownerID] = count
	return nil
}

func TestReconcileOwnerCountsWorker(t *testing.T) {
	store := &fakeOwnerStore{
		counts: []reconcile.OwnerCount{{OwnerID: "o1", Slug: "bakery", Cached: 5, Actual: 3}},
		writes: map[string]int{},
	}
	worker := ReconcileOwnerCountsWorker{Reconciler: reconcile.New(store, nil)}

	require.NoError(t, worker.Work(context.Background(), &river.Job[ReconcileOwnerCountsArgs]{}))
	assert.Equal(t, map[string]int{"o1": 3}, store.writes)

	store.writes = map[string]int{}
	require.NoError(t, worker.Work(context.Background(), &river.Job[ReconcileOwnerCountsArgs]{Args: ReconcileOwnerCountsArgs{DryRun: true}}))
	assert.Empty(t, store.writes)
}

type fakeEnforcer struct {
	hidden int64
	err    error
	calls  int
}

func (f *fakeEnforcer) EnforceVisibility(context.Context) (int64, error) {
	f.calls++
	return f.hidden, f.err
}

func TestVisibilityFixupWorker(t *testing.T) {
	enforcer := &fakeEnforcer{hidden: 2}
	worker := VisibilityFixupWorker{Recipes: enforcer}

	require.NoError(t, worker.Work(context.Background(), &river.Job[VisibilityFixupArgs]{}))
	assert.Equal(t, 1, enforcer.calls)

	enforcer.err = errors.New("db down")
	assert.Error(t, worker.Work(context.Background(), &river.Job[VisibilityFixupArgs]{}))
}

func TestFailExhaustedBatches(t *testing.T) {
	store := newMemJobStore()
	job, err := store.CreateJob(context.Background(), recipes.JobCreateParams{BatchID: "b", TotalURLs: 2})
	require.NoError(t, err)
	_, err = store.StartJob(context.Background(), job.ID)
	require.NoError(t, err)

	encoded, err := json.Marshal(BatchImportArgs{JobID: job.ID})
	require.NoError(t, err)

	alert := FailExhaustedBatches(store, nil)

	alert(context.Background(), &rivertype.JobRow{Kind: JobKindBatchImport, Attempt: 1, MaxAttempts: 3, EncodedArgs: encoded}, errors.New("boom"))
	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, recipes.JobRunning, got.Status, "retries remain")

	alert(context.Background(), &rivertype.JobRow{Kind: JobKindVisibilityFixup, Attempt: 3, MaxAttempts: 3}, errors.New("boom"))
	got, _ = store.GetJob(context.Background(), job.ID)
	assert.Equal(t, recipes.JobRunning, got.Status, "other kinds are ignored")

	alert(context.Background(), &rivertype.JobRow{Kind: JobKindBatchImport, Attempt: 3, MaxAttempts: 3, EncodedArgs: encoded}, errors.New("boom"))
	got, _ = store.GetJob(context.Background(), job.ID)
	assert.Equal(t, recipes.JobFailed, got.Status)
	assert.Equal(t, "batch worker gave up after 3 attempts", got.Error)
}

func TestAlertingErrorHandlerForwards(t *testing.T) {
	var seen []string
	handler := NewAlertingErrorHandler(nil, func(_ context.Context, job *rivertype.JobRow, err error) {
		seen = append(seen, job.Kind+": "+err.Error())
	})

	handler.HandleError(context.Background(), &rivertype.JobRow{Kind: JobKindBatchImport}, errors.New("boom"))
	handler.HandlePanic(context.Background(), &rivertype.JobRow{Kind: JobKindVisibilityFixup}, "oops", "trace")

	assert.Equal(t, []string{"batch_import: boom", "visibility_fixup: panic: oops"}, seen)
}
