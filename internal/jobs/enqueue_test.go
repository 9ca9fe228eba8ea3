package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
)

type fakeInserter struct {
	args []river.JobArgs
	opts []*river.InsertOpts
	err  error
}

func (f *fakeInserter) Insert(_ context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.args = append(f.args, args)
	f.opts = append(f.opts, opts)
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: int64(len(f.args))}}, nil
}

func TestBatchEnqueuerInsertsJob(t *testing.T) {
	store := newMemJobStore()
	inserter := &fakeInserter{}
	owner := "owner-1"
	enqueuer := NewBatchEnqueuer(NewBatchManager(&fakeImporter{}, fakeProber{}, store, 2, zerolog.Nop()), inserter)

	job, err := enqueuer.Enqueue(context.Background(), BatchRequest{URLs: urls(3), OwnerID: &owner})
	require.NoError(t, err)
	assert.Equal(t, recipes.JobPending, job.Status)
	assert.Equal(t, 3, job.TotalURLs)

	require.Len(t, inserter.args, 1)
	args, ok := inserter.args[0].(BatchImportArgs)
	require.True(t, ok)
	assert.Equal(t, job.ID, args.JobID)
	assert.Equal(t, urls(3), args.URLs)
	assert.Equal(t, &owner, args.OwnerID)
	assert.Equal(t, QueueIngest, inserter.opts[0].Queue)
	assert.Equal(t, BatchImportMaxAttempts, inserter.opts[0].MaxAttempts)
}

func TestBatchEnqueuerEmptyBatch(t *testing.T) {
	inserter := &fakeInserter{}
	enqueuer := NewBatchEnqueuer(NewBatchManager(&fakeImporter{}, fakeProber{}, newMemJobStore(), 2, zerolog.Nop()), inserter)

	_, err := enqueuer.Enqueue(context.Background(), BatchRequest{})
	assert.ErrorIs(t, err, ErrEmptyBatch)
	assert.Empty(t, inserter.args)
}

func TestBatchEnqueuerInsertFailureFailsJob(t *testing.T) {
	store := newMemJobStore()
	inserter := &fakeInserter{err: errors.New("river unavailable")}
	enqueuer := NewBatchEnqueuer(NewBatchManager(&fakeImporter{}, fakeProber{}, store, 2, zerolog.Nop()), inserter)

	_, err := enqueuer.Enqueue(context.Background(), BatchRequest{URLs: urls(2)})
	require.Error(t, err)

	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, recipes.JobFailed, job.Status)
		assert.Equal(t, "batch could not be queued", job.Error)
	}
}
