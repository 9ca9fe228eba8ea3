package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
)

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRepository(setupPostgres(t))
	require.NoError(t, err)
	jobs := repo.Jobs()

	job, err := jobs.CreateJob(ctx, recipes.JobCreateParams{BatchID: "01HZX3J6X6Q5N8K2V7W9Y0ABCD", TotalURLs: 20})
	require.NoError(t, err)
	assert.Equal(t, recipes.JobPending, job.Status)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.OwnerID)

	started, err := jobs.StartJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, recipes.JobRunning, started.Status)
	require.NotNil(t, started.StartedAt)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, jobs.RecordResult(ctx, job.ID, i%4 != 0))
		}(i)
	}
	wg.Wait()

	mid, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, mid.RecipesScraped)
	assert.Equal(t, 5, mid.RecipesFailed)

	done, err := jobs.FinishJob(ctx, job.ID, recipes.JobCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, recipes.JobCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)

	_, err = jobs.StartJob(ctx, job.ID)
	assert.ErrorIs(t, err, recipes.ErrJobTerminal)
	_, err = jobs.FinishJob(ctx, job.ID, recipes.JobFailed, "late")
	assert.ErrorIs(t, err, recipes.ErrJobTerminal)
	assert.Error(t, jobs.RecordResult(ctx, job.ID, true))
}

func TestStartJobResetsCountersOnRedelivery(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRepository(setupPostgres(t))
	require.NoError(t, err)
	jobs := repo.Jobs()

	job, err := jobs.CreateJob(ctx, recipes.JobCreateParams{BatchID: "b", TotalURLs: 2})
	require.NoError(t, err)
	_, err = jobs.StartJob(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, jobs.RecordResult(ctx, job.ID, true))

	restarted, err := jobs.StartJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Zero(t, restarted.RecipesScraped)
}

func TestJobCountersBounded(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRepository(setupPostgres(t))
	require.NoError(t, err)
	jobs := repo.Jobs()

	job, err := jobs.CreateJob(ctx, recipes.JobCreateParams{BatchID: "b", TotalURLs: 1})
	require.NoError(t, err)
	_, err = jobs.StartJob(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, jobs.RecordResult(ctx, job.ID, true))
	assert.Error(t, jobs.RecordResult(ctx, job.ID, false), "scraped + failed cannot exceed total")
}

func TestJobNotFound(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRepository(setupPostgres(t))
	require.NoError(t, err)

	_, err = repo.Jobs().GetJob(ctx, "6f1c1e64-3c0a-4a43-9a5e-0c6a3c2d9f10")
	assert.ErrorIs(t, err, recipes.ErrJobNotFound)
	_, err = repo.Jobs().GetJob(ctx, "nope")
	assert.ErrorIs(t, err, recipes.ErrJobNotFound)

	missingOwner := "6f1c1e64-3c0a-4a43-9a5e-0c6a3c2d9f10"
	_, err = repo.Jobs().CreateJob(ctx, recipes.JobCreateParams{OwnerID: &missingOwner, BatchID: "b", TotalURLs: 1})
	assert.ErrorIs(t, err, recipes.ErrOwnerNotFound)
}
