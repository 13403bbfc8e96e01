package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

func TestCancelRegistry_MemoryFirst(t *testing.T) {
	jobs := newFakeJobs()
	reg := NewCancelRegistry(jobs)
	ctx := context.Background()

	id, err := jobs.Create(ctx, domain.Job{JobType: domain.JobEvaluateBatch})
	require.NoError(t, err)

	assert.False(t, reg.IsCancelled(ctx, id))

	// memory mark is visible before any DB transition
	reg.MarkCancelled(id)
	assert.True(t, reg.IsCancelled(ctx, id))
	status, err := jobs.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, status)
}

func TestCancelRegistry_FallsBackToStore(t *testing.T) {
	jobs := newFakeJobs()
	reg := NewCancelRegistry(jobs)
	ctx := context.Background()

	id, err := jobs.Create(ctx, domain.Job{JobType: domain.JobEvaluateBatch})
	require.NoError(t, err)
	require.NoError(t, jobs.MarkCancelled(ctx, id))

	assert.True(t, reg.IsCancelled(ctx, id))
	// second call hits the cached memory entry
	assert.True(t, reg.IsCancelled(ctx, id))
}

func TestCancelRegistry_UnknownJobReadsNotCancelled(t *testing.T) {
	reg := NewCancelRegistry(newFakeJobs())
	assert.False(t, reg.IsCancelled(context.Background(), "missing"))
}
