package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// fakePool records Exec calls; the invariant tests only need the guard path
// and a successful insert.
type fakePool struct{ execs []string }

func (f *fakePool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakePool) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (f *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (f *fakePool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, pgx.ErrTxClosed
}

func strPtr(s string) *string { return &s }

func TestEvalRunCreate_Invariants(t *testing.T) {
	ctx := context.Background()

	t.Run("voice-rx shape passes without evaluator", func(t *testing.T) {
		pool := &fakePool{}
		repo := NewEvalRunRepo(pool)
		id, err := repo.Create(ctx, domain.EvalRun{
			AppID:     "default",
			EvalType:  domain.EvalFullEvaluation,
			ListingID: strPtr("listing-1"),
			JobID:     strPtr("job-1"),
			Status:    domain.RunPending,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Len(t, pool.execs, 1)
	})

	t.Run("custom requires evaluator", func(t *testing.T) {
		repo := NewEvalRunRepo(&fakePool{})
		_, err := repo.Create(ctx, domain.EvalRun{
			AppID:     "default",
			EvalType:  domain.EvalCustom,
			ListingID: strPtr("listing-1"),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("custom with evaluator passes", func(t *testing.T) {
		repo := NewEvalRunRepo(&fakePool{})
		_, err := repo.Create(ctx, domain.EvalRun{
			AppID:       "default",
			EvalType:    domain.EvalCustom,
			ListingID:   strPtr("listing-1"),
			EvaluatorID: strPtr("eval-1"),
		})
		assert.NoError(t, err)
	})

	t.Run("non-batch requires exactly one owner", func(t *testing.T) {
		repo := NewEvalRunRepo(&fakePool{})
		_, err := repo.Create(ctx, domain.EvalRun{
			AppID:    "default",
			EvalType: domain.EvalFullEvaluation,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "neither listing nor session")

		_, err = repo.Create(ctx, domain.EvalRun{
			AppID:     "default",
			EvalType:  domain.EvalFullEvaluation,
			ListingID: strPtr("l1"),
			SessionID: strPtr("s1"),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "both listing and session")
	})

	t.Run("batch runs need no owner", func(t *testing.T) {
		repo := NewEvalRunRepo(&fakePool{})
		_, err := repo.Create(ctx, domain.EvalRun{
			AppID:    "default",
			EvalType: domain.EvalBatchThread,
		})
		assert.NoError(t, err)
	})
}
