package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// fakeAudited answers every structured call with a canned document.
type fakeAudited struct {
	out     map[string]any
	err     error
	prompts []string
}

func (f *fakeAudited) Provider() string { return "test" }
func (f *fakeAudited) Model() string    { return "test-model" }

func (f *fakeAudited) Generate(_ domain.Context, prompt string, _ domain.GenerateOpts) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return "", f.err
}

func (f *fakeAudited) GenerateJSON(_ domain.Context, prompt string, _ map[string]any, _ domain.GenerateOpts) (map[string]any, error) {
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

func (f *fakeAudited) GenerateWithAudio(_ domain.Context, prompt string, _ []byte, _ string, _ map[string]any, _ domain.GenerateOpts) (map[string]any, error) {
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

func (f *fakeAudited) SetRunID(string)    {}
func (f *fakeAudited) SetThreadID(string) {}

type fakeListings struct {
	listing domain.Listing
	aiEvals []map[string]any
}

func (f *fakeListings) Get(_ domain.Context, id string) (domain.Listing, error) {
	if f.listing.ID != id {
		return domain.Listing{}, domain.ErrNotFound
	}
	return f.listing, nil
}

func (f *fakeListings) SetTranscript(_ domain.Context, _ string, _ map[string]any) error { return nil }

func (f *fakeListings) SetAIEval(_ domain.Context, _ string, aiEval map[string]any) error {
	f.aiEvals = append(f.aiEvals, aiEval)
	return nil
}

func (f *fakeListings) AppendEvaluatorRun(_ domain.Context, _ string, _ map[string]any) error {
	return nil
}

func segs(texts ...string) map[string]any {
	out := make([]any, len(texts))
	for i, text := range texts {
		out[i] = map[string]any{"speaker": "Doctor", "start": float64(i), "end": float64(i + 1), "text": text}
	}
	return map[string]any{"segments": out}
}

func TestCritiqueTranscripts_Statistics(t *testing.T) {
	wrapper := &fakeAudited{out: map[string]any{
		// duplicate and out-of-range indices must not inflate the counts
		"discrepancy_indices": []any{float64(0), float64(2), float64(2), float64(9)},
		"discrepancies": []any{
			map[string]any{"index": float64(0), "severity": "minor", "description": "wrong dose"},
			map[string]any{"index": float64(2), "severity": "critical", "description": "missing drug"},
		},
		"summary": "two segments differ",
		"verdict": domain.VerdictSoftFail,
	}}
	d := Deps{}
	reference := []map[string]any{
		{"speaker": "Doctor", "text": "one"},
		{"speaker": "Doctor", "text": "two"},
		{"speaker": "Doctor", "text": "three"},
	}
	listing := domain.Listing{Transcript: segs("one", "2", "three")}

	out, err := d.critiqueTranscripts(context.Background(), wrapper, NewPromptSource(nil, "default", "system"), listing, reference, "default", "system")
	require.NoError(t, err)

	stats, ok := out["statistics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, stats["totalSegments"])
	assert.Equal(t, 2, stats["discrepancyCount"])
	assert.Equal(t, 1, stats["matchCount"], "matchCount = totalSegments - unique in-range indices")
	assert.Equal(t, map[string]int{"minor": 1, "critical": 1}, stats["bySeverity"])
	assert.Equal(t, []any{0, 2}, out["discrepancy_indices"], "deduped and bounded")
}

func TestRunVoiceRx_CreatesWellFormedRun(t *testing.T) {
	jobs := newFakeJobs()
	runs := &fakeRuns{}
	listings := &fakeListings{listing: domain.Listing{
		ID:         "listing-1",
		SourceType: "upload",
		Transcript: segs("take one tablet daily"),
		AIEval:     map[string]any{"llmTranscript": segs("take one tablet daily")},
	}}
	wrapper := &fakeAudited{out: map[string]any{
		"discrepancy_indices": []any{},
		"discrepancies":       []any{},
		"summary":             "transcripts agree",
		"verdict":             domain.VerdictPass,
	}}
	d := Deps{
		Jobs:       jobs,
		Runs:       runs,
		Listings:   listings,
		Probe:      NewCancelRegistry(jobs),
		NewAudited: func() AuditedClient { return wrapper },
		Cfg:        config.Config{AppEnv: "test"},
	}
	ctx := context.Background()
	id, err := jobs.Create(ctx, domain.Job{JobType: domain.JobEvaluateVoiceRx, Params: map[string]any{
		"listing_id":         "listing-1",
		"app_id":             "default",
		"user_id":            "system",
		"skip_transcription": true,
	}})
	require.NoError(t, err)
	job, err := jobs.ClaimNextQueued(ctx)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)

	result, err := d.RunVoiceRx(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "listing-1", result["listing_id"])

	// the run row satisfies the repo invariants without an evaluator
	require.Len(t, runs.created, 1)
	run := runs.created[0]
	assert.Equal(t, domain.EvalFullEvaluation, run.EvalType)
	require.NotNil(t, run.ListingID)
	assert.Equal(t, "listing-1", *run.ListingID)
	assert.Nil(t, run.EvaluatorID)
	assert.Equal(t, []domain.RunStatus{domain.RunCompleted}, runs.finalized)

	require.NotEmpty(t, listings.aiEvals)
	final := listings.aiEvals[len(listings.aiEvals)-1]
	assert.Equal(t, "completed", final["status"])
	critique, ok := final["critique"].(map[string]any)
	require.True(t, ok)
	stats := critique["statistics"].(map[string]any)
	assert.Equal(t, 1, stats["matchCount"])
	assert.Equal(t, 0, stats["discrepancyCount"])
}
