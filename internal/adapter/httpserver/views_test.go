package httpserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

func TestSanitizeParams(t *testing.T) {
	assert.Nil(t, sanitizeParams(nil))

	params := map[string]any{
		"csv_content": "thread_id,message\nt1,hi\n",
		"app_id":      "default",
	}
	got := sanitizeParams(params)
	assert.NotContains(t, got, "csv_content")
	assert.Equal(t, "default", got["app_id"])
	assert.Contains(t, params, "csv_content", "original map untouched")
}

func TestToJobView_StripsCSVContent(t *testing.T) {
	v := toJobView(domain.Job{
		ID:      "j1",
		JobType: domain.JobEvaluateBatch,
		Status:  domain.JobQueued,
		Params:  map[string]any{"csv_content": "huge", "run_name": "nightly"},
	})
	assert.NotContains(t, v.Params, "csv_content")
	assert.Equal(t, "nightly", v.Params["run_name"])
}

func TestToRunView_ConditionalKeys(t *testing.T) {
	v := toRunView(domain.EvalRun{
		ID:       "r1",
		AppID:    "default",
		EvalType: domain.EvalCustom,
		Status:   "completed",
	})
	assert.Equal(t, "r1", v["id"])
	assert.NotContains(t, v, "listingId")
	assert.NotContains(t, v, "errorMessage")
	assert.NotContains(t, v, "app_id", "snake aliases only on batch rows")
}

func TestToRunView_BatchRowsCarrySnakeAliases(t *testing.T) {
	jobID := "j1"
	started := time.Now()
	v := toRunView(domain.EvalRun{
		ID:        "r1",
		AppID:     "default",
		EvalType:  domain.EvalBatchThread,
		Status:    "running",
		JobID:     &jobID,
		StartedAt: &started,
	})
	assert.Equal(t, v["appId"], v["app_id"])
	assert.Equal(t, v["evalType"], v["eval_type"])
	assert.Equal(t, "j1", v["job_id"])
	assert.Equal(t, v["startedAt"], v["started_at"])
	assert.NotContains(t, v, "completed_at", "aliases only for present keys")
}

func TestToThreadEvalView_AlwaysSnakeAliased(t *testing.T) {
	acc := 0.9
	v := toThreadEvalView(domain.ThreadEvaluation{
		ID:               "te1",
		RunID:            "r1",
		ThreadID:         "t1",
		WorstCorrectness: "PASS",
		IntentAccuracy:   &acc,
	})
	assert.Equal(t, "r1", v["run_id"])
	assert.Equal(t, "t1", v["thread_id"])
	assert.Equal(t, "PASS", v["worst_correctness"])
	assert.Equal(t, acc, v["intent_accuracy"])
}

func TestToAdvEvalView_AlwaysSnakeAliased(t *testing.T) {
	v := toAdvEvalView(domain.AdversarialEvaluation{
		ID:           "ae1",
		RunID:        "r1",
		Category:     "privacy",
		Verdict:      "PASS",
		GoalAchieved: false,
		TotalTurns:   4,
	})
	assert.Equal(t, "r1", v["run_id"])
	assert.Equal(t, false, v["goal_achieved"])
	assert.Equal(t, 4, v["total_turns"])
}
