package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank_Ordering(t *testing.T) {
	ordered := []string{VerdictNotApplicable, VerdictPass, VerdictSoftFail, VerdictHardFail, VerdictCritical}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, SeverityRank(ordered[i]), SeverityRank(ordered[i-1]), "%s must outrank %s", ordered[i], ordered[i-1])
	}
	assert.Equal(t, -1, SeverityRank("WHATEVER"))
}

func TestWorstVerdict(t *testing.T) {
	assert.Equal(t, VerdictNotApplicable, WorstVerdict(nil))
	assert.Equal(t, VerdictPass, WorstVerdict([]string{VerdictPass, VerdictNotApplicable}))
	assert.Equal(t, VerdictCritical, WorstVerdict([]string{VerdictPass, VerdictCritical, VerdictSoftFail}))
	// unknown verdicts never win
	assert.Equal(t, VerdictSoftFail, WorstVerdict([]string{"garbage", VerdictSoftFail}))
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobQueued.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobCancelled.Terminal())
}

func TestMapLegacyCommand(t *testing.T) {
	assert.Equal(t, EvalBatchThread, MapLegacyCommand("evaluate-batch"))
	assert.Equal(t, EvalBatchAdversarial, MapLegacyCommand("adversarial"))
	assert.Equal(t, EvalFullEvaluation, MapLegacyCommand("evaluate-voice-rx"))
	assert.Equal(t, EvalType(""), MapLegacyCommand("unknown"))
}
