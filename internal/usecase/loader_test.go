package usecase

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

const sampleCSV = `thread_id,user_id,timestamp,sender,message,intent,error,has_image
t1,u1,2026-01-05 09:00:00,user,log my breakfast,log_meal,,false
t1,u1,2026-01-05 09:00:30,bot,"Meal Summary: 420 calories, 20g protein",log_meal,,false
t2,u2,2026-01-05 10:00:00,user,what did I eat yesterday,query_history,,true
t2,u2,2026-01-05 10:00:10,bot,here is your history,query_history,timeout,false
`

func TestLoadCSV_ThreadsAndDerivedFields(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2"}, ds.ThreadIDs(), "first-seen order")

	t1, ok := ds.Thread("t1")
	require.True(t, ok)
	require.Len(t, t1.Messages, 2)
	assert.True(t, t1.Messages[0].IsUser())
	assert.True(t, t1.IsMealSummary)
	assert.False(t, t1.HasErrors)
	assert.InDelta(t, 30, t1.DurationSeconds, 0.001)

	t2, ok := ds.Thread("t2")
	require.True(t, ok)
	assert.True(t, t2.HasErrors)
	assert.False(t, t2.IsMealSummary)
	assert.True(t, t2.Messages[0].HasImage)
}

func TestLoadCSV_SortsMessagesByTimestamp(t *testing.T) {
	csv := `thread_id,timestamp,sender,message
t1,2026-01-05 09:05:00,bot,second
t1,2026-01-05 09:00:00,user,first
`
	ds, err := LoadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	t1, _ := ds.Thread("t1")
	assert.Equal(t, "first", t1.Messages[0].Message)
	assert.Equal(t, "second", t1.Messages[1].Message)
}

func TestLoadCSV_SuccessDetection(t *testing.T) {
	csv := `thread_id,sender,message
ok,user,log it
ok,bot,Meal logged successfully!
nope,user,help
nope,bot,I am not sure
`
	ds, err := LoadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	okThread, _ := ds.Thread("ok")
	assert.True(t, okThread.IsSuccessful)
	nope, _ := ds.Thread("nope")
	assert.False(t, nope.IsSuccessful)
}

func TestLoadCSV_SkipsRowsWithoutThreadID(t *testing.T) {
	csv := `thread_id,message
t1,hello
,orphan row
t1,again
`
	ds, err := LoadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	t1, _ := ds.Thread("t1")
	assert.Len(t, t1.Messages, 2)
}

func TestLoadCSV_Errors(t *testing.T) {
	_, err := LoadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = LoadCSV(strings.NewReader("user_id,message\nu1,hi\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument, "thread_id column is mandatory")

	_, err = LoadCSV(strings.NewReader("thread_id,timestamp\nt1,not-a-time\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseTimestamp_Layouts(t *testing.T) {
	cases := map[string]time.Time{
		"2026-01-05T09:00:00Z":  time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		"2026-01-05 09:00:00":   time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		"05/01/2026 09:00:00":   time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		"05/01/2026 09:00":      time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		"05-01-2026 09:00:00":   time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		" 2026-01-05 09:00:00 ": time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}
	for input, want := range cases {
		got, err := parseTimestamp(input)
		require.NoError(t, err, input)
		assert.True(t, got.Equal(want), input)
	}

	_, err := parseTimestamp("Jan 5th")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStatistics(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	stats := ds.Statistics()
	assert.Equal(t, 2, stats.TotalThreads)
	assert.Equal(t, 4, stats.TotalMessages)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.ImageCount)
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, map[string]int{"log_meal": 2, "query_history": 2}, stats.IntentDistribution)

	require.NotNil(t, stats.DateRange)
	assert.True(t, stats.DateRange.From.Before(stats.DateRange.To))
}

func TestStatistics_NoTimestampsNoDateRange(t *testing.T) {
	ds, err := LoadCSV(strings.NewReader("thread_id,message\nt1,hi\n"))
	require.NoError(t, err)
	assert.Nil(t, ds.Statistics().DateRange)
}
