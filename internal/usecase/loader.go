// Package usecase holds the pure application logic: dataset loading, deep
// comparison, prompt resolution, schema generation, and the adversarial
// configuration service.
package usecase

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// ChatMessage is one CSV row from a conversation export.
type ChatMessage struct {
	ThreadID          string
	UserID            string
	Timestamp         time.Time
	Sender            string
	Message           string
	Intent            string
	ExpectedIntent    string
	QueryType         string
	ExpectedQueryType string
	Agent             string
	HasImage          bool
	Error             string
}

// IsUser reports whether the row came from the human side.
func (m ChatMessage) IsUser() bool {
	return strings.EqualFold(m.Sender, "user")
}

// ConversationThread groups a thread's messages with derived fields.
type ConversationThread struct {
	ThreadID        string
	Messages        []ChatMessage
	DurationSeconds float64
	HasErrors       bool
	IsMealSummary   bool
	IsSuccessful    bool
}

// Dataset is a parsed CSV export indexed by thread.
type Dataset struct {
	threads map[string]ConversationThread
	order   []string
}

// DateRange is the observed timestamp span of a dataset.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Statistics summarizes a dataset for the preview endpoint.
type Statistics struct {
	TotalThreads       int            `json:"totalThreads"`
	TotalMessages      int            `json:"totalMessages"`
	TotalUsers         int            `json:"totalUsers"`
	IntentDistribution map[string]int `json:"intentDistribution"`
	ImageCount         int            `json:"imageCount"`
	ErrorCount         int            `json:"errorCount"`
	DateRange          *DateRange     `json:"dateRange,omitempty"`
}

// timestampLayouts is tried in order; day-first forms come after RFC3339.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02-01-2006 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", domain.ErrInvalidArgument, s)
}

var mealSummaryIndicators = []string{
	"meal summary",
	"calories",
	"protein",
	"carbs",
	"nutritional breakdown",
}

func isMealSummaryText(msg string) bool {
	lower := strings.ToLower(msg)
	for _, ind := range mealSummaryIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// LoadCSV parses a conversation export. The header row names the columns;
// unknown columns are ignored and missing optional columns default empty.
func LoadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("op=loader.csv: %w: missing header", domain.ErrInvalidArgument)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["thread_id"]; !ok {
		return nil, fmt.Errorf("op=loader.csv: %w: thread_id column required", domain.ErrInvalidArgument)
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	byThread := map[string][]ChatMessage{}
	var order []string
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("op=loader.csv: line %d: %w", line, err)
		}
		msg := ChatMessage{
			ThreadID:          field(row, "thread_id"),
			UserID:            field(row, "user_id"),
			Sender:            field(row, "sender"),
			Message:           field(row, "message"),
			Intent:            field(row, "intent"),
			ExpectedIntent:    field(row, "expected_intent"),
			QueryType:         field(row, "query_type"),
			ExpectedQueryType: field(row, "expected_query_type"),
			Agent:             field(row, "agent"),
			Error:             field(row, "error"),
		}
		if msg.ThreadID == "" {
			continue
		}
		if ts := field(row, "timestamp"); ts != "" {
			parsed, err := parseTimestamp(ts)
			if err != nil {
				return nil, fmt.Errorf("op=loader.csv: line %d: %w", line, err)
			}
			msg.Timestamp = parsed
		}
		switch strings.ToLower(field(row, "has_image")) {
		case "true", "1", "yes":
			msg.HasImage = true
		}
		if _, seen := byThread[msg.ThreadID]; !seen {
			order = append(order, msg.ThreadID)
		}
		byThread[msg.ThreadID] = append(byThread[msg.ThreadID], msg)
	}

	ds := &Dataset{threads: make(map[string]ConversationThread, len(byThread)), order: order}
	for _, id := range order {
		ds.threads[id] = buildThread(id, byThread[id])
	}
	return ds, nil
}

// buildThread sorts messages by time and computes the derived fields.
func buildThread(id string, msgs []ChatMessage) ConversationThread {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	t := ConversationThread{ThreadID: id, Messages: msgs}
	if len(msgs) > 1 {
		t.DurationSeconds = msgs[len(msgs)-1].Timestamp.Sub(msgs[0].Timestamp).Seconds()
	}
	for _, m := range msgs {
		if m.Error != "" {
			t.HasErrors = true
		}
		if isMealSummaryText(m.Message) {
			t.IsMealSummary = true
		}
	}
	last := strings.ToLower(msgs[len(msgs)-1].Message)
	t.IsSuccessful = strings.Contains(last, "successfully") || strings.Contains(last, "logged")
	return t
}

// ThreadIDs returns the thread ids in first-seen order.
func (d *Dataset) ThreadIDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Thread returns one thread by id.
func (d *Dataset) Thread(id string) (ConversationThread, bool) {
	t, ok := d.threads[id]
	return t, ok
}

// Statistics computes the dataset summary.
func (d *Dataset) Statistics() Statistics {
	stats := Statistics{
		TotalThreads:       len(d.order),
		IntentDistribution: map[string]int{},
	}
	users := map[string]bool{}
	var from, to time.Time
	for _, id := range d.order {
		t := d.threads[id]
		stats.TotalMessages += len(t.Messages)
		for _, m := range t.Messages {
			if m.UserID != "" {
				users[m.UserID] = true
			}
			if m.Intent != "" {
				stats.IntentDistribution[m.Intent]++
			}
			if m.HasImage {
				stats.ImageCount++
			}
			if m.Error != "" {
				stats.ErrorCount++
			}
			if !m.Timestamp.IsZero() {
				if from.IsZero() || m.Timestamp.Before(from) {
					from = m.Timestamp
				}
				if m.Timestamp.After(to) {
					to = m.Timestamp
				}
			}
		}
	}
	stats.TotalUsers = len(users)
	if !from.IsZero() {
		stats.DateRange = &DateRange{From: from, To: to}
	}
	return stats
}
