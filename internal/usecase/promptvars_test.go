package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

func TestResolvePrompt_NamedTokens(t *testing.T) {
	pc := PromptContext{
		Transcript:   "patient reports fever",
		LanguageHint: "hindi",
	}
	got := ResolvePrompt("T: {{transcript}} L: {{ language_hint }} S: {{script_preference}}", pc)

	assert.Equal(t, "T: patient reports fever L: hindi S: {{script_preference}}", got.Prompt)
	assert.Equal(t, []string{"language_hint", "transcript"}, got.Resolved)
	assert.Equal(t, []string{"script_preference"}, got.Unresolved)
}

func TestResolvePrompt_AudioStaysUnresolved(t *testing.T) {
	got := ResolvePrompt("Listen: {{audio}}", PromptContext{Transcript: "x"})
	assert.Equal(t, "Listen: {{audio}}", got.Prompt)
	assert.Equal(t, []string{"audio"}, got.Unresolved)
}

func TestResolvePrompt_SegmentTokensGatedOnHasSegments(t *testing.T) {
	prompt := "{{segment_count}} segments from {{speaker_list}} across {{time_windows}}"

	off := ResolvePrompt(prompt, PromptContext{SegmentCount: 3, SpeakerList: []string{"a"}})
	assert.Len(t, off.Unresolved, 3)

	on := ResolvePrompt(prompt, PromptContext{
		HasSegments:  true,
		SegmentCount: 2,
		SpeakerList:  []string{"Doctor", "Patient"},
		TimeWindows:  []string{"0:00-0:30", "0:30-1:00"},
	})
	assert.Equal(t, "2 segments from Doctor, Patient across 0:00-0:30, 0:30-1:00", on.Prompt)
	assert.Empty(t, on.Unresolved)
}

func TestResolvePrompt_JSONTokens(t *testing.T) {
	pc := PromptContext{
		APIResponse: map[string]any{"intent": "log_meal"},
		APIRx:       map[string]any{"medications": []any{}},
	}
	got := ResolvePrompt("{{structured_output}} / {{api_rx}} / {{llm_structured}}", pc)
	assert.Contains(t, got.Prompt, `{"intent":"log_meal"}`)
	assert.Contains(t, got.Prompt, `{"medications":[]}`)
	assert.Equal(t, []string{"llm_structured"}, got.Unresolved)
}

func TestResolvePrompt_DottedPathFallback(t *testing.T) {
	pc := PromptContext{
		APIResponse: map[string]any{
			"rx": map[string]any{"followUp": "2 weeks"},
		},
	}
	got := ResolvePrompt("Follow up: {{rx.followUp}}; missing: {{rx.advice}}", pc)
	assert.Equal(t, "Follow up: 2 weeks; missing: {{rx.advice}}", got.Prompt)
	assert.Equal(t, []string{"rx.followUp"}, got.Resolved)
	assert.Equal(t, []string{"rx.advice"}, got.Unresolved)
}

func TestResolvePrompt_DottedPathStopsAtNonObject(t *testing.T) {
	pc := PromptContext{APIResponse: map[string]any{"rx": "flat string"}}
	got := ResolvePrompt("{{rx.followUp}}", pc)
	assert.Equal(t, []string{"rx.followUp"}, got.Unresolved)
}

func TestResolvePrompt_RepeatedTokenCountedOnce(t *testing.T) {
	got := ResolvePrompt("{{transcript}} and {{transcript}}", PromptContext{Transcript: "x"})
	assert.Equal(t, "x and x", got.Prompt)
	assert.Equal(t, []string{"transcript"}, got.Resolved)
}

func TestFormatChatTranscript(t *testing.T) {
	msgs := []domain.SessionMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "USER", Content: "bye"},
	}
	assert.Equal(t, "User: hi\nBot: hello\nUser: bye", FormatChatTranscript(msgs))
	assert.Equal(t, "", FormatChatTranscript(nil))
}

func TestResolvePrompt_ChatTranscriptToken(t *testing.T) {
	pc := PromptContext{ChatMessages: []domain.SessionMessage{
		{Role: "user", Content: "how many calories in rice"},
		{Role: "bot", Content: "about 130 per 100g cooked"},
	}}
	got := ResolvePrompt("{{chat_transcript}}", pc)
	assert.Equal(t, "User: how many calories in rice\nBot: about 130 per 100g cooked", got.Prompt)
}
