package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// AudioToken stays unresolved during resolution; the runner swaps it for the
// attachment marker when audio is actually sent.
const AudioToken = "audio"

// AudioMarker is the text substituted for {{audio}} at call time.
const AudioMarker = "[Audio file attached]"

// PromptContext carries everything the resolver may substitute. Zero-valued
// members mark their tokens unavailable.
type PromptContext struct {
	Transcript            string
	LLMTranscript         string
	ChatMessages          []domain.SessionMessage
	ScriptPreference      string
	LanguageHint          string
	PreserveCodeSwitching string
	OriginalScript        string

	// Segment-only tokens.
	HasSegments  bool
	SegmentCount int
	SpeakerList  []string
	TimeWindows  []string

	// API-only tokens; APIResponse also backs dotted-path fallback.
	APIResponse   map[string]any
	APIInput      string
	APIRx         map[string]any
	LLMStructured map[string]any
}

// ResolvedPrompt is the resolver output. Unresolved tokens stay intact in
// Prompt so a human can see what was missing.
type ResolvedPrompt struct {
	Prompt     string   `json:"prompt"`
	Resolved   []string `json:"resolvedVariables"`
	Unresolved []string `json:"unresolvedVariables"`
}

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z0-9_]+)*)\s*\}\}`)

// ResolvePrompt substitutes {{ident}} and {{a.b.c}} tokens. Dotted paths
// not covered by a named token fall back to lookup in the API response.
func ResolvePrompt(prompt string, pc PromptContext) ResolvedPrompt {
	resolved := map[string]bool{}
	unresolved := map[string]bool{}

	out := tokenPattern.ReplaceAllStringFunc(prompt, func(tok string) string {
		name := tokenPattern.FindStringSubmatch(tok)[1]
		val, ok := pc.lookup(name)
		if !ok {
			unresolved[name] = true
			return tok
		}
		resolved[name] = true
		return val
	})

	return ResolvedPrompt{
		Prompt:     out,
		Resolved:   sortedKeys(resolved),
		Unresolved: sortedKeys(unresolved),
	}
}

func (pc PromptContext) lookup(name string) (string, bool) {
	switch name {
	case AudioToken:
		// left for the runner
		return "", false
	case "transcript":
		return nonEmpty(pc.Transcript)
	case "llm_transcript":
		return nonEmpty(pc.LLMTranscript)
	case "chat_transcript":
		if len(pc.ChatMessages) == 0 {
			return "", false
		}
		return FormatChatTranscript(pc.ChatMessages), true
	case "script_preference":
		return nonEmpty(pc.ScriptPreference)
	case "language_hint":
		return nonEmpty(pc.LanguageHint)
	case "preserve_code_switching":
		return nonEmpty(pc.PreserveCodeSwitching)
	case "original_script":
		return nonEmpty(pc.OriginalScript)
	case "segment_count":
		if !pc.HasSegments {
			return "", false
		}
		return fmt.Sprintf("%d", pc.SegmentCount), true
	case "speaker_list":
		if !pc.HasSegments {
			return "", false
		}
		return strings.Join(pc.SpeakerList, ", "), true
	case "time_windows":
		if !pc.HasSegments {
			return "", false
		}
		return strings.Join(pc.TimeWindows, ", "), true
	case "structured_output":
		return jsonToken(pc.APIResponse)
	case "api_input":
		return nonEmpty(pc.APIInput)
	case "api_rx":
		return jsonToken(pc.APIRx)
	case "llm_structured":
		return jsonToken(pc.LLMStructured)
	}
	if strings.Contains(name, ".") && pc.APIResponse != nil {
		if v, ok := lookupPath(pc.APIResponse, strings.Split(name, ".")); ok {
			return Stringify(v), true
		}
	}
	return "", false
}

// lookupPath walks nested maps by key sequence.
func lookupPath(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, seg := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// FormatChatTranscript renders an ordered message sequence as "User:"/"Bot:"
// lines.
func FormatChatTranscript(msgs []domain.SessionMessage) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		if strings.EqualFold(m.Role, "user") {
			b.WriteString("User: ")
		} else {
			b.WriteString("Bot: ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

func nonEmpty(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	return s, true
}

func jsonToken(m map[string]any) (string, bool) {
	if m == nil {
		return "", false
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
