package usecase

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ComparisonEntry is one row of the prescription comparison table injected
// into the critique prompt.
type ComparisonEntry struct {
	FieldPath  string `json:"fieldPath"`
	APIValue   string `json:"apiValue"`
	JudgeValue string `json:"judgeValue"`
	MatchHint  string `json:"matchHint"`
	ItemName   string `json:"itemName,omitempty"`
}

// Match hints.
const (
	HintMatch     = "match"
	HintMismatch  = "mismatch"
	HintAPIOnly   = "api_only"
	HintJudgeOnly = "judge_only"
)

const emptyValue = "(empty)"
const notFoundValue = "(not found)"

// arrayFieldKeys maps each array field onto the sub-key its items are
// matched by.
var arrayFieldKeys = map[string]string{
	"medications":      "name",
	"symptoms":         "name",
	"diagnosis":        "name",
	"medicalHistory":   "name",
	"labResults":       "testname",
	"labInvestigation": "testname",
}

var arrayFieldOrder = []string{
	"medications", "symptoms", "diagnosis", "medicalHistory", "labResults", "labInvestigation",
}

var objectFields = []string{"vitalsAndBodyComposition"}

var scalarFields = []string{"followUp"}

var stringArrayFields = []string{"advice"}

// CompareRx walks both prescription trees and emits a flat ordered list of
// field-level comparisons. API-side values drive ordering; judge-only items
// trail their field's API items.
func CompareRx(apiRx, judgeRx map[string]any) []ComparisonEntry {
	var out []ComparisonEntry
	for _, field := range arrayFieldOrder {
		out = append(out, compareArrayField(field, arrayFieldKeys[field], apiRx[field], judgeRx[field])...)
	}
	for _, field := range objectFields {
		out = append(out, compareObjectField(field, apiRx[field], judgeRx[field])...)
	}
	for _, field := range scalarFields {
		if _, inAPI := apiRx[field]; !inAPI {
			if _, inJudge := judgeRx[field]; !inJudge {
				continue
			}
		}
		out = append(out, entry("rx."+field, apiRx[field], judgeRx[field], ""))
	}
	for _, field := range stringArrayFields {
		out = append(out, compareStringArray(field, apiRx[field], judgeRx[field])...)
	}
	return out
}

// normalizeKey lowercases and strips whitespace so "Vitamin D" and
// "vitamin d" line up.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), "")
}

func asItemList(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	items := make([]map[string]any, 0, len(raw))
	for _, it := range raw {
		if m, ok := it.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}

func itemKey(item map[string]any, keyField string) string {
	if s, ok := item[keyField].(string); ok {
		return normalizeKey(s)
	}
	return ""
}

func itemName(item map[string]any, keyField string) string {
	if s, ok := item[keyField].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func compareArrayField(field, keyField string, apiVal, judgeVal any) []ComparisonEntry {
	apiItems := asItemList(apiVal)
	judgeItems := asItemList(judgeVal)
	if len(apiItems) == 0 && len(judgeItems) == 0 {
		return nil
	}

	judgeByKey := map[string]map[string]any{}
	var judgeOrder []string
	for _, it := range judgeItems {
		k := itemKey(it, keyField)
		if k == "" {
			continue
		}
		if _, dup := judgeByKey[k]; !dup {
			judgeByKey[k] = it
			judgeOrder = append(judgeOrder, k)
		}
	}

	var out []ComparisonEntry
	seen := map[string]bool{}
	for i, apiItem := range apiItems {
		k := itemKey(apiItem, keyField)
		name := itemName(apiItem, keyField)
		judgeItem, inJudge := judgeByKey[k]
		if k == "" || !inJudge {
			e := entry(fmt.Sprintf("rx.%s[%d]", field, i), apiItem, nil, name)
			e.MatchHint = HintAPIOnly
			e.JudgeValue = notFoundValue
			out = append(out, e)
			continue
		}
		seen[k] = true
		for _, sub := range unionKeys(apiItem, judgeItem) {
			e := entry(fmt.Sprintf("rx.%s[%d].%s", field, i, sub), apiItem[sub], judgeItem[sub], name)
			if sub == keyField {
				// the pair aligned on this key; casing or spacing
				// differences in it are not a mismatch
				e.MatchHint = HintMatch
			}
			out = append(out, e)
		}
	}
	for _, k := range judgeOrder {
		if seen[k] {
			continue
		}
		judgeItem := judgeByKey[k]
		name := itemName(judgeItem, keyField)
		e := entry(fmt.Sprintf("rx.%s[%s]", field, name), nil, judgeItem, name)
		e.MatchHint = HintJudgeOnly
		e.APIValue = notFoundValue
		out = append(out, e)
	}
	return out
}

func compareObjectField(field string, apiVal, judgeVal any) []ComparisonEntry {
	apiObj, _ := apiVal.(map[string]any)
	judgeObj, _ := judgeVal.(map[string]any)
	if apiObj == nil && judgeObj == nil {
		return nil
	}
	var out []ComparisonEntry
	for _, sub := range unionKeys(apiObj, judgeObj) {
		out = append(out, entry(fmt.Sprintf("rx.%s.%s", field, sub), apiObj[sub], judgeObj[sub], ""))
	}
	return out
}

func compareStringArray(field string, apiVal, judgeVal any) []ComparisonEntry {
	apiArr, _ := apiVal.([]any)
	judgeArr, _ := judgeVal.([]any)
	n := len(apiArr)
	if len(judgeArr) > n {
		n = len(judgeArr)
	}
	var out []ComparisonEntry
	for i := 0; i < n; i++ {
		var a, j any
		if i < len(apiArr) {
			a = apiArr[i]
		}
		if i < len(judgeArr) {
			j = judgeArr[i]
		}
		out = append(out, entry(fmt.Sprintf("rx.%s[%d]", field, i), a, j, ""))
	}
	return out
}

// unionKeys returns sorted API keys followed by sorted judge-only keys.
func unionKeys(api, judge map[string]any) []string {
	apiKeys := make([]string, 0, len(api))
	for k := range api {
		apiKeys = append(apiKeys, k)
	}
	sort.Strings(apiKeys)
	inAPI := map[string]bool{}
	for _, k := range apiKeys {
		inAPI[k] = true
	}
	var judgeOnly []string
	for k := range judge {
		if !inAPI[k] {
			judgeOnly = append(judgeOnly, k)
		}
	}
	sort.Strings(judgeOnly)
	return append(apiKeys, judgeOnly...)
}

func entry(path string, apiVal, judgeVal any, name string) ComparisonEntry {
	a := Stringify(apiVal)
	j := Stringify(judgeVal)
	hint := HintMatch
	if a != j {
		hint = HintMismatch
	}
	return ComparisonEntry{FieldPath: path, APIValue: a, JudgeValue: j, MatchHint: hint, ItemName: name}
}

// Stringify renders a comparison value: nil becomes "(empty)", strings are
// trimmed, composites serialize as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return emptyValue
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return emptyValue
		}
		return s
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return emptyValue
		}
		return string(b)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// FormatComparisonTable renders the entries as the text block the critique
// prompt embeds.
func FormatComparisonTable(entries []ComparisonEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.FieldPath)
		b.WriteString(" | api=")
		b.WriteString(e.APIValue)
		b.WriteString(" | judge=")
		b.WriteString(e.JudgeValue)
		b.WriteString(" | ")
		b.WriteString(e.MatchHint)
		b.WriteByte('\n')
	}
	return b.String()
}
