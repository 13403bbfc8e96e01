package postgres

import "encoding/json"

// jsonVal marshals a map for a jsonb column; nil maps become SQL NULL.
func jsonVal(m map[string]any) any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

// jsonValAny marshals any value for a jsonb column; nil becomes SQL NULL.
func jsonValAny(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// scanJSONMap unmarshals a jsonb column into a map; NULL yields nil.
func scanJSONMap(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// scanJSONSlice unmarshals a jsonb array column; NULL yields nil.
func scanJSONSlice(b []byte) []map[string]any {
	if len(b) == 0 {
		return nil
	}
	var s []map[string]any
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	return s
}
