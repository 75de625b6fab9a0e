// Package jsonutil decodes agent-produced JSON, which sometimes arrives
// with double-escaped unicode sequences (e.g. "\\u003e") after passing
// through model output and transport layers.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// UnmarshalFlex unmarshals raw into v, falling back to unicode
// normalization when the direct decode fails.
func UnmarshalFlex(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err == nil {
		return nil
	}
	norm, err := normalize(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(norm, v)
}

// MarshalNoEscape encodes v without escaping <, > and & into < etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// normalize parses raw (unwrapping up to two levels of string quoting)
// and re-encodes it with unicode escapes resolved in every string value.
func normalize(raw []byte) ([]byte, error) {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.New("jsonutil: cannot parse payload")
	}
	// Payloads sometimes arrive as a quoted JSON string; unwrap up to two
	// levels of string quoting.
	for i := 0; i < 2; i++ {
		s, ok := parsed.(string)
		if !ok {
			break
		}
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			break
		}
		parsed = inner
	}
	return MarshalNoEscape(unescapeDeep(parsed))
}

func unescapeDeep(v any) any {
	switch x := v.(type) {
	case string:
		if s, err := unescapeString(x); err == nil {
			return s
		}
		return x
	case []any:
		for i := range x {
			x[i] = unescapeDeep(x[i])
		}
		return x
	case map[string]any:
		for k, vv := range x {
			x[k] = unescapeDeep(vv)
		}
		return x
	default:
		return v
	}
}

// unescapeString resolves literal ">"-style sequences left behind
// by double escaping, by round-tripping through a JSON string literal.
// Strings without such sequences pass through untouched.
func unescapeString(s string) (string, error) {
	if !strings.Contains(s, `\u`) {
		return s, nil
	}
	esc := strings.ReplaceAll(s, `"`, `\"`)
	var out string
	if err := json.Unmarshal([]byte(`"`+esc+`"`), &out); err != nil {
		return "", err
	}
	return out, nil
}
