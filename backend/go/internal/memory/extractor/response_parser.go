package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	// An object with at most one level of nested objects.
	objectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
	// An array with at most one level of nested arrays.
	arrayPattern = regexp.MustCompile(`\[[^\[\]]*(?:\[[^\[\]]*\][^\[\]]*)*\]`)
)

// factKeys are probed in this order on an object result.
var factKeys = []string{"facts", "fact", "items", "results"}

var (
	cleanPrefixes = []string{"Output:", "Result:", "Here is the output:", "Here's the result:", "The output is:"}
	cleanSuffixes = []string{"Done!", "Complete!", "Finished!"}
)

// ExtractStructured returns the first JSON object or array found in text, or nil.
//
// The whole trimmed text is tried first and kept only when it is an object or
// an array, then every object-shaped span left to right, then every
// array-shaped span. Numbers decode as json.Number.
func ExtractStructured(text string) any {
	if text == "" {
		return nil
	}
	if v, ok := decodeJSON(strings.TrimSpace(text)); ok && isContainer(v) {
		return v
	}
	for _, pattern := range []*regexp.Regexp{objectPattern, arrayPattern} {
		for _, candidate := range pattern.FindAllString(text, -1) {
			if v, ok := decodeJSON(candidate); ok {
				return v
			}
		}
	}
	return nil
}

// ExtractWithFallback is ExtractStructured with a default. A nil fallback
// means an empty object.
func ExtractWithFallback(text string, fallback any) any {
	if v := ExtractStructured(text); v != nil {
		return v
	}
	if fallback == nil {
		return map[string]any{}
	}
	return fallback
}

// ExtractFacts parses a model response into a list of non-empty facts.
// It never fails: anything it cannot interpret yields an empty list.
func ExtractFacts(text string) []string {
	obj, ok := ExtractStructured(text).(map[string]any)
	if !ok {
		return []string{}
	}
	for _, key := range factKeys {
		value, present := obj[key]
		if !present {
			continue
		}
		switch v := value.(type) {
		case []any:
			facts := make([]string, 0, len(v))
			for _, item := range v {
				if isFalsy(item) {
					continue
				}
				facts = append(facts, stringify(item))
			}
			return facts
		case string:
			if v == "" {
				return []string{}
			}
			return []string{v}
		}
	}
	return []string{}
}

// CleanResponse trims text and strips one well-known prefix and one
// well-known suffix, ignoring case.
func CleanResponse(text string) string {
	cleaned := strings.TrimSpace(text)
	for _, prefix := range cleanPrefixes {
		if len(cleaned) >= len(prefix) && strings.EqualFold(cleaned[:len(prefix)], prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
			break
		}
	}
	for _, suffix := range cleanSuffixes {
		if len(cleaned) >= len(suffix) && strings.EqualFold(cleaned[len(cleaned)-len(suffix):], suffix) {
			cleaned = strings.TrimSpace(cleaned[:len(cleaned)-len(suffix)])
			break
		}
	}
	return cleaned
}

// decodeJSON parses s as exactly one JSON value.
func decodeJSON(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return v, true
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		return err == nil && f == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}
