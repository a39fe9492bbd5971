package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractStructured(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{name: "pure object", in: `{"facts": ["fact1", "fact2"]}`, want: map[string]any{"facts": []any{"fact1", "fact2"}}},
		{name: "prose prefix", in: "Here is the output:\n{\"facts\": [\"fact1\"]}", want: map[string]any{"facts": []any{"fact1"}}},
		{name: "prose suffix", in: "{\"facts\": [\"fact1\"]}\nDone!", want: map[string]any{"facts": []any{"fact1"}}},
		{name: "prefix and suffix", in: "Output: {\"facts\": [\"fact1\"]}\nComplete!", want: map[string]any{"facts": []any{"fact1"}}},
		{name: "empty facts after explanation", in: "Since the input is not clear, I will return an empty list.\n\nOutput: {\"facts\": []}", want: map[string]any{"facts": []any{}}},
		{
			name: "nested object",
			in:   `{"facts": [{"text": "fact1", "confidence": 0.9}]}`,
			want: map[string]any{"facts": []any{map[string]any{"text": "fact1", "confidence": json.Number("0.9")}}},
		},
		{name: "top-level array", in: `Result: ["fact1", "fact2", "fact3"]`, want: []any{"fact1", "fact2", "fact3"}},
		{name: "scans past invalid candidate", in: `{"invalid": } {"facts": ["fact1"]}`, want: map[string]any{"facts": []any{"fact1"}}},
		{name: "surrounding whitespace", in: "  \n  {\"facts\": [\"fact1\"]}  \n  ", want: map[string]any{"facts": []any{"fact1"}}},
		{name: "plain text", in: "This is just plain text without any JSON", want: nil},
		{name: "empty", in: "", want: nil},
		{name: "whitespace only", in: "   \n\t", want: nil},
		{name: "unterminated", in: `{"invalid json}`, want: nil},
		{name: "bare number", in: `42`, want: nil},
		{name: "bare string", in: `"text"`, want: nil},
		{name: "bare bool", in: `true`, want: nil},
		{name: "null", in: `null`, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractStructured(tt.in))
		})
	}
}

func TestExtractStructured_RoundTrip(t *testing.T) {
	values := []any{
		map[string]any{"facts": []any{"a", "b"}},
		map[string]any{"n": json.Number("12"), "ok": true, "nested": map[string]any{"x": nil}},
		[]any{"x", json.Number("1.5"), []any{}},
	}
	for _, v := range values {
		encoded, err := json.Marshal(v)
		assert.NoError(t, err)
		assert.Equal(t, v, ExtractStructured(string(encoded)))
		assert.Equal(t, v, ExtractStructured("some prose "+string(encoded)+" more prose"))
	}
}

func TestExtractWithFallback(t *testing.T) {
	assert.Equal(t, map[string]any{}, ExtractWithFallback("No JSON here", nil))

	fallback := map[string]any{"facts": []any{}}
	assert.Equal(t, fallback, ExtractWithFallback("No JSON here", fallback))

	assert.Equal(t,
		map[string]any{"facts": []any{"fact1"}},
		ExtractWithFallback(`{"facts": ["fact1"]}`, fallback))
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Output: some content", "some content"},
		{"Result: some content", "some content"},
		{"some content Done!", "some content"},
		{"output: some content", "some content"},
		{"Here's the result: x Finished!", "x"},
		{"some content", "some content"},
		{"", ""},
		{"  Output:   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanResponse(tt.in), "input %q", tt.in)
	}
}

func TestExtractFacts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "facts array", in: `{"facts": ["fact1", "fact2", "fact3"]}`, want: []string{"fact1", "fact2", "fact3"}},
		{name: "empty facts", in: `{"facts": []}`, want: []string{}},
		{name: "extra text", in: "Since the input is not clear, I will return an empty list.\n\nOutput: {\"facts\": []}", want: []string{}},
		{name: "alternative key", in: `{"items": ["item1", "item2"]}`, want: []string{"item1", "item2"}},
		{name: "results key", in: `{"results": ["r"]}`, want: []string{"r"}},
		{name: "key priority", in: `{"items": ["i"], "facts": ["f"]}`, want: []string{"f"}},
		{name: "single string", in: `{"facts": "single fact"}`, want: []string{"single fact"}},
		{name: "empty string value", in: `{"facts": "", "items": ["i"]}`, want: []string{}},
		{name: "non list value is skipped", in: `{"facts": null, "items": ["i"]}`, want: []string{"i"}},
		{name: "object value is skipped", in: `{"facts": {"a": 1}, "fact": "f"}`, want: []string{"f"}},
		{name: "no json", in: "No JSON here", want: []string{}},
		{name: "filters falsy", in: `{"facts": ["fact1", "", "fact2", null, "fact3", 0, false, [], {}]}`, want: []string{"fact1", "fact2", "fact3"}},
		{name: "stringifies", in: `{"facts": [123, true, "text", 1.5]}`, want: []string{"123", "true", "text", "1.5"}},
		{name: "nested as json", in: `{"facts": [{"text": "a<b"}, ["x"]]}`, want: []string{`{"text":"a<b"}`, `["x"]`}},
		{name: "top-level array", in: `["fact1", "fact2"]`, want: []string{}},
		{name: "unknown keys", in: `{"memories": ["m"]}`, want: []string{}},
		{name: "top-level scalar", in: `42`, want: []string{}},
		{
			name: "real world with facts",
			in:   "Here are the extracted facts:\n\nOutput: {\"facts\": [\"User loves programming in Python\", \"User is learning AI\"]}\n\nDone!",
			want: []string{"User loves programming in Python", "User is learning AI"},
		},
		{
			name: "real world empty",
			in:   "Since the input is not clear or grammatically correct, I will return an empty list.\n\nOutput: {\"facts\" : []}",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFacts(tt.in))
		})
	}
}

func TestExtractFacts_GracefulDegradation(t *testing.T) {
	for _, in := range []string{"", "Just text", `{"invalid json}`, `{"facts": null}`, "{{{{", "]]", `{"facts": [`} {
		got := ExtractFacts(in)
		assert.NotNil(t, got, "input %q", in)
		assert.Empty(t, got, "input %q", in)
	}
}

func TestExtractFacts_NeverReturnsEmptyStrings(t *testing.T) {
	inputs := []string{
		`{"facts": ["a", "", " ", null]}`,
		`{"fact": [0.0, -0, "0"]}`,
		`{"items": [[], [""], {}, {"k": ""}]}`,
	}
	for _, in := range inputs {
		for _, f := range ExtractFacts(in) {
			assert.NotEmpty(t, f, "input %q", in)
		}
	}
	assert.Equal(t, []string{"0"}, ExtractFacts(`{"fact": [0.0, -0, "0"]}`))
}
