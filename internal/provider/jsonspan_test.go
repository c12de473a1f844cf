package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`, true},
		{"first of two", `x {"a":1} y {"b":2}`, `{"a":1}`, true},
		{"brace in string", `{"a":"}{"} tail`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"say \"}\""}`, `{"a":"say \"}\""}`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"none", "no json here", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractJSONObject(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestExtractJSONArray(t *testing.T) {
	t.Parallel()

	got, ok := ExtractJSONArray(`Here: ["q1", "q[2]"] done`)
	assert.True(t, ok)
	assert.Equal(t, `["q1", "q[2]"]`, got)
}
