package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/memory"
)

func newTestContext(policy LossPolicy) *Context {
	return NewContext(policy, memory.NewLifoResource(memory.NewPagePool()))
}

func TestLikeBasics(t *testing.T) {
	ctx := newTestContext(LossError)
	cases := []struct {
		input, pattern string
		want           bool
	}{
		{"abcde", "a%de", true},
		{"abc", "abc%%%", true},
		{"abcde", "abc", false},
		{"abc", "", false},
		{"", "", true},
		{"", "%", true},
		{"abc", "abc", true},
		{"abc", "a_c", true},
		{"abc", "a_d", false},
		{"abc", "_bc", true},
		{"abc", "____", false},
		{"abc", "___", true},
		{"aXbXc", "a%b%c", true},
		{"mississippi", "%iss%ppi", true},
		{"mississippi", "%iss%ppx", false},
		{"abc", "%c", true},
		{"abc", "a%", true},
		{"abc", "%b%", true},
	}
	for _, tc := range cases {
		v := EvaluateLike(ctx, tc.input, tc.pattern, "\\")
		assert.True(t, v.Valid(), "LIKE(%q, %q)", tc.input, tc.pattern)
		assert.Equal(t, tc.want, v.Bool(), "LIKE(%q, %q)", tc.input, tc.pattern)
	}
}

func TestLikeEscapes(t *testing.T) {
	ctx := newTestContext(LossError)

	// escaped wildcards match literally
	v := EvaluateLike(ctx, "50%", "50\\%", "\\")
	assert.True(t, v.Bool())
	v = EvaluateLike(ctx, "505", "50\\%", "\\")
	assert.False(t, v.Bool())
	v = EvaluateLike(ctx, "a_b", "a\\_b", "\\")
	assert.True(t, v.Bool())
	v = EvaluateLike(ctx, "axb", "a\\_b", "\\")
	assert.False(t, v.Bool())

	// the escape character escapes itself
	v = EvaluateLike(ctx, "a\\b", "a\\\\b", "\\")
	assert.True(t, v.Bool())

	// empty escape disables escaping
	v = EvaluateLike(ctx, "505", "50%", "")
	assert.True(t, v.Bool())
}

func TestLikeInvalidInput(t *testing.T) {
	ctx := newTestContext(LossError)

	// a pattern equal to the escape character
	v := EvaluateLike(ctx, "x", "%", "%")
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorInvalidInputValue, v.ErrorKind())

	// a trailing unescaped escape
	v = EvaluateLike(ctx, "x", "ab\\", "\\")
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorInvalidInputValue, v.ErrorKind())

	// a multi-character escape string
	v = EvaluateLike(ctx, "x", "a", "ab")
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorInvalidInputValue, v.ErrorKind())
}

func TestLikeInvalidUTF8YieldsNull(t *testing.T) {
	ctx := newTestContext(LossError)
	bad := string([]byte{0xFF, 0xFE})

	v := EvaluateLike(ctx, bad, "%", "\\")
	assert.True(t, v.Empty())

	v = EvaluateLike(ctx, "abc", bad, "\\")
	assert.True(t, v.Empty())
}

func TestLikeUnicodeUnits(t *testing.T) {
	ctx := newTestContext(LossError)

	// one underscore consumes one multi-byte character
	v := EvaluateLike(ctx, "日本", "_本", "\\")
	assert.True(t, v.Bool())
	v = EvaluateLike(ctx, "日本", "__", "\\")
	assert.True(t, v.Bool())
	v = EvaluateLike(ctx, "日本", "___", "\\")
	assert.False(t, v.Bool())

	// backtracking advances in character units
	v = EvaluateLike(ctx, "日本語日本", "%日本", "\\")
	assert.True(t, v.Bool())
}
