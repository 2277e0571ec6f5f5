package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Code-Review  ", "code_review"},
		{"list prompts", "list_prompts"},
		{"__a..b__", "a_b"},
		{"ＡＢＣ", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestSplitCriteria(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, SplitCriteria("a, b | c; d AND e"))
	assert.Equal(t, []string{"brand new"}, SplitCriteria("brand new"))
	assert.Empty(t, SplitCriteria(" , ;"))
}

func TestParseArgs(t *testing.T) {
	got := ParseArgs(`topic="AI research" depth='deep' n=3 free text`)
	assert.Equal(t, map[string]interface{}{
		"topic": "AI research",
		"depth": "deep",
		"n":     "3",
		"input": "free text",
	}, got)

	assert.Equal(t, map[string]interface{}{"input": "quoted whole"}, ParseArgs(`"quoted whole"`))
	assert.Empty(t, ParseArgs(""))
}

func TestSuggest(t *testing.T) {
	candidates := []string{"code_review", "code_generation", "summarize", "research", "status"}

	assert.Equal(t, []string{"code_generation", "code_review"}, Suggest("code", candidates, 3)[:2])
	assert.Equal(t, "summarize", Suggest("sumarize", candidates, 3)[0])
	assert.Equal(t, "research", Suggest("reserch", candidates, 3)[0])
	assert.Empty(t, Suggest("zzzzzzzzzz", candidates, 3))
	assert.LessOrEqual(t, len(Suggest("s", candidates, 3)), 3)
}
