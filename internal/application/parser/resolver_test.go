package parser

import (
	"strings"
	"testing"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	prompts []output.PromptInfo
}

func (c fakeCatalog) FindByID(id string) (*output.PromptInfo, bool) {
	for _, p := range c.prompts {
		if p.ID == id {
			p := p
			return &p, true
		}
	}
	return nil, false
}

func (c fakeCatalog) List() []output.PromptInfo { return c.prompts }

func newTestResolver() *Resolver {
	return NewResolver(fakeCatalog{prompts: []output.PromptInfo{
		{ID: "research", Name: "Deep Research"},
		{ID: "summarize", Name: "Summarize"},
		{ID: "code_review", Name: "Code Review"},
	}}, logging.NewNop())
}

func TestResolver_StrategySelection(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		strategy   string
		confidence float64
		steps      []string
	}{
		{"Symbolic chain", `>>research --> >>summarize`, "symbolic", 0.95, []string{"research", "summarize"}},
		{"Simple form", `>>Research topic="x"`, "simple", 0.9, []string{"research"}},
		{"Bare name", `summarize now`, "simple", 0.6, []string{"summarize"}},
		{"Display name match", `>>Deep-Research`, "simple", 0.9, []string{"research"}},
		{"JSON", `{"command": ">>summarize", "args": {"length": 3}}`, "json", 0.85, []string{"summarize"}},
		{"Double encoded JSON", `"{\"command\": \"code-review\"}"`, "json", 0.85, []string{"code_review"}},
		{"Builtin", `>>help`, "simple", 0.9, []string{"help"}},
	}
	r := newTestResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, res.Strategy)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
			var got []string
			for _, s := range res.Plan.Steps {
				got = append(got, s.PromptID)
			}
			assert.Equal(t, tt.steps, got)
		})
	}
}

func TestResolver_JSONArgsMerged(t *testing.T) {
	res, err := newTestResolver().Resolve(`{"command": ">>summarize style=short", "args": {"length": 3}}`)
	require.NoError(t, err)
	args := res.Plan.Steps[0].ArgMap
	assert.Equal(t, "short", args["style"])
	assert.Equal(t, float64(3), args["length"])
}

func TestResolver_Modifiers(t *testing.T) {
	r := newTestResolver()

	res, err := r.Resolve(`%judge >>research`)
	require.NoError(t, err)
	assert.Equal(t, ModifierJudge, res.Modifier)

	_, err = r.Resolve(`%bogus >>research`)
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindUnknownModifier, ve.Kind)
	assert.Contains(t, ve.ValidModifiers, "%clean")

	_, err = r.Resolve(`%clean %lean >>research`)
	ve, ok = AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindDuplicateModifier, ve.Kind)
}

func TestResolver_ValidationFailures(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve("   ")
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindEmptyCommand, ve.Kind)

	_, err = r.Resolve(">>reserch --> >>summarize")
	ve, ok = AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindUnknownPrompt, ve.Kind)
	require.NotEmpty(t, ve.Suggestions)
	assert.Equal(t, "research", ve.Suggestions[0])
	assert.LessOrEqual(t, len(ve.Suggestions), 3)
	assert.True(t, strings.Contains(ve.Error(), "did you mean"))

	_, err = r.Resolve(`{"args": {}}`)
	ve, ok = AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindMalformedJSON, ve.Kind)
}
