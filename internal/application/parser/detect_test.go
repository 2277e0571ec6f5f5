package parser

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectOperators_ChainWithMergedGate(t *testing.T) {
	res := DetectOperators(`>>research topic="AI" --> >>summarize :: "conciseness, accuracy"`)

	require.True(t, res.HasOperators)
	assert.Equal(t, []Kind{KindGate, KindChain}, res.OperatorTypes)
	assert.Equal(t, ComplexityModerate, res.Complexity)

	plan := GenerateExecutionPlan(res)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "research", plan.Steps[0].PromptID)
	assert.Equal(t, `topic="AI"`, plan.Steps[0].Args)
	assert.Equal(t, "AI", plan.Steps[0].ArgMap["topic"])
	assert.Equal(t, "summarize", plan.Steps[1].PromptID)
	assert.Equal(t, []int{}, plan.Steps[0].Dependencies)
	assert.Equal(t, []int{0}, plan.Steps[1].Dependencies)

	require.NotNil(t, plan.FinalValidation)
	assert.Equal(t, []string{"conciseness", "accuracy"}, plan.FinalValidation.Criteria)
	assert.Equal(t, ScopeChain, plan.FinalValidation.Scope)
}

func TestDetectOperators_QuotedDelimitersAreNotSplit(t *testing.T) {
	res := DetectOperators(`>>explain text="a --> b :: c @x #y" --> >>review`)

	op, ok := res.Operator(KindChain)
	require.True(t, ok)
	require.Len(t, op.Chain.Steps, 2)
	assert.Equal(t, `text="a --> b :: c @x #y"`, op.Chain.Steps[0].Args)

	_, hasGate := res.Operator(KindGate)
	_, hasFramework := res.Operator(KindFramework)
	_, hasStyle := res.Operator(KindStyle)
	assert.False(t, hasGate)
	assert.False(t, hasFramework)
	assert.False(t, hasStyle)
}

func TestDetectOperators_ApostropheInWordIsText(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		wantArgs []string
	}{
		{"Chain after apostrophe", `>>research what's new --> >>summarize`, []string{"what's new", ""}},
		{"Quoted value after apostrophe", `>>research it's 'still quoted --> here' --> >>summarize`, []string{"it's 'still quoted --> here'", ""}},
		{"Unterminated quote is literal", `>>research "open --> >>summarize`, []string{`"open`, ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := GenerateExecutionPlan(DetectOperators(tt.command))
			var got []string
			for _, s := range plan.Steps {
				got = append(got, s.Args)
			}
			assert.Equal(t, tt.wantArgs, got)
		})
	}

	res := DetectOperators(`>>review don't rush :: "tests pass" #concise`)
	g, ok := res.Operator(KindGate)
	require.True(t, ok)
	assert.Equal(t, []string{"tests pass"}, g.Gate.Criteria)
	_, ok = res.Operator(KindStyle)
	assert.True(t, ok)
}

func TestDetectOperators_BareEqualsNeedsGateClause(t *testing.T) {
	res := DetectOperators(`>>calc x = 5`)
	_, hasGate := res.Operator(KindGate)
	assert.False(t, hasGate)
	plan := GenerateExecutionPlan(res)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "x = 5", plan.Steps[0].Args)

	tests := []struct {
		name     string
		command  string
		criteria []string
		gateIDs  []string
	}{
		{"Quoted criteria", `>>a = "concise"`, []string{"concise"}, nil},
		{"Named criteria", `>>a = tone:"friendly"`, []string{"friendly"}, nil},
		{"Gate reference", `>>a = code-quality`, nil, []string{"code-quality"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, ok := DetectOperators(tt.command).Operator(KindGate)
			require.True(t, ok)
			if tt.criteria != nil {
				assert.Equal(t, tt.criteria, g.Gate.Criteria)
			}
			if tt.gateIDs != nil {
				assert.Equal(t, tt.gateIDs, g.Gate.GateIDs)
			}
		})
	}
}

func TestDetectOperators_Repetition(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"Single prompt repeated", ">>a * 3", []string{"a", "a", "a"}},
		{"Repeated then chained", ">>a * 2 --> >>b", []string{"a", "a", "b"}},
		{"Glued count", ">>a *2", []string{"a", "a"}},
		{"Args repeated", `>>a x="1" * 2`, []string{"a", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := DetectOperators(tt.command)
			op, ok := res.Operator(KindChain)
			require.True(t, ok)
			var got []string
			for _, s := range op.Chain.Steps {
				got = append(got, s.PromptID)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, res.Repetitions)
		})
	}

	res := DetectOperators(">>a * 50")
	_, ok := res.Operator(KindChain)
	assert.False(t, ok)
	assert.NotEmpty(t, res.Warnings)
}

func TestDetectOperators_FrameworkStyleConditional(t *testing.T) {
	res := DetectOperators(`@CAGEERF #analytical >>analyze code="x" ? "has errors" : >>fix`)

	assert.Equal(t, ComplexityComplex, res.Complexity)
	fw, ok := res.Operator(KindFramework)
	require.True(t, ok)
	assert.Equal(t, "CAGEERF", fw.Framework.Name)

	st, ok := res.Operator(KindStyle)
	require.True(t, ok)
	assert.Equal(t, "analytical", st.Style.Name)

	cond, ok := res.Operator(KindConditional)
	require.True(t, ok)
	assert.Equal(t, "has errors", cond.Conditional.Condition)
	assert.Equal(t, "fix", cond.Conditional.Target)

	assert.Equal(t, `>>analyze code="x"`, res.Cleaned)
	plan := GenerateExecutionPlan(res)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "CAGEERF", plan.FrameworkOverride)
	assert.Equal(t, "analytical", plan.Style)
}

func TestDetectOperators_FrameworkAfterGateStaysFramework(t *testing.T) {
	res := DetectOperators(`>>a :: "tests pass" @ReACT`)
	fw, ok := res.Operator(KindFramework)
	require.True(t, ok)
	assert.Equal(t, "ReACT", fw.Framework.Name)

	g, ok := res.Operator(KindGate)
	require.True(t, ok)
	assert.Equal(t, []string{"tests pass"}, g.Gate.Criteria)
	assert.Empty(t, g.Gate.GateIDs)
}

func TestDetectOperators_GateClauseForms(t *testing.T) {
	res := DetectOperators(`>>a :: security:'no secrets | no eval' :: code-quality = "readable and tested" :: retries:4`)
	op, ok := res.Operator(KindGate)
	require.True(t, ok)

	want := GateOperator{
		Criteria:   []string{"no secrets", "no eval", "readable", "tested"},
		GateIDs:    []string{"code-quality"},
		Named:      []NamedCriteria{{ID: "security", Criteria: []string{"no secrets", "no eval"}}},
		Scope:      ScopeExecution,
		RetryLimit: 4,
	}
	if diff := cmp.Diff(want, *op.Gate); diff != "" {
		t.Errorf("gate mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, ">>a", res.Cleaned)
}

func TestDetectOperators_ShellVerify(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		wantMax  int
		wantTime time.Duration
		loop     bool
	}{
		{"Defaults", `>>fix :: verify:"npm test"`, 5, 5 * time.Minute, false},
		{"Fast preset", `>>fix :: verify:"npm test" :fast`, 1, 30 * time.Second, false},
		{"Extended preset", `>>fix :: verify:"npm test" :extended loop:true`, 10, 10 * time.Minute, true},
		{"Explicit overrides preset", `>>fix :: verify:'go test ./...' max:3 :full timeout:60`, 3, time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ok := DetectOperators(tt.command).Operator(KindGate)
			require.True(t, ok)
			require.NotNil(t, op.Gate.Verify)
			assert.Equal(t, tt.wantMax, op.Gate.Verify.EffectiveMaxIterations())
			assert.Equal(t, tt.wantTime, op.Gate.Verify.EffectiveTimeout())
			assert.Equal(t, tt.loop, op.Gate.Verify.Loop)
			assert.NotEmpty(t, op.Gate.Verify.Command)
		})
	}

	op, _ := DetectOperators(`>>fix :: verify:"make" checkpoint:true rollback:true dir:/tmp/w`).Operator(KindGate)
	require.NotNil(t, op.Gate.Verify)
	assert.Equal(t, "make", op.Gate.Verify.Command)
	assert.True(t, op.Gate.Verify.Checkpoint)
	assert.True(t, op.Gate.Verify.Rollback)
	assert.Equal(t, "/tmp/w", op.Gate.Verify.WorkingDir)
}

func TestDetectOperators_Parallel(t *testing.T) {
	res := DetectOperators(">>a x=1 + >>b")
	op, ok := res.Operator(KindParallel)
	require.True(t, ok)
	assert.Equal(t, []ChainStep{{PromptID: "a", Args: "x=1"}, {PromptID: "b"}}, op.Parallel.Prompts)

	res = DetectOperators(">>a + >>b --> >>c")
	_, ok = res.Operator(KindParallel)
	assert.False(t, ok, "parallel is only recognized without a chain")
}

func TestDetectOperators_PlainCommand(t *testing.T) {
	res := DetectOperators(`>>research topic="x"`)
	assert.False(t, res.HasOperators)
	assert.Equal(t, ComplexitySimple, res.Complexity)
	assert.Empty(t, DetectOperators("   ").Operators)
}
