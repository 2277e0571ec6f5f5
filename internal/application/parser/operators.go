package parser

import "github.com/YoshitsuguKoike/gatechain/internal/domain/chain"

// Kind discriminates symbolic operators
type Kind string

const (
	KindChain       Kind = "chain"
	KindGate        Kind = "gate"
	KindFramework   Kind = "framework"
	KindStyle       Kind = "style"
	KindParallel    Kind = "parallel"
	KindConditional Kind = "conditional"
)

// OperatorSpec is one row of the operator table. Detectors run in ascending
// Precedence; repetition is expanded before any of them.
type OperatorSpec struct {
	Kind        Kind
	Symbol      string
	Description string
	Precedence  int
	detect      func(w *workspace) (Operator, bool)
}

// operatorTable drives detection. Add new operators here.
var operatorTable = []OperatorSpec{
	{KindGate, "::", "Quality gate for validation", 20, detectGate},
	{KindFramework, "@", "Apply methodology framework", 30, detectFramework},
	{KindStyle, "#", "Response formatting style", 40, detectStyle},
	{KindConditional, "?", "Conditional branch (parsed, not executed)", 50, detectConditional},
	{KindChain, "-->", "Sequential execution of prompts", 60, detectChain},
	{KindParallel, "+", "Unordered prompt set (parsed, not executed)", 70, detectParallel},
}

// Operators returns a copy of the operator table without detectors
func Operators() []OperatorSpec {
	out := make([]OperatorSpec, len(operatorTable))
	for i, spec := range operatorTable {
		spec.detect = nil
		out[i] = spec
	}
	return out
}

// Operator is a tagged union; exactly the field matching Kind is set
type Operator struct {
	Kind        Kind                 `json:"kind"`
	Chain       *ChainOperator       `json:"chain,omitempty"`
	Gate        *GateOperator        `json:"gate,omitempty"`
	Framework   *FrameworkOperator   `json:"framework,omitempty"`
	Style       *StyleOperator       `json:"style,omitempty"`
	Parallel    *ParallelOperator    `json:"parallel,omitempty"`
	Conditional *ConditionalOperator `json:"conditional,omitempty"`
}

// ChainStep is one positional step of a chain
type ChainStep struct {
	PromptID string `json:"promptId"`
	Args     string `json:"args,omitempty"`
}

type ChainOperator struct {
	Steps []ChainStep `json:"steps"`
}

// NamedCriteria is a gate clause of the form id:"criteria"
type NamedCriteria struct {
	ID       string   `json:"id"`
	Criteria []string `json:"criteria"`
}

// GateOperator merges every gate clause of a command
type GateOperator struct {
	Criteria   []string            `json:"criteria,omitempty"`
	GateIDs    []string            `json:"gateIds,omitempty"`
	Named      []NamedCriteria     `json:"named,omitempty"`
	Scope      string              `json:"scope"`
	RetryLimit int                 `json:"retryLimit,omitempty"`
	Verify     *chain.VerifyConfig `json:"verify,omitempty"`
}

// Gate scopes
const (
	ScopeExecution = "execution"
	ScopeChain     = "chain"
)

type FrameworkOperator struct {
	Name string `json:"name"`
}

type StyleOperator struct {
	Name string `json:"name"`
}

type ParallelOperator struct {
	Prompts []ChainStep `json:"prompts"`
}

type ConditionalOperator struct {
	Condition string `json:"condition"`
	Target    string `json:"target"`
}

// Complexity is a planning hint derived from operator count
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

func complexityFor(n int) Complexity {
	switch {
	case n <= 1:
		return ComplexitySimple
	case n == 2:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}
