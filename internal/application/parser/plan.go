package parser

import "strings"

// ExecutionStep is one step of a strictly sequential plan
type ExecutionStep struct {
	StepNumber   int                    `json:"stepNumber"`
	PromptID     string                 `json:"promptId"`
	Args         string                 `json:"args,omitempty"`
	ArgMap       map[string]interface{} `json:"argMap,omitempty"`
	Dependencies []int                  `json:"dependencies"`
	Builtin      bool                   `json:"builtin,omitempty"`
}

// ExecutionPlan is the structured form of a command
type ExecutionPlan struct {
	Steps             []ExecutionStep      `json:"steps"`
	FrameworkOverride string               `json:"frameworkOverride,omitempty"`
	Style             string               `json:"style,omitempty"`
	FinalValidation   *GateOperator        `json:"finalValidation,omitempty"`
	Parallel          *ParallelOperator    `json:"parallel,omitempty"`
	Conditional       *ConditionalOperator `json:"conditional,omitempty"`
	Complexity        Complexity           `json:"complexity"`
}

// IsChain reports whether the plan has more than one step
func (p ExecutionPlan) IsChain() bool {
	return len(p.Steps) > 1
}

// GenerateExecutionPlan converts detected operators into ordered steps. Each
// step after the first depends on its predecessor's index.
func GenerateExecutionPlan(result DetectionResult) ExecutionPlan {
	plan := ExecutionPlan{Complexity: result.Complexity}

	var steps []ChainStep
	for _, op := range result.Operators {
		switch op.Kind {
		case KindChain:
			steps = op.Chain.Steps
		case KindGate:
			plan.FinalValidation = op.Gate
		case KindFramework:
			plan.FrameworkOverride = op.Framework.Name
		case KindStyle:
			plan.Style = op.Style.Name
		case KindParallel:
			plan.Parallel = op.Parallel
		case KindConditional:
			plan.Conditional = op.Conditional
		}
	}

	if steps == nil && plan.Parallel == nil && strings.TrimSpace(result.Cleaned) != "" {
		if step := parseStep(tokenize(result.Cleaned)); step.PromptID != "" {
			steps = []ChainStep{step}
		}
	}

	plan.Steps = make([]ExecutionStep, 0, len(steps))
	for i, s := range steps {
		deps := []int{}
		if i > 0 {
			deps = []int{i - 1}
		}
		plan.Steps = append(plan.Steps, ExecutionStep{
			StepNumber:   i + 1,
			PromptID:     s.PromptID,
			Args:         s.Args,
			ArgMap:       ParseArgs(s.Args),
			Dependencies: deps,
		})
	}
	return plan
}
