package parser

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// Modifier is an execution-mode token such as %clean
type Modifier string

const (
	ModifierNone      Modifier = ""
	ModifierClean     Modifier = "clean"
	ModifierLean      Modifier = "lean"
	ModifierGuided    Modifier = "guided"
	ModifierJudge     Modifier = "judge"
	ModifierFramework Modifier = "framework"
)

var validModifiers = map[Modifier]bool{
	ModifierClean:     true,
	ModifierLean:      true,
	ModifierGuided:    true,
	ModifierJudge:     true,
	ModifierFramework: true,
}

// ValidModifiers returns the accepted modifier tokens, sorted
func ValidModifiers() []string {
	out := make([]string, 0, len(validModifiers))
	for m := range validModifiers {
		out = append(out, "%"+string(m))
	}
	sort.Strings(out)
	return out
}

// builtinCommands resolve without a catalog entry
var builtinCommands = map[string]bool{
	"help":         true,
	"listprompts":  true,
	"list_prompts": true,
	"gates":        true,
	"status":       true,
	"framework":    true,
}

// IsBuiltin reports whether name is a built-in command
func IsBuiltin(name string) bool {
	return builtinCommands[NormalizeName(name)]
}

// ParseResult is the resolved form of a command
type ParseResult struct {
	Command    string          `json:"command"`
	Strategy   string          `json:"strategy"`
	Confidence float64         `json:"confidence"`
	Modifier   Modifier        `json:"modifier,omitempty"`
	Detection  DetectionResult `json:"detection"`
	Plan       ExecutionPlan   `json:"plan"`
}

// Strategy is one way of reading a command
type Strategy interface {
	Name() string
	Confidence() float64
	CanHandle(command string) bool
	Parse(command string) (*ParseResult, error)
}

// Resolver tries strategies in priority order and validates prompt IDs
type Resolver struct {
	catalog    output.PromptCatalog
	strategies []Strategy
	logger     logging.Logger
}

// NewResolver creates a resolver with the symbolic, simple and JSON strategies
func NewResolver(catalog output.PromptCatalog, logger logging.Logger) *Resolver {
	return &Resolver{
		catalog:    catalog,
		strategies: []Strategy{symbolicStrategy{}, simpleStrategy{}, jsonStrategy{}},
		logger:     logging.OrGlobal(logger),
	}
}

// Resolve parses command into a validated plan
func (r *Resolver) Resolve(command string) (*ParseResult, error) {
	if strings.TrimSpace(command) == "" {
		return nil, &ValidationError{Kind: ErrKindEmptyCommand, Message: "command is empty"}
	}

	modifier, rest, err := extractModifier(command)
	if err != nil {
		return nil, err
	}

	var (
		result  *ParseResult
		lastErr error
	)
	for _, s := range r.strategies {
		if !s.CanHandle(rest) {
			continue
		}
		res, err := s.Parse(rest)
		if err != nil {
			r.logger.Debugw("parse strategy failed", "strategy", s.Name(), "error", err)
			lastErr = err
			continue
		}
		result = res
		break
	}
	if result == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &ValidationError{
			Kind:    ErrKindUnsupported,
			Message: fmt.Sprintf("unrecognized command format: %q", strings.TrimSpace(rest)),
		}
	}

	result.Command = command
	result.Modifier = modifier
	if err := r.validatePrompts(result); err != nil {
		return nil, err
	}

	r.logger.Debugw("command resolved",
		"strategy", result.Strategy,
		"confidence", result.Confidence,
		"steps", len(result.Plan.Steps),
		"complexity", result.Plan.Complexity)
	return result, nil
}

// validatePrompts rewrites every step to its canonical prompt ID or fails with suggestions
func (r *Resolver) validatePrompts(result *ParseResult) error {
	check := func(id string) (string, bool, error) {
		if id == "" {
			return "", false, &ValidationError{Kind: ErrKindUnsupported, Message: "missing prompt identifier"}
		}
		if IsBuiltin(id) {
			return NormalizeName(id), true, nil
		}
		if p, ok := r.lookup(id); ok {
			return p.ID, false, nil
		}
		return "", false, &ValidationError{
			Kind:        ErrKindUnknownPrompt,
			Message:     fmt.Sprintf("unknown prompt %q", id),
			Suggestions: Suggest(id, r.candidates(), DefaultSuggestionLimit),
		}
	}

	for i := range result.Plan.Steps {
		step := &result.Plan.Steps[i]
		id, builtin, err := check(step.PromptID)
		if err != nil {
			return err
		}
		step.PromptID, step.Builtin = id, builtin
	}
	if p := result.Plan.Parallel; p != nil {
		for i := range p.Prompts {
			id, _, err := check(p.Prompts[i].PromptID)
			if err != nil {
				return err
			}
			p.Prompts[i].PromptID = id
		}
	}
	return nil
}

// lookup matches case-insensitively on ID or display name, then on normalized form
func (r *Resolver) lookup(id string) (*output.PromptInfo, bool) {
	if r.catalog == nil {
		return nil, false
	}
	if p, ok := r.catalog.FindByID(id); ok {
		return p, true
	}
	norm := NormalizeName(id)
	for _, p := range r.catalog.List() {
		if strings.EqualFold(p.ID, id) || strings.EqualFold(p.Name, id) ||
			NormalizeName(p.ID) == norm || NormalizeName(p.Name) == norm {
			p := p
			return &p, true
		}
	}
	return nil, false
}

func (r *Resolver) candidates() []string {
	out := make([]string, 0, len(builtinCommands))
	for name := range builtinCommands {
		out = append(out, name)
	}
	if r.catalog != nil {
		for _, p := range r.catalog.List() {
			out = append(out, p.ID)
		}
	}
	return out
}

// extractModifier removes %modifier tokens. At most one is allowed.
func extractModifier(command string) (Modifier, string, error) {
	tokens := tokenize(command)
	var (
		found []string
		kept  []token
	)
	for _, t := range tokens {
		if len(t.raw) > 1 && t.raw[0] == '%' && isIdentifier(t.raw[1:]) {
			found = append(found, t.raw)
			continue
		}
		kept = append(kept, t)
	}

	switch len(found) {
	case 0:
		return ModifierNone, command, nil
	case 1:
		m := Modifier(strings.ToLower(found[0][1:]))
		if !validModifiers[m] {
			return "", "", &ValidationError{
				Kind:           ErrKindUnknownModifier,
				Message:        fmt.Sprintf("unknown modifier %s", found[0]),
				ValidModifiers: ValidModifiers(),
			}
		}
		return m, joinTokens(kept), nil
	default:
		return "", "", &ValidationError{
			Kind:           ErrKindDuplicateModifier,
			Message:        fmt.Sprintf("only one modifier allowed, got %s", strings.Join(found, " ")),
			ValidModifiers: ValidModifiers(),
		}
	}
}

type symbolicStrategy struct{}

func (symbolicStrategy) Name() string        { return "symbolic" }
func (symbolicStrategy) Confidence() float64 { return 0.95 }

func (symbolicStrategy) CanHandle(command string) bool {
	return DetectOperators(command).HasOperators
}

func (s symbolicStrategy) Parse(command string) (*ParseResult, error) {
	det := DetectOperators(command)
	plan := GenerateExecutionPlan(det)
	if len(plan.Steps) == 0 && plan.Parallel == nil {
		return nil, &ValidationError{Kind: ErrKindUnsupported, Message: "no prompt found in command"}
	}
	return &ParseResult{Strategy: s.Name(), Confidence: s.Confidence(), Detection: det, Plan: plan}, nil
}

// simpleStrategy reads ">>name args". A bare "name args" is accepted with lower confidence.
type simpleStrategy struct{}

func (simpleStrategy) Name() string        { return "simple" }
func (simpleStrategy) Confidence() float64 { return 0.9 }

func (simpleStrategy) CanHandle(command string) bool {
	c := strings.TrimSpace(command)
	if strings.HasPrefix(c, ">>") {
		return true
	}
	fields := tokenize(c)
	return len(fields) > 0 && isIdentifier(fields[0].raw)
}

func (s simpleStrategy) Parse(command string) (*ParseResult, error) {
	c := strings.TrimSpace(command)
	confidence := s.Confidence()
	if !strings.HasPrefix(c, ">>") {
		confidence = 0.6
	}
	step := parseStep(tokenize(c))
	name := NormalizeName(step.PromptID)
	if name == "" {
		return nil, &ValidationError{Kind: ErrKindUnsupported, Message: "missing prompt identifier"}
	}
	det := DetectionResult{Complexity: ComplexitySimple, Cleaned: strings.TrimSpace(">>" + name + " " + step.Args)}
	plan := ExecutionPlan{
		Complexity: ComplexitySimple,
		Steps: []ExecutionStep{{
			StepNumber:   1,
			PromptID:     name,
			Args:         step.Args,
			ArgMap:       ParseArgs(step.Args),
			Dependencies: []int{},
		}},
	}
	return &ParseResult{Strategy: s.Name(), Confidence: confidence, Detection: det, Plan: plan}, nil
}

// jsonStrategy reads {"command": "...", "args": {...}}, unwrapping one level of
// double encoding.
type jsonStrategy struct{}

func (jsonStrategy) Name() string        { return "json" }
func (jsonStrategy) Confidence() float64 { return 0.85 }

func (jsonStrategy) CanHandle(command string) bool {
	c := strings.TrimSpace(command)
	return strings.HasPrefix(c, "{") || (strings.HasPrefix(c, `"`) && strings.Contains(c, "{"))
}

type jsonCommand struct {
	Command string                 `json:"command"`
	Args    map[string]interface{} `json:"args"`
}

func (s jsonStrategy) Parse(command string) (*ParseResult, error) {
	data := []byte(strings.TrimSpace(command))
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		data = []byte(encoded)
	}

	var jc jsonCommand
	if err := json.Unmarshal(data, &jc); err != nil {
		return nil, &ValidationError{Kind: ErrKindMalformedJSON, Message: fmt.Sprintf("malformed JSON command: %v", err)}
	}
	if strings.TrimSpace(jc.Command) == "" {
		return nil, &ValidationError{Kind: ErrKindMalformedJSON, Message: `JSON command requires a non-empty "command" field`}
	}

	det := DetectOperators(jc.Command)
	plan := GenerateExecutionPlan(det)
	if len(plan.Steps) == 0 {
		return nil, &ValidationError{Kind: ErrKindUnsupported, Message: "no prompt found in JSON command"}
	}
	if len(jc.Args) > 0 {
		merged := plan.Steps[0].ArgMap
		for k, v := range jc.Args {
			merged[k] = v
		}
	}
	return &ParseResult{Strategy: s.Name(), Confidence: s.Confidence(), Detection: det, Plan: plan}, nil
}
