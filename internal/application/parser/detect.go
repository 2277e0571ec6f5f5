package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
)

// MaxRepetition bounds the *N shorthand
const MaxRepetition = 20

// DetectionResult is the output of DetectOperators
type DetectionResult struct {
	HasOperators  bool       `json:"hasOperators"`
	OperatorTypes []Kind     `json:"operatorTypes"`
	Operators     []Operator `json:"operators"`
	Complexity    Complexity `json:"complexity"`
	// Cleaned is the command with repetition expanded and every non-chain operator removed
	Cleaned     string   `json:"cleaned"`
	Repetitions int      `json:"repetitions,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Operator returns the detected operator of the given kind
func (r DetectionResult) Operator(kind Kind) (Operator, bool) {
	for _, op := range r.Operators {
		if op.Kind == kind {
			return op, true
		}
	}
	return Operator{}, false
}

// workspace is the mutable state detectors share
type workspace struct {
	segments [][]token
	warnings []string
}

func (w *workspace) nonEmptySegments() [][]token {
	out := make([][]token, 0, len(w.segments))
	for _, seg := range w.segments {
		if len(seg) > 0 {
			out = append(out, seg)
		}
	}
	return out
}

// DetectOperators recognizes every symbolic operator in command
func DetectOperators(command string) DetectionResult {
	result := DetectionResult{Complexity: ComplexitySimple}
	command = strings.TrimSpace(command)
	if command == "" {
		return result
	}

	w := &workspace{}
	for _, raw := range splitOutsideQuotes(command, "-->") {
		w.segments = append(w.segments, tokenize(raw))
	}
	result.Repetitions = w.expandRepetition()

	specs := append([]OperatorSpec(nil), operatorTable...)
	sort.SliceStable(specs, func(i, j int) bool { return specs[i].Precedence < specs[j].Precedence })
	for _, spec := range specs {
		if op, ok := spec.detect(w); ok {
			result.Operators = append(result.Operators, op)
			result.OperatorTypes = append(result.OperatorTypes, op.Kind)
		}
	}

	segs := w.nonEmptySegments()
	parts := make([]string, len(segs))
	for i, seg := range segs {
		parts[i] = joinTokens(seg)
	}
	result.Cleaned = strings.Join(parts, " --> ")
	result.HasOperators = len(result.Operators) > 0
	result.Complexity = complexityFor(len(result.Operators))
	result.Warnings = w.warnings
	return result
}

// expandRepetition rewrites "X * N" segments into N copies of X. Tokens after
// the count stay attached to the last copy.
func (w *workspace) expandRepetition() int {
	expanded := make([][]token, 0, len(w.segments))
	total := 0
	for _, seg := range w.segments {
		idx, n, width := findRepetition(seg)
		if idx < 0 {
			expanded = append(expanded, seg)
			continue
		}
		if n < 1 || n > MaxRepetition {
			w.warnings = append(w.warnings, fmt.Sprintf("repetition count %d outside 1..%d ignored", n, MaxRepetition))
			expanded = append(expanded, seg)
			continue
		}
		prefix := seg[:idx]
		suffix := seg[idx+width:]
		for i := 0; i < n-1; i++ {
			expanded = append(expanded, append([]token(nil), prefix...))
		}
		last := append(append([]token(nil), prefix...), suffix...)
		expanded = append(expanded, last)
		total++
	}
	w.segments = expanded
	return total
}

// findRepetition locates "* N" or "*N" after at least one token
func findRepetition(seg []token) (idx, n, width int) {
	for i := 1; i < len(seg); i++ {
		raw := seg[i].raw
		if raw == "*" && i+1 < len(seg) {
			if v, err := strconv.Atoi(seg[i+1].raw); err == nil {
				return i, v, 2
			}
			continue
		}
		if len(raw) > 1 && raw[0] == '*' {
			if v, err := strconv.Atoi(raw[1:]); err == nil {
				return i, v, 1
			}
		}
	}
	return -1, 0, 0
}

func detectGate(w *workspace) (Operator, bool) {
	var (
		g     GateOperator
		opts  gateOptions
		found bool
	)
	for si, seg := range w.segments {
		idx := gateMarkerIndex(seg)
		if idx < 0 {
			continue
		}
		found = true
		keep := append([]token(nil), seg[:idx]...)
		keep = append(keep, parseGateClauses(seg[idx:], &g, &opts)...)
		w.segments[si] = keep
	}
	if !found {
		return Operator{}, false
	}

	g.Criteria = dedupe(g.Criteria)
	g.GateIDs = dedupe(g.GateIDs)
	g.RetryLimit = opts.retries
	g.Verify = opts.verifyConfig()
	g.Scope = ScopeExecution
	if len(w.nonEmptySegments()) > 1 {
		g.Scope = ScopeChain
	}
	return Operator{Kind: KindGate, Gate: &g}, true
}

// gateMarkerIndex returns the index of the first "::" or "=" marker token. A
// bare "=" marks a gate only when a gate clause follows it.
func gateMarkerIndex(seg []token) int {
	for i, t := range seg {
		switch {
		case t.raw == "::":
			return i
		case t.raw == "=" && i+1 < len(seg) && startsGateClause(seg[i+1]):
			return i
		case strings.HasPrefix(t.raw, "::"):
			return i
		case i > 0 && len(t.raw) > 1 && t.raw[0] == '=' && token{raw: t.raw[1:]}.quoted():
			return i
		}
	}
	return -1
}

// startsGateClause reports whether t reads as a gate clause: quoted criteria,
// id:"criteria", verify:"cmd", a verify preset or a hyphenated gate reference
// such as code-quality.
func startsGateClause(t token) bool {
	if t.quoted() {
		return true
	}
	if _, ok := verifyPresets[strings.ToLower(t.raw)]; ok {
		return true
	}
	if key, _, ok := splitKeyValue(t.raw, ':'); ok && (token{raw: t.raw[len(key)+1:]}).quoted() {
		return true
	}
	return isGateReference(t.raw)
}

func isGateReference(s string) bool {
	if s == "" || !strings.Contains(s, "-") || s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}

type gateOptions struct {
	verify        string
	hasVerify     bool
	loop          bool
	checkpoint    bool
	rollback      bool
	dir           string
	max           int
	timeout       time.Duration
	presetMax     int
	presetTimeout time.Duration
	retries       int
}

type verifyPreset struct {
	maxIterations int
	timeout       time.Duration
}

var verifyPresets = map[string]verifyPreset{
	":fast":     {1, 30 * time.Second},
	":full":     {5, 5 * time.Minute},
	":extended": {10, 10 * time.Minute},
}

func (o gateOptions) verifyConfig() *chain.VerifyConfig {
	if !o.hasVerify {
		return nil
	}
	cfg := &chain.VerifyConfig{
		Command:    o.verify,
		Loop:       o.loop,
		Checkpoint: o.checkpoint,
		Rollback:   o.rollback,
		WorkingDir: o.dir,
	}
	if o.presetMax > 0 {
		cfg.MaxIterations = o.presetMax
		cfg.Timeout = o.presetTimeout
	}
	if o.max > 0 {
		cfg.MaxIterations = o.max
	}
	if o.timeout > 0 {
		cfg.Timeout = o.timeout
	}
	return cfg
}

// parseGateClauses consumes gate tokens into g. Framework and style tokens that
// trail a gate clause are handed back to the segment.
func parseGateClauses(tokens []token, g *GateOperator, opts *gateOptions) (returned []token) {
	for _, t := range tokens {
		raw := t.raw
		switch {
		case raw == "::" || raw == "=":
			continue
		case strings.HasPrefix(raw, "::"):
			raw = raw[2:]
		case len(raw) > 1 && raw[0] == '=':
			raw = raw[1:]
		}
		t = token{raw: raw}

		if isFrameworkToken(raw) || isStyleToken(raw) {
			returned = append(returned, t)
			continue
		}
		if p, ok := verifyPresets[strings.ToLower(raw)]; ok {
			opts.presetMax, opts.presetTimeout = p.maxIterations, p.timeout
			continue
		}
		if t.quoted() {
			g.Criteria = append(g.Criteria, SplitCriteria(t.value())...)
			continue
		}
		if key, value, ok := splitKeyValue(raw, ':'); ok {
			valueQuoted := token{raw: raw[len(key)+1:]}.quoted()
			if applyGateOption(strings.ToLower(key), value, valueQuoted, opts) {
				continue
			}
			if valueQuoted {
				criteria := SplitCriteria(value)
				g.Named = append(g.Named, NamedCriteria{ID: key, Criteria: criteria})
				g.Criteria = append(g.Criteria, criteria...)
				continue
			}
		}
		if ref := strings.TrimSpace(raw); ref != "" {
			g.GateIDs = append(g.GateIDs, ref)
		}
	}
	return returned
}

func applyGateOption(key, value string, quoted bool, opts *gateOptions) bool {
	switch key {
	case "verify":
		if !quoted && value == "" {
			return false
		}
		opts.verify, opts.hasVerify = value, true
	case "loop":
		opts.loop = parseBool(value)
	case "checkpoint":
		opts.checkpoint = parseBool(value)
	case "rollback":
		opts.rollback = parseBool(value)
	case "dir":
		opts.dir = value
	case "max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		opts.max = n
	case "timeout":
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		opts.timeout = time.Duration(n) * time.Second
	case "retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		opts.retries = n
	default:
		return false
	}
	return true
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func isFrameworkToken(raw string) bool {
	return len(raw) > 1 && raw[0] == '@' && isNameChars(raw[1:], false)
}

func isStyleToken(raw string) bool {
	return len(raw) > 1 && raw[0] == '#' && isNameChars(raw[1:], true)
}

// isNameChars matches [A-Za-z0-9_-]+; letterFirst additionally requires a leading letter
func isNameChars(s string, letterFirst bool) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if i == 0 && letterFirst && !isLetter {
			return false
		}
		if !isLetter && !(c >= '0' && c <= '9') && c != '_' && c != '-' {
			return false
		}
	}
	return s != ""
}

// extractNamed removes every token accepted by match and returns their names in order
func (w *workspace) extractNamed(match func(string) bool) []string {
	var names []string
	for si, seg := range w.segments {
		kept := seg[:0:0]
		for _, t := range seg {
			if match(t.raw) {
				names = append(names, t.raw[1:])
				continue
			}
			kept = append(kept, t)
		}
		w.segments[si] = kept
	}
	return names
}

func detectFramework(w *workspace) (Operator, bool) {
	names := w.extractNamed(isFrameworkToken)
	if len(names) == 0 {
		return Operator{}, false
	}
	if len(names) > 1 {
		w.warnings = append(w.warnings, fmt.Sprintf("multiple framework overrides; using @%s", names[0]))
	}
	return Operator{Kind: KindFramework, Framework: &FrameworkOperator{Name: names[0]}}, true
}

func detectStyle(w *workspace) (Operator, bool) {
	names := w.extractNamed(isStyleToken)
	if len(names) == 0 {
		return Operator{}, false
	}
	if len(names) > 1 {
		w.warnings = append(w.warnings, fmt.Sprintf("multiple styles; using #%s", names[0]))
	}
	return Operator{Kind: KindStyle, Style: &StyleOperator{Name: names[0]}}, true
}

// detectConditional matches the token run: ? "condition" : target
func detectConditional(w *workspace) (Operator, bool) {
	for si, seg := range w.segments {
		for i := 0; i+3 < len(seg); i++ {
			if seg[i].raw != "?" || !seg[i+1].quoted() || seg[i+2].raw != ":" {
				continue
			}
			op := &ConditionalOperator{Condition: seg[i+1].value(), Target: strings.TrimPrefix(seg[i+3].raw, ">>")}
			kept := append(append([]token(nil), seg[:i]...), seg[i+4:]...)
			w.segments[si] = kept
			return Operator{Kind: KindConditional, Conditional: op}, true
		}
	}
	return Operator{}, false
}

func detectChain(w *workspace) (Operator, bool) {
	if len(w.segments) < 2 {
		return Operator{}, false
	}
	segs := w.nonEmptySegments()
	if len(segs) < 2 {
		return Operator{}, false
	}
	op := &ChainOperator{Steps: make([]ChainStep, len(segs))}
	for i, seg := range segs {
		op.Steps[i] = parseStep(seg)
	}
	return Operator{Kind: KindChain, Chain: op}, true
}

func detectParallel(w *workspace) (Operator, bool) {
	segs := w.nonEmptySegments()
	if len(segs) != 1 {
		return Operator{}, false
	}
	var (
		groups  [][]token
		current []token
	)
	for _, t := range segs[0] {
		if t.raw == "+" {
			groups = append(groups, current)
			current = nil
			continue
		}
		current = append(current, t)
	}
	groups = append(groups, current)

	op := &ParallelOperator{}
	for _, grp := range groups {
		if len(grp) > 0 {
			op.Prompts = append(op.Prompts, parseStep(grp))
		}
	}
	if len(op.Prompts) < 2 {
		return Operator{}, false
	}
	return Operator{Kind: KindParallel, Parallel: op}, true
}

// parseStep splits ">>name args..." into prompt ID and raw argument text
func parseStep(seg []token) ChainStep {
	text := strings.TrimSpace(joinTokens(seg))
	text = strings.TrimSpace(strings.TrimPrefix(text, ">>"))
	if text == "" {
		return ChainStep{}
	}
	fields := tokenize(text)
	return ChainStep{PromptID: fields[0].raw, Args: joinTokens(fields[1:])}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
