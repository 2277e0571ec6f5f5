package pipeline

import (
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/gatechain/internal/application/accumulator"
	"github.com/YoshitsuguKoike/gatechain/internal/application/parser"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
)

const (
	// InlineCriteriaGateID collects the anonymous criteria of a :: clause
	InlineCriteriaGateID = "inline-criteria"
	// MethodologyGateID checks compliance with an @framework override
	MethodologyGateID = "framework-compliance"
	// VerifyGateID identifies shell verification in state and messages
	VerifyGateID = "shell-verify"

	maxBaseChainIDLen = 64
)

// baseChainID derives the base chain identifier from the planned prompt IDs
func baseChainID(plan parser.ExecutionPlan) string {
	ids := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		ids = append(ids, gate.Slug(s.PromptID))
	}
	base := "chain-" + strings.Join(ids, "-")
	if len(base) > maxBaseChainIDLen {
		base = strings.TrimRight(base[:maxBaseChainIDLen], "-")
	}
	return base
}

// blueprint captures the plan and the accumulated gates for resumption
func (e *Engine) blueprint(r *request, res *parser.ParseResult) *chain.Blueprint {
	plan := res.Plan
	mode := r.GateMode()
	if mode == "" {
		mode = e.cfg.GateMode
	}
	bp := &chain.Blueprint{
		Command:         r.Command,
		Strategy:        res.Strategy,
		Framework:       plan.FrameworkOverride,
		Style:           plan.Style,
		Modifier:        string(res.Modifier),
		GateMode:        string(mode),
		GateMaxAttempts: e.cfg.GateMaxAttempts,
		Steps:           make([]chain.BlueprintStep, 0, len(plan.Steps)),
	}
	if len(plan.Steps) == 1 {
		if p, ok := e.findPrompt(plan.Steps[0].PromptID); ok {
			bp.Name, bp.Description, bp.Category = p.Name, p.Description, p.Category
		}
	} else {
		bp.Name = fmt.Sprintf("%d-step chain", len(plan.Steps))
	}
	for _, s := range plan.Steps {
		bp.Steps = append(bp.Steps, chain.BlueprintStep{PromptID: s.PromptID, Args: s.Args, ArgMap: s.ArgMap})
	}

	if g := plan.FinalValidation; g != nil {
		if g.RetryLimit > 0 {
			bp.GateMaxAttempts = g.RetryLimit
		}
		if g.Verify != nil {
			cfg := *g.Verify
			if cfg.Timeout <= 0 && e.cfg.VerifyTimeout > 0 {
				cfg.Timeout = e.cfg.VerifyTimeout
			}
			if cfg.MaxIterations <= 0 && e.cfg.VerifyMaxAttempts > 0 {
				cfg.MaxIterations = e.cfg.VerifyMaxAttempts
			}
			bp.Verify = &cfg
		}
	}

	if r.GatesDisabled() {
		r.diag.Info("gates", "gates disabled for this request")
		return bp
	}
	e.collectGates(r, plan, bp)
	return bp
}

// collectGates merges every gate source by priority and records the result on bp
func (e *Engine) collectGates(r *request, plan parser.ExecutionPlan, bp *chain.Blueprint) {
	acc := accumulator.NewGateAccumulator(r.logger)
	criteria := map[string][]string{}
	setCriteria := func(id string, c []string) {
		if _, ok := criteria[id]; !ok && len(c) > 0 {
			criteria[id] = append([]string(nil), c...)
		}
	}

	if g := plan.FinalValidation; g != nil {
		for _, id := range g.GateIDs {
			acc.Add(id, gate.SourceInlineOperator, nil)
			acc.MarkBlocking(id)
		}
		for _, n := range g.Named {
			acc.Add(n.ID, gate.SourceInlineOperator, map[string]interface{}{"criteria": n.Criteria})
			acc.MarkBlocking(n.ID)
			setCriteria(n.ID, n.Criteria)
		}
		if len(g.Criteria) > 0 {
			acc.Add(InlineCriteriaGateID, gate.SourceInlineOperator, map[string]interface{}{"criteria": g.Criteria})
			acc.MarkBlocking(InlineCriteriaGateID)
			setCriteria(InlineCriteriaGateID, g.Criteria)
			bp.Criteria = append([]string(nil), g.Criteria...)
		}
	}

	for _, gi := range r.Gates {
		id := gi.Key()
		if !gi.Temporary {
			acc.Add(id, gate.SourceClientSelection, nil)
			continue
		}
		acc.Add(id, gate.SourceTemporaryRequest, map[string]interface{}{"name": gi.Name})
		setCriteria(id, gi.ReviewCriteria())
		if gi.Blocking {
			acc.MarkBlocking(id)
		}
	}

	if fw := plan.FrameworkOverride; fw != "" {
		acc.Add(MethodologyGateID, gate.SourceMethodology, map[string]interface{}{"framework": fw})
		setCriteria(MethodologyGateID, []string{fmt.Sprintf("Follows the %s methodology", fw)})
	}

	for i, s := range plan.Steps {
		p, ok := e.findPrompt(s.PromptID)
		if !ok {
			continue
		}
		for _, id := range p.Gates {
			if acc.Add(id, gate.SourcePromptConfig, map[string]interface{}{"step": i + 1}) {
				bp.Steps[i].Gates = append(bp.Steps[i].Gates, id)
			}
		}
	}
	acc.Freeze()

	for _, entry := range acc.Entries() {
		if entry.Source != gate.SourcePromptConfig {
			bp.Gates = append(bp.Gates, entry.ID)
		}
	}
	bp.BlockingGates = acc.BlockingGates()
	if len(criteria) > 0 {
		bp.GateCriteria = criteria
	}

	counts := map[string]interface{}{}
	for src, n := range acc.CountsBySource() {
		counts[string(src)] = n
	}
	r.diag.Debug("gates", "gates accumulated", accumulator.WithContext(map[string]interface{}{
		"gates": acc.IDs(), "bySource": counts,
	}))
}

// gatesForStep returns the gates reviewed after step: its prompt gates plus,
// on the final step, every chain-level gate.
func gatesForStep(sess *chain.Session, step int) []string {
	bp := sess.Blueprint
	if bp == nil {
		return nil
	}
	var ids []string
	seen := map[string]bool{}
	add := func(list []string) {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if bs, ok := bp.Step(step); ok {
		add(bs.Gates)
	}
	if step >= sess.State.TotalSteps {
		add(bp.Gates)
	}
	return ids
}

func blockingAmong(bp *chain.Blueprint, ids []string) []string {
	if bp == nil {
		return nil
	}
	blocking := map[string]bool{}
	for _, id := range bp.BlockingGates {
		blocking[id] = true
	}
	var out []string
	for _, id := range ids {
		if blocking[id] {
			out = append(out, id)
		}
	}
	return out
}

// sessionMode is the enforcement mode for a request on sess
func (e *Engine) sessionMode(r *request, sess *chain.Session) gate.EnforcementMode {
	if m := r.GateMode(); m.IsValid() {
		return m
	}
	if sess.Blueprint != nil {
		if m := gate.EnforcementMode(sess.Blueprint.GateMode); m.IsValid() {
			return m
		}
	}
	return e.cfg.GateMode
}

// reviewPrompt renders the text asking the caller for a verdict
func reviewPrompt(review *chain.PendingGateReview) string {
	var b strings.Builder
	b.WriteString("## Gate review\n\n")
	b.WriteString("Evaluate the previous response against these gates:\n")
	for _, p := range review.Prompts {
		fmt.Fprintf(&b, "\n### %s\n", p.GateID)
		if len(p.Criteria) == 0 {
			b.WriteString("- Meets the requirements of this gate\n")
		}
		for _, c := range p.Criteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if resp := strings.TrimSpace(review.PreviousResponse); resp != "" {
		fmt.Fprintf(&b, "\n### Response under review\n%s\n", resp)
	}
	if len(review.RetryHints) > 0 {
		b.WriteString("\n### Issues from earlier attempts\n")
		for _, h := range review.RetryHints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	fmt.Fprintf(&b, "\nAttempt %d/%d. Reply with `GATE_REVIEW: PASS - <reason>` or `GATE_REVIEW: FAIL - <reason>`.\n",
		review.AttemptCount+1, review.EffectiveMaxAttempts())
	return b.String()
}

// escalationPrompt offers the caller the next actions once retries are exhausted
func escalationPrompt(review *chain.PendingGateReview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Gate review failed %d/%d times\n\n", review.AttemptCount, review.EffectiveMaxAttempts())
	fmt.Fprintf(&b, "Gates: %s\n", strings.Join(review.GateIDs, ", "))
	if len(review.RetryHints) > 0 {
		fmt.Fprintf(&b, "Last issue: %s\n", review.RetryHints[len(review.RetryHints)-1])
	}
	b.WriteString("\nChoose how to continue with `gate_action`:\n")
	b.WriteString("- `retry`: reset the attempt counter and review again\n")
	b.WriteString("- `skip`: accept the response and continue the chain\n")
	b.WriteString("- `abort`: stop the chain\n")
	return b.String()
}
