package pipeline

import (
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/gatechain/internal/application/parser"
	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
)

// builtin answers the commands that need no catalog prompt
func (e *Engine) builtin(r *request, name string) Response {
	var b strings.Builder
	switch parser.NormalizeName(name) {
	case "listprompts", "list_prompts":
		var prompts []output.PromptInfo
		if e.catalog != nil {
			prompts = e.catalog.List()
		}
		fmt.Fprintf(&b, "## Prompts (%d)\n\n", len(prompts))
		for _, p := range prompts {
			fmt.Fprintf(&b, "- `%s` %s", p.ID, p.Name)
			if p.Category != "" {
				fmt.Fprintf(&b, " [%s]", p.Category)
			}
			if len(p.Gates) > 0 {
				fmt.Fprintf(&b, " gates: %s", strings.Join(p.Gates, ", "))
			}
			b.WriteString("\n")
		}
	case "status":
		sessions := e.store.ListActiveSessions(e.cfg.ActiveSessionLimit)
		fmt.Fprintf(&b, "## Active chains (%d)\n\n", len(sessions))
		for _, s := range sessions {
			pending := ""
			switch {
			case s.PendingGateReview != nil:
				pending = " (awaiting gate review)"
			case s.PendingShellVerify != nil:
				pending = " (awaiting verification)"
			}
			fmt.Fprintf(&b, "- `%s` step %d/%d%s, last active %s\n",
				s.ChainID, s.State.CurrentStep, s.State.TotalSteps, pending, s.LastActivity.Format("2006-01-02 15:04:05"))
		}
	case "gates":
		b.WriteString("## Gate sources (highest priority first)\n\n")
		for _, src := range gate.AllSources() {
			fmt.Fprintf(&b, "- %s (%d)\n", src, src.Priority())
		}
		fmt.Fprintf(&b, "\nDefault enforcement mode: %s, %d attempts before escalation.\n", e.cfg.GateMode, e.cfg.GateMaxAttempts)
	default:
		b.WriteString("## Operators\n\n")
		for _, op := range parser.Operators() {
			fmt.Fprintf(&b, "- `%s` %s\n", op.Symbol, op.Description)
		}
		fmt.Fprintf(&b, "\nModifiers: %s\n", strings.Join(parser.ValidModifiers(), ", "))
		b.WriteString("Built-ins: >>help, >>listprompts, >>status, >>gates\n")
	}
	return Response{Status: StatusInfo, Content: b.String()}
}

// describePlan summarizes a plan that has no executable steps
func describePlan(res *parser.ParseResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Parsed with the %s strategy; nothing to execute.\n", res.Strategy)
	if p := res.Plan.Parallel; p != nil {
		ids := make([]string, 0, len(p.Prompts))
		for _, s := range p.Prompts {
			ids = append(ids, s.PromptID)
		}
		fmt.Fprintf(&b, "Parallel prompts: %s\n", strings.Join(ids, ", "))
	}
	if c := res.Plan.Conditional; c != nil {
		fmt.Fprintf(&b, "Conditional: if %s then %s\n", c.Condition, c.Target)
	}
	return b.String()
}
