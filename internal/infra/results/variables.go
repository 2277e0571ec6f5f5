package results

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
)

// BuildVariables derives template variables from stored results:
// step<N>_result for each step, previous_step_result and previous_step for
// the highest stored step, and step_count.
func BuildVariables(results []output.StepResult) map[string]interface{} {
	vars := map[string]interface{}{"step_count": len(results)}
	if len(results) == 0 {
		return vars
	}
	sorted := append([]output.StepResult(nil), results...)
	sortByStep(sorted)
	for _, r := range sorted {
		vars[fmt.Sprintf("step%d_result", r.Step)] = r.Content
	}
	last := sorted[len(sorted)-1]
	vars["previous_step_result"] = last.Content
	vars["previous_step"] = last.Step
	return vars
}

func sortByStep(results []output.StepResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Step < results[j].Step })
}

// escapeChainID makes a run ID safe as a single path or key segment
func escapeChainID(chainID string) string {
	return url.PathEscape(chainID)
}
