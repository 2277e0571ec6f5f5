package enforcement

import (
	"regexp"
	"strings"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
)

// VerdictSource says where verdict text came from
type VerdictSource string

const (
	// SourceGateVerdict is the dedicated gate_verdict request field
	SourceGateVerdict VerdictSource = "gate_verdict"
	// SourceUserResponse is free-form caller text
	SourceUserResponse VerdictSource = "user_response"
)

// ParsedVerdict is a verdict recognized in raw text
type ParsedVerdict struct {
	Verdict                gate.Verdict  `json:"verdict"`
	Rationale              string        `json:"rationale"`
	Raw                    string        `json:"raw"`
	Source                 VerdictSource `json:"source"`
	MatchedPatternPriority int           `json:"matchedPatternPriority"`
}

// verdictPattern is one entry of the recognition table. Lower priority
// numbers are more specific and tried first.
type verdictPattern struct {
	priority int
	name     string
	re       *regexp.Regexp
	fallback bool
}

var verdictPatterns = []verdictPattern{
	{1, "gate_review_dash", regexp.MustCompile(`(?i)^GATE_REVIEW:\s*(PASS|FAIL)\s+-\s+(.*)$`), false},
	{2, "gate_review_colon", regexp.MustCompile(`(?i)^GATE_REVIEW:\s*(PASS|FAIL)\s*:\s*(.*)$`), false},
	{3, "gate_dash", regexp.MustCompile(`(?i)^GATE\s+(PASS|FAIL)\s+-\s+(.*)$`), false},
	{4, "gate_colon", regexp.MustCompile(`(?i)^GATE\s+(PASS|FAIL)\s*:\s*(.*)$`), false},
	{5, "bare_dash", regexp.MustCompile(`(?i)^(PASS|FAIL)\s+-\s+(.*)$`), true},
}

// ParseVerdict recognizes a PASS/FAIL verdict with a rationale. Patterns are
// tried most specific first and each scans lines from the bottom up. The
// fallback pattern is skipped for free-form caller text. Returns nil when
// nothing matched with a non-empty rationale.
func ParseVerdict(raw string, source VerdictSource) *ParsedVerdict {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")

	for _, p := range verdictPatterns {
		if p.fallback && source == SourceUserResponse {
			continue
		}
		for i := len(lines) - 1; i >= 0; i-- {
			m := p.re.FindStringSubmatch(strings.TrimSpace(lines[i]))
			if len(m) < 3 {
				continue
			}
			rationale := strings.TrimSpace(m[2])
			if rationale == "" {
				continue
			}
			verdict, ok := gate.ParseVerdictKeyword(m[1])
			if !ok {
				continue
			}
			return &ParsedVerdict{
				Verdict:                verdict,
				Rationale:              rationale,
				Raw:                    raw,
				Source:                 source,
				MatchedPatternPriority: p.priority,
			}
		}
	}
	return nil
}
