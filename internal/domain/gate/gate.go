package gate

import (
	"strings"
	"time"
)

// Source identifies where a gate ID came from. Each source has a fixed priority.
type Source string

const (
	SourceInlineOperator   Source = "inline-operator"
	SourceClientSelection  Source = "client-selection"
	SourceTemporaryRequest Source = "temporary-request"
	SourcePromptConfig     Source = "prompt-config"
	SourceChainLevel       Source = "chain-level"
	SourceMethodology      Source = "methodology"
	SourceRegistryAuto     Source = "registry-auto"
)

var sourcePriority = map[Source]int{
	SourceInlineOperator:   100,
	SourceClientSelection:  90,
	SourceTemporaryRequest: 80,
	SourcePromptConfig:     60,
	SourceChainLevel:       50,
	SourceMethodology:      40,
	SourceRegistryAuto:     20,
}

// AllSources returns every source ordered from highest to lowest priority
func AllSources() []Source {
	return []Source{
		SourceInlineOperator,
		SourceClientSelection,
		SourceTemporaryRequest,
		SourcePromptConfig,
		SourceChainLevel,
		SourceMethodology,
		SourceRegistryAuto,
	}
}

// Priority returns the fixed priority of the source, 0 for unknown sources
func (s Source) Priority() int {
	return sourcePriority[s]
}

// IsValid returns true for known sources
func (s Source) IsValid() bool {
	_, ok := sourcePriority[s]
	return ok
}

func (s Source) String() string {
	return string(s)
}

// Entry is one accumulated gate with its provenance
type Entry struct {
	ID       string                 `json:"id"`
	Source   Source                 `json:"source"`
	Priority int                    `json:"priority"`
	AddedAt  time.Time              `json:"addedAt"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Verdict is a PASS/FAIL judgment
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// ParseVerdictKeyword maps a case-insensitive keyword to a verdict
func ParseVerdictKeyword(s string) (Verdict, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PASS":
		return VerdictPass, true
	case "FAIL":
		return VerdictFail, true
	}
	return "", false
}

// EnforcementMode controls how a failed gate affects the chain
type EnforcementMode string

const (
	ModeBlocking      EnforcementMode = "blocking"
	ModeAdvisory      EnforcementMode = "advisory"
	ModeInformational EnforcementMode = "informational"
)

// IsValid returns true for known modes
func (m EnforcementMode) IsValid() bool {
	switch m {
	case ModeBlocking, ModeAdvisory, ModeInformational:
		return true
	}
	return false
}

// Action is the caller's choice after retry exhaustion
type Action string

const (
	ActionRetry Action = "retry"
	ActionSkip  Action = "skip"
	ActionAbort Action = "abort"
)

// IsValid returns true for known actions
func (a Action) IsValid() bool {
	switch a {
	case ActionRetry, ActionSkip, ActionAbort:
		return true
	}
	return false
}

// Definition is a caller- or catalog-supplied gate description
type Definition struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Criteria    []string        `json:"criteria,omitempty" yaml:"criteria,omitempty"`
	Mode        EnforcementMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Blocking    bool            `json:"blocking,omitempty" yaml:"blocking,omitempty"`
}

// Key returns the identifier used for accumulation
func (d Definition) Key() string {
	if id := strings.TrimSpace(d.ID); id != "" {
		return id
	}
	return Slug(d.Name)
}

// Slug turns a free-form gate name into a stable identifier ("Code Quality" -> "code-quality")
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
