package gate

import "testing"

func TestSourcePriorityOrder(t *testing.T) {
	sources := AllSources()
	for i := 1; i < len(sources); i++ {
		if sources[i-1].Priority() <= sources[i].Priority() {
			t.Errorf("%s (%d) should outrank %s (%d)",
				sources[i-1], sources[i-1].Priority(), sources[i], sources[i].Priority())
		}
	}
	if SourceInlineOperator.Priority() != 100 {
		t.Errorf("inline-operator priority = %d, want 100", SourceInlineOperator.Priority())
	}
	if Source("bogus").IsValid() || Source("bogus").Priority() != 0 {
		t.Error("unknown source should be invalid with zero priority")
	}
}

func TestParseVerdictKeyword(t *testing.T) {
	tests := []struct {
		in   string
		want Verdict
		ok   bool
	}{
		{"PASS", VerdictPass, true},
		{" fail ", VerdictFail, true},
		{"Pass", VerdictPass, true},
		{"maybe", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseVerdictKeyword(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseVerdictKeyword(%q) = (%q, %v)", tt.in, got, ok)
		}
	}
}

func TestDefinitionKey(t *testing.T) {
	tests := []struct {
		def  Definition
		want string
	}{
		{Definition{ID: "code-quality"}, "code-quality"},
		{Definition{Name: "Code Quality"}, "code-quality"},
		{Definition{Name: "  Security / OWASP check!  "}, "security-owasp-check"},
		{Definition{}, ""},
	}
	for _, tt := range tests {
		if got := tt.def.Key(); got != tt.want {
			t.Errorf("Key(%+v) = %q, want %q", tt.def, got, tt.want)
		}
	}
}
