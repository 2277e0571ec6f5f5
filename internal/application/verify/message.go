package verify

import (
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
)

// MaxFeedbackChars bounds the command output quoted back to the caller
const MaxFeedbackChars = 2000

func outputExcerpt(r chain.VerifyResult) string {
	out := r.Stderr
	if strings.TrimSpace(out) == "" {
		out = r.Stdout
	}
	if strings.TrimSpace(out) == "" {
		return "No output captured"
	}
	return tail(strings.TrimRight(out, "\n"), MaxFeedbackChars)
}

func writeResultHeader(b *strings.Builder, cfg chain.VerifyConfig, r chain.VerifyResult) {
	fmt.Fprintf(b, "**Command:** `%s`\n", cfg.Command)
	fmt.Fprintf(b, "**Exit Code:** %d\n", r.ExitCode)
	if r.TimedOut {
		b.WriteString("**Status:** Timed out\n")
	}
	b.WriteString("\n### Error Output\n```\n")
	b.WriteString(outputExcerpt(r))
	b.WriteString("\n```\n")
}

// BounceBackMessage asks the caller to fix the failure and respond again
func BounceBackMessage(cfg chain.VerifyConfig, r chain.VerifyResult, attempt, maxAttempts int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Shell Verification FAILED (Attempt %d/%d)\n\n", attempt, maxAttempts)
	writeResultHeader(&b, cfg, r)
	b.WriteString("\nFix the issues and respond when done. Verification runs again on your next response.")
	return b.String()
}

// EscalationMessage offers retry, skip or abort once attempts are exhausted
func EscalationMessage(cfg chain.VerifyConfig, r chain.VerifyResult, attempts int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Shell Verification exhausted after %d attempts\n\n", attempts)
	writeResultHeader(&b, cfg, r)
	b.WriteString("\nChoose how to continue by sending gate_action:\n")
	b.WriteString("- `retry`: reset the attempt counter and verify again\n")
	b.WriteString("- `skip`: accept this step without verification\n")
	b.WriteString("- `abort`: stop the chain")
	return b.String()
}

// PassedMessage reports a successful verification
func PassedMessage(cfg chain.VerifyConfig, attempt int) string {
	return fmt.Sprintf("Shell verification passed on attempt %d: `%s`", attempt, cfg.Command)
}

// awaitingMessage reminds the caller that a fresh response is needed
func awaitingMessage(cfg chain.VerifyConfig, attempt, maxAttempts int) string {
	return fmt.Sprintf("Shell verification `%s` is still failing (%d/%d attempts used). Fix the issues and send a response to run it again.",
		cfg.Command, attempt, maxAttempts)
}
