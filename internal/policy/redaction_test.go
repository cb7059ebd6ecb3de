package policy

import (
	"regexp"
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "sam@example.com") {
		t.Fatalf("email leaked: %q", out)
	}
}

func TestRedactPIIMasksAPIKeys(t *testing.T) {
	out, changed := RedactPII("my key is sk-proj_abcdefghijklmnopqrstu please rotate")
	if !changed || !strings.Contains(out, "[REDACTED_SECRET]") {
		t.Fatalf("RedactPII() = %q, %v; want secret masked", out, changed)
	}
}

func TestRedactPIILeavesCleanTextAlone(t *testing.T) {
	input := "Improve this prompt: write a tweet about coffee"
	out, changed := RedactPII(input)
	if changed || out != input {
		t.Fatalf("RedactPII() = %q, %v; want unchanged", out, changed)
	}
}

func TestRedactorExtraRules(t *testing.T) {
	r := NewRedactor(Rule{Name: "ticket", Pattern: regexp.MustCompile(`TICKET-\d+`), Replacement: "[REDACTED_TICKET]"})
	out, changed := r.Redact("see TICKET-4411")
	if !changed || out != "see [REDACTED_TICKET]" {
		t.Fatalf("Redact() = %q, %v", out, changed)
	}
}
