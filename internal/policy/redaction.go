// Package policy masks sensitive content before it reaches durable memory.
package policy

import "regexp"

// Rule replaces every match of Pattern with Replacement.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// Order matters: secrets and cards run before phone so long digit runs are not
// classified as phone numbers.
var defaultRules = []Rule{
	{Name: "email", Pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), Replacement: "[REDACTED_EMAIL]"},
	{Name: "api_key", Pattern: regexp.MustCompile(`\b(?:sk|pk|AIza|ghp|xox[bp])[-_A-Za-z0-9]{16,}\b`), Replacement: "[REDACTED_SECRET]"},
	{Name: "card", Pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), Replacement: "[REDACTED_CARD]"},
	{Name: "phone", Pattern: regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), Replacement: "[REDACTED_PHONE]"},
}

// Redactor applies an ordered rule set.
type Redactor struct {
	rules []Rule
}

// NewRedactor uses the default rules followed by extra.
func NewRedactor(extra ...Rule) *Redactor {
	rules := make([]Rule, 0, len(defaultRules)+len(extra))
	rules = append(rules, defaultRules...)
	rules = append(rules, extra...)
	return &Redactor{rules: rules}
}

// Redact masks every rule match and reports whether anything changed.
func (r *Redactor) Redact(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range r.rules {
		next := rule.Pattern.ReplaceAllString(out, rule.Replacement)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

var defaultRedactor = NewRedactor()

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (string, bool) {
	return defaultRedactor.Redact(input)
}
