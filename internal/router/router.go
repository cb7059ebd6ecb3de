// Package router maps free-text requests to handler ids with ordered keyword rules.
package router

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	PromptOptimizer  = "PromptOptimizerAgent"
	ContentRewriter  = "ContentRewriterAgent"
	EmailPrioritizer = "EmailPrioritizerAgent"
)

// ErrEmptyKeywords rejects rules that could never match.
var ErrEmptyKeywords = errors.New("routing rule has no keywords")

// Rule routes to HandlerID when any keyword occurs in the input, case-insensitively.
type Rule struct {
	Keywords  []string `yaml:"keywords" json:"keywords"`
	HandlerID string   `yaml:"handler" json:"handler"`
}

// DefaultRules is the built-in routing table. Order is significant.
func DefaultRules() []Rule {
	return []Rule{
		{Keywords: []string{"resume", "cv", "job"}, HandlerID: ContentRewriter},
		{Keywords: []string{"email", "inbox", "mail"}, HandlerID: EmailPrioritizer},
	}
}

// Router evaluates rules in order; the first rule with a matching keyword wins and
// unmatched input resolves to the fallback handler. It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	rules    []Rule
	fallback string
}

// New builds a router over rules. An empty fallback defaults to PromptOptimizer.
func New(fallback string, rules ...Rule) (*Router, error) {
	if strings.TrimSpace(fallback) == "" {
		fallback = PromptOptimizer
	}
	r := &Router{fallback: fallback}
	for _, rule := range rules {
		if err := r.Append(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns a router over DefaultRules.
func Default() *Router {
	r, _ := New(PromptOptimizer, DefaultRules()...)
	return r
}

// Route never fails: empty or unmatched input yields the fallback handler id.
func (r *Router) Route(input string) string {
	text := strings.ToLower(input)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if strings.TrimSpace(text) == "" {
		return r.fallback
	}
	for _, rule := range r.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.HandlerID
			}
		}
	}
	return r.fallback
}

// Prepend inserts rule ahead of all existing rules.
func (r *Router) Prepend(rule Rule) error {
	rule, err := normalize(rule)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append([]Rule{rule}, r.rules...)
	return nil
}

// Append adds rule after all existing rules.
func (r *Router) Append(rule Rule) error {
	rule, err := normalize(rule)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
	return nil
}

// Rules returns a copy of the table in evaluation order.
func (r *Router) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = Rule{Keywords: append([]string(nil), rule.Keywords...), HandlerID: rule.HandlerID}
	}
	return out
}

func (r *Router) Fallback() string { return r.fallback }

// HandlerIDs lists every handler the router can select, fallback first.
func (r *Router) HandlerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{r.fallback: true}
	out := []string{r.fallback}
	for _, rule := range r.rules {
		if !seen[rule.HandlerID] {
			seen[rule.HandlerID] = true
			out = append(out, rule.HandlerID)
		}
	}
	return out
}

func normalize(rule Rule) (Rule, error) {
	id := strings.TrimSpace(rule.HandlerID)
	if id == "" {
		return Rule{}, errors.New("routing rule has no handler id")
	}
	kws := make([]string, 0, len(rule.Keywords))
	for _, kw := range rule.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			kws = append(kws, kw)
		}
	}
	if len(kws) == 0 {
		return Rule{}, fmt.Errorf("%w: handler %s", ErrEmptyKeywords, id)
	}
	return Rule{Keywords: kws, HandlerID: id}, nil
}
