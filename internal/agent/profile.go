// Package agent runs the shared handler algorithm over per-handler profiles.
package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ent0n29/agentforge/internal/router"
)

// Profile is the static configuration of one handler.
type Profile struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Instruction  string   `json:"-" yaml:"instruction"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	TaskType     string   `json:"task_type" yaml:"task_type"`
}

func (p Profile) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("profile id is required")
	}
	if strings.TrimSpace(p.Instruction) == "" {
		return fmt.Errorf("profile %s: instruction is required", p.ID)
	}
	return nil
}

// BuiltinProfiles returns the three stock handlers.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			ID:           router.PromptOptimizer,
			Name:         "PromptSmith",
			Description:  "Expert prompt optimizer using CO-STAR framework",
			Instruction:  promptSmithInstruction,
			Capabilities: []string{"prompt_optimization", "co_star_framework"},
			TaskType:     "prompt_optimization",
		},
		{
			ID:           router.ContentRewriter,
			Name:         "CareerArchitect",
			Description:  "Expert resume writer and personal branding specialist",
			Instruction:  careerArchitectInstruction,
			Capabilities: []string{"resume_writing", "content_optimization", "job_tailoring"},
			TaskType:     "content_optimization",
		},
		{
			ID:           router.EmailPrioritizer,
			Name:         "InboxCommander",
			Description:  "Elite email triage and prioritization specialist",
			Instruction:  inboxCommanderInstruction,
			Capabilities: []string{"email_prioritization", "urgency_analysis", "inbox_management"},
			TaskType:     "email_prioritization",
		},
	}
}

// Registry holds profiles keyed by handler id.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	version  uint64
}

func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry holds BuiltinProfiles.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(BuiltinProfiles()...)
	return r
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) error {
	if err := p.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
	r.version++
	return nil
}

// Version changes on every Register, so callers caching handlers know to rebuild.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Registry) Get(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	return p, ok
}

// List returns profiles sorted by id.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
