package router

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleFile is the YAML routing table:
//
//	fallback: PromptOptimizerAgent
//	rules:
//	  - handler: ContentRewriterAgent
//	    keywords: [resume, cv, job]
type RuleFile struct {
	Fallback string `yaml:"fallback"`
	Rules    []Rule `yaml:"rules"`
}

// ParseRules builds a router from YAML.
func ParseRules(data []byte) (*Router, error) {
	var f RuleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routing rules: %w", err)
	}
	return New(f.Fallback, f.Rules...)
}

// LoadRules reads a routing table from path.
func LoadRules(path string) (*Router, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing rules: %w", err)
	}
	r, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
