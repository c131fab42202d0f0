// Package rules holds the leak-detection rule set and the matching engine.
//
// A rule set is immutable once loaded. Reload builds a complete new Set and
// the service swaps it in atomically; pollers that already took a snapshot
// finish their paste against the old generation.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoRules is returned when a rule source contains no usable rules.
var ErrNoRules = errors.New("rules: no rules defined")

// Rule classifies paste content. Search must match at least MinCount times
// for the rule to fire. Include and Exclude refine the verdict: when both
// are set, Include is dominant and Exclude is ignored — this precedence is
// deliberate and documented, not a fallthrough.
type Rule struct {
	Search      string `yaml:"search"`
	Include     string `yaml:"include,omitempty"`
	Exclude     string `yaml:"exclude,omitempty"`
	Description string `yaml:"description"`
	MinCount    int    `yaml:"min_count,omitempty"`

	search  *regexp.Regexp
	include *regexp.Regexp
	exclude *regexp.Regexp
}

// Set is one immutable generation of compiled rules.
type Set struct {
	rules      []*Rule
	generation int64
}

// Rules returns the rules in definition order.
func (s *Set) Rules() []*Rule { return s.rules }

// Len returns the number of rules in the set.
func (s *Set) Len() int { return len(s.rules) }

// Generation identifies this set for logging and status reporting.
func (s *Set) Generation() int64 { return s.generation }

// Compile validates and compiles a slice of rule records into a Set.
// ignoreCase applies to the whole engine, not per rule. Any malformed
// pattern fails the whole compilation so a reload keeps the previous set.
func Compile(defs []Rule, ignoreCase bool, generation int64) (*Set, error) {
	if len(defs) == 0 {
		return nil, ErrNoRules
	}

	set := &Set{generation: generation}
	for i := range defs {
		r := defs[i]
		if strings.TrimSpace(r.Search) == "" {
			return nil, fmt.Errorf("rules: rule %d (%q): empty search pattern", i, r.Description)
		}
		if r.MinCount <= 0 {
			r.MinCount = 1
		}

		var err error
		r.search, err = compilePattern(r.Search, ignoreCase)
		if err != nil {
			return nil, fmt.Errorf("rules: rule %d (%q): search: %w", i, r.Description, err)
		}
		if r.Include != "" {
			r.include, err = compilePattern(r.Include, ignoreCase)
			if err != nil {
				return nil, fmt.Errorf("rules: rule %d (%q): include: %w", i, r.Description, err)
			}
		}
		if r.Exclude != "" {
			r.exclude, err = compilePattern(r.Exclude, ignoreCase)
			if err != nil {
				return nil, fmt.Errorf("rules: rule %d (%q): exclude: %w", i, r.Description, err)
			}
		}
		set.rules = append(set.rules, &r)
	}
	return set, nil
}

func compilePattern(pattern string, ignoreCase bool) (*regexp.Regexp, error) {
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// LoadFile reads a YAML rule source and compiles it.
//
// File format:
//
//	rules:
//	  - search: '\b\d{16}\b'
//	    description: CC number
//	  - search: password
//	    exclude: dummy
//	    description: credential
func LoadFile(path string, ignoreCase bool, generation int64) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}
	return Compile(doc.Rules, ignoreCase, generation)
}
