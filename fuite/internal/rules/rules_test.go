package rules

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func compileOne(t *testing.T, r Rule, ignoreCase bool) *Set {
	t.Helper()
	set, err := Compile([]Rule{r}, ignoreCase, 1)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return set
}

func TestEvaluate_MinCountThreshold(t *testing.T) {
	// WHAT: A rule fires only when the occurrence count reaches min_count.
	// WHY: The threshold is the primary gate before include/exclude refinement.
	e := &Engine{}
	set := compileOne(t, Rule{Search: "secret", Description: "s", MinCount: 3}, false)

	if got := e.Evaluate("secret secret", set); len(got) != 0 {
		t.Errorf("2 occurrences under min_count=3 should not fire, got %d matches", len(got))
	}
	got := e.Evaluate("secret secret secret", set)
	if len(got) != 1 {
		t.Fatalf("3 occurrences should fire, got %d matches", len(got))
	}
	if got[0].Count != 3 {
		t.Errorf("count: got %d, want 3", got[0].Count)
	}
}

func TestEvaluate_CreditCardScenario(t *testing.T) {
	// WHAT: The reference rule {search:`\b\d{16}\b`, min_count:1} fires once
	// against "card: 4111111111111111 exp".
	// WHY: Pins the exact behavior for the canonical detection scenario.
	e := &Engine{}
	set := compileOne(t, Rule{Search: `\b\d{16}\b`, Description: "CC number"}, false)

	got := e.Evaluate("card: 4111111111111111 exp", set)
	if len(got) != 1 {
		t.Fatalf("matches: got %d, want 1", len(got))
	}
	if got[0].Count != 1 {
		t.Errorf("count: got %d, want 1", got[0].Count)
	}
	if got[0].Rule.Description != "CC number" {
		t.Errorf("description: got %q", got[0].Rule.Description)
	}
}

func TestEvaluate_ExcludeGate(t *testing.T) {
	// WHAT: An exclude pattern suppresses firing when it matches anywhere.
	// WHY: Exclusions exist to silence known-benign content (test fixtures,
	// dummy credentials).
	e := &Engine{}
	set := compileOne(t, Rule{Search: "password", Exclude: "dummy", Description: "credential"}, false)

	if got := e.Evaluate("password=dummy", set); len(got) != 0 {
		t.Errorf("exclude matched, rule should not fire, got %d matches", len(got))
	}
	if got := e.Evaluate("password=real123", set); len(got) != 1 {
		t.Errorf("exclude absent, rule should fire, got %d matches", len(got))
	}
}

func TestEvaluate_IncludeGate(t *testing.T) {
	// WHAT: An include pattern requires a second match before firing.
	// WHY: Include narrows broad search patterns to a relevant context.
	e := &Engine{}
	set := compileOne(t, Rule{Search: "BEGIN RSA", Include: "PRIVATE KEY", Description: "key"}, false)

	if got := e.Evaluate("BEGIN RSA PUBLIC BLOB", set); len(got) != 0 {
		t.Errorf("include absent, should not fire, got %d matches", len(got))
	}
	if got := e.Evaluate("BEGIN RSA ... PRIVATE KEY ...", set); len(got) != 1 {
		t.Errorf("include present, should fire, got %d matches", len(got))
	}
}

func TestEvaluate_IncludeDominatesExclude(t *testing.T) {
	// WHAT: When both include and exclude are set, include decides and
	// exclude is ignored.
	// WHY: Documented precedence policy; content matching both refinements
	// must still fire.
	e := &Engine{}
	set := compileOne(t, Rule{Search: "token", Include: "api", Exclude: "api", Description: "t"}, false)

	if got := e.Evaluate("token for api", set); len(got) != 1 {
		t.Errorf("include dominant: should fire despite exclude matching, got %d matches", len(got))
	}
}

func TestEvaluate_IgnoreCase(t *testing.T) {
	// WHAT: ignoreCase is applied engine-wide at compile time.
	// WHY: Case folding is a global switch, not a per-rule option.
	e := &Engine{}
	set := compileOne(t, Rule{Search: "Password", Description: "p"}, true)

	if got := e.Evaluate("PASSWORD=x", set); len(got) != 1 {
		t.Errorf("case-insensitive search should fire, got %d matches", len(got))
	}
}

func TestEvaluate_DefinitionOrder(t *testing.T) {
	// WHAT: Multiple fired rules come back in rule-definition order.
	// WHY: Sinks render matches in a stable, configured order.
	e := &Engine{}
	set, err := Compile([]Rule{
		{Search: "bbb", Description: "second-pattern"},
		{Search: "aaa", Description: "first-pattern"},
	}, false, 1)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	got := e.Evaluate("aaa bbb", set)
	if len(got) != 2 {
		t.Fatalf("matches: got %d, want 2", len(got))
	}
	if got[0].Rule.Description != "second-pattern" || got[1].Rule.Description != "first-pattern" {
		t.Errorf("order: got [%s, %s], want definition order", got[0].Rule.Description, got[1].Rule.Description)
	}
}

func TestEvaluate_SampleWindow(t *testing.T) {
	// WHAT: The sample is a radius-bounded window around the first match
	// with newlines and tabs escaped.
	// WHY: Samples travel on single-line transports and must not break them.
	e := &Engine{SampleRadius: 4}
	set := compileOne(t, Rule{Search: "LEAK", Description: "l"}, false)

	got := e.Evaluate("ab\ncdLEAKef\tgh", set)
	if len(got) != 1 {
		t.Fatalf("matches: got %d, want 1", len(got))
	}
	if strings.ContainsAny(got[0].Sample, "\n\t") {
		t.Errorf("sample contains raw control characters: %q", got[0].Sample)
	}
	if !strings.Contains(got[0].Sample, "LEAK") {
		t.Errorf("sample should contain the match, got %q", got[0].Sample)
	}
}

func TestEvaluate_SampleClampedToBounds(t *testing.T) {
	// WHAT: A radius larger than the content clamps to content bounds.
	// WHY: Matches at the edges of small pastes must not panic or truncate badly.
	e := &Engine{SampleRadius: 100}
	set := compileOne(t, Rule{Search: "x", Description: "x"}, false)

	got := e.Evaluate("x", set)
	if len(got) != 1 || got[0].Sample != "x" {
		t.Fatalf("sample: got %+v, want single %q", got, "x")
	}
}

func TestCompile_InvalidPatternFailsWholeSet(t *testing.T) {
	// WHAT: One malformed pattern fails the whole compilation.
	// WHY: Reload must keep the previous complete generation rather than
	// load a partial set.
	_, err := Compile([]Rule{
		{Search: "fine", Description: "ok"},
		{Search: "(unclosed", Description: "broken"},
	}, false, 1)
	if err == nil {
		t.Fatal("expected compile error for malformed pattern")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should name the offending rule, got: %v", err)
	}
}

func TestCompile_EmptySet(t *testing.T) {
	// WHAT: An empty rule source is rejected with ErrNoRules.
	// WHY: A monitor with no rules is a configuration mistake, not a valid state.
	_, err := Compile(nil, false, 1)
	if !errors.Is(err, ErrNoRules) {
		t.Errorf("expected ErrNoRules, got: %v", err)
	}
}

func TestLoadFile_RoundTrip(t *testing.T) {
	// WHAT: LoadFile parses the YAML rule source, applies min_count default
	// and compiles all patterns.
	// WHY: The rule source is the operator-facing contract.
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - search: '\b\d{16}\b'
    description: CC number
  - search: password
    exclude: dummy
    description: credential
    min_count: 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	set, err := LoadFile(path, true, 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("rules: got %d, want 2", set.Len())
	}
	if set.Generation() != 7 {
		t.Errorf("generation: got %d, want 7", set.Generation())
	}
	if set.Rules()[0].MinCount != 1 {
		t.Errorf("min_count default: got %d, want 1", set.Rules()[0].MinCount)
	}
	if set.Rules()[1].MinCount != 2 {
		t.Errorf("min_count: got %d, want 2", set.Rules()[1].MinCount)
	}
}
