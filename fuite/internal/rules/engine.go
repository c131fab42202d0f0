package rules

import "strings"

// Match records one fired rule for one paste.
type Match struct {
	Rule   *Rule
	Count  int
	Sample string // sanitized window around the first occurrence; empty if sampling is off
}

// Engine evaluates a rule set against paste content.
type Engine struct {
	// SampleRadius is the number of bytes kept on each side of the first
	// occurrence when building Match.Sample. 0 disables sampling.
	SampleRadius int
}

// Evaluate runs every rule in definition order and returns the fired
// matches. The result is rebuilt from empty for every paste.
func (e *Engine) Evaluate(content string, set *Set) []Match {
	if set == nil {
		return nil
	}

	var matches []Match
	for _, r := range set.rules {
		locs := r.search.FindAllStringIndex(content, -1)
		if len(locs) < r.MinCount {
			continue
		}

		// Include is dominant: when both refinements are set, exclude is
		// ignored.
		if r.include != nil {
			if !r.include.MatchString(content) {
				continue
			}
		} else if r.exclude != nil {
			if r.exclude.MatchString(content) {
				continue
			}
		}

		m := Match{Rule: r, Count: len(locs)}
		if e.SampleRadius > 0 {
			m.Sample = sampleWindow(content, locs[0][0], locs[0][1], e.SampleRadius)
		}
		matches = append(matches, m)
	}
	return matches
}

// sampleWindow cuts a window of radius bytes around [start,end), clamped to
// the content bounds, and escapes control characters so the sample survives
// single-line transports (CEF, log lines).
func sampleWindow(content string, start, end, radius int) string {
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := end + radius
	if hi > len(content) {
		hi = len(content)
	}
	return sanitize(content[lo:hi])
}

var sanitizer = strings.NewReplacer(
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
	"\t", `\t`,
)

func sanitize(s string) string { return sanitizer.Replace(s) }
