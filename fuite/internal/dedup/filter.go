// Package dedup suppresses alerts for near-duplicate paste content.
//
// Leaked dumps get reposted with trivial edits; comparing new matched
// content against the archived history with a normalized similarity metric
// catches those repeats. The cost is O(prior samples × content length), so
// both the sample count and the content size under comparison are bounded
// by configuration.
package dedup

import (
	"context"
	"fmt"

	"github.com/xrash/smetrics"
)

// Jaro-Winkler parameters: standard boost threshold and prefix size.
const (
	boostThreshold = 0.7
	prefixSize     = 4
)

// PriorProvider returns previously archived matched content, newest first.
// The archive store implements this; the filter does not own the history's
// lifecycle.
type PriorProvider interface {
	PriorSamples(ctx context.Context, limit int) ([]string, error)
}

// Config configures the filter.
type Config struct {
	// Threshold is the similarity above which content is a duplicate,
	// in (0,1]. 0 disables the filter entirely.
	Threshold float64
	// MaxCheckBytes skips the check for content larger than this.
	// Performance guard, not a correctness one. Default: 64 KiB.
	MaxCheckBytes int
	// MaxPriorSamples bounds how many archived samples are compared.
	// Default: 200.
	MaxPriorSamples int
}

func (c *Config) defaults() {
	if c.MaxCheckBytes <= 0 {
		c.MaxCheckBytes = 64 * 1024
	}
	if c.MaxPriorSamples <= 0 {
		c.MaxPriorSamples = 200
	}
}

// Filter decides whether matched content is a near-duplicate of something
// already alerted on.
type Filter struct {
	config Config
	priors PriorProvider
}

// New creates a Filter. priors may be nil only when the threshold is unset.
func New(cfg Config, priors PriorProvider) *Filter {
	cfg.defaults()
	return &Filter{config: cfg, priors: priors}
}

// Enabled reports whether a similarity threshold is configured.
func (f *Filter) Enabled() bool { return f.config.Threshold > 0 }

// IsDuplicate compares content against the archived history. It returns the
// similarity of the first prior sample that exceeded the threshold, or the
// highest similarity observed when no prior did.
func (f *Filter) IsDuplicate(ctx context.Context, content string) (bool, float64, error) {
	if !f.Enabled() {
		return false, 0, nil
	}
	if len(content) > f.config.MaxCheckBytes {
		return false, 0, nil
	}

	priors, err := f.priors.PriorSamples(ctx, f.config.MaxPriorSamples)
	if err != nil {
		return false, 0, fmt.Errorf("dedup: load prior samples: %w", err)
	}

	var best float64
	for _, prior := range priors {
		if err := ctx.Err(); err != nil {
			return false, best, err
		}
		sim := smetrics.JaroWinkler(content, prior, boostThreshold, prefixSize)
		if sim > f.config.Threshold {
			return true, sim, nil
		}
		if sim > best {
			best = sim
		}
	}
	return false, best, nil
}
