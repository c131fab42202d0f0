package fuite

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/fuite/fuite/internal/alert"
	"github.com/hazyhaar/fuite/fuite/internal/dedup"
	"github.com/hazyhaar/fuite/fuite/internal/fetch"
	"github.com/hazyhaar/fuite/fuite/internal/poller"
)

// Config is the top-level fuite configuration. Intervals are expressed in
// milliseconds, consistent with the rest of the ecosystem's configuration
// surfaces.
type Config struct {
	// RulesFile is the YAML rule source. Required.
	RulesFile string `yaml:"rules_file"`
	// ProxiesFile is the optional egress proxy list.
	ProxiesFile string `yaml:"proxies_file,omitempty"`

	// IgnoreCase applies case-folding to every rule pattern.
	IgnoreCase bool `yaml:"ignore_case"`
	// SampleRadius is the byte radius of the sanitized sample window
	// around a rule's first match. 0 disables sampling. Default: 80.
	SampleRadius int `yaml:"sample_radius"`
	// SeenCapacity bounds the shared recency set. Default: 500.
	SeenCapacity int `yaml:"seen_capacity"`

	Fetch FetchConfig  `yaml:"fetch"`
	Dedup DedupConfig  `yaml:"dedup"`
	Sites []SiteConfig `yaml:"sites"`
	Sinks SinksConfig  `yaml:"sinks"`
}

// FetchConfig configures outbound retrieval.
type FetchConfig struct {
	TimeoutMs  int64    `yaml:"timeout_ms"`
	MaxBytes   int64    `yaml:"max_bytes"`
	UserAgents []string `yaml:"user_agents,omitempty"`
}

// DedupConfig configures near-duplicate suppression. A zero threshold
// disables the filter.
type DedupConfig struct {
	Threshold       float64 `yaml:"threshold"`
	MaxCheckBytes   int     `yaml:"max_check_bytes"`
	MaxPriorSamples int     `yaml:"max_prior_samples"`
}

// SiteConfig configures one monitored site.
type SiteConfig struct {
	Name             string `yaml:"name"`
	IntervalMs       int64  `yaml:"interval_ms"`
	JitterMs         int64  `yaml:"jitter_ms"`
	RateLimitPauseMs int64  `yaml:"rate_limit_pause_ms"`
}

// SinksConfig enables notification sinks. The structured log sink is
// always on; the others activate when their section is present.
type SinksConfig struct {
	CEF     *CEFConfig     `yaml:"cef,omitempty"`
	Mail    *MailConfig    `yaml:"mail,omitempty"`
	Archive *ArchiveConfig `yaml:"archive,omitempty"`
	Publish *PublishConfig `yaml:"publish,omitempty"`
}

// CEFConfig configures the security-event datagram sink.
type CEFConfig struct {
	Addr     string `yaml:"addr"`
	Severity int    `yaml:"severity"`
}

// MailConfig configures the SMTP sink.
type MailConfig struct {
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port"`
	Username      string   `yaml:"username,omitempty"`
	Password      string   `yaml:"password,omitempty"`
	From          string   `yaml:"from"`
	To            []string `yaml:"to"`
	SubjectPrefix string   `yaml:"subject_prefix,omitempty"`
}

// ArchiveConfig configures the on-disk dump next to the archive store.
type ArchiveConfig struct {
	Dir        string `yaml:"dir"`
	Compress   bool   `yaml:"compress"`
	TimeBucket bool   `yaml:"time_bucket"`
}

// PublishConfig configures the external publishing sink.
type PublishConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token,omitempty"`
}

func (c *Config) defaults() {
	if c.SampleRadius == 0 {
		c.SampleRadius = 80
	}
	if c.SeenCapacity <= 0 {
		c.SeenCapacity = 500
	}
	for i := range c.Sites {
		if c.Sites[i].IntervalMs <= 0 {
			c.Sites[i].IntervalMs = 60_000
		}
		if c.Sites[i].JitterMs <= 0 {
			c.Sites[i].JitterMs = 2_000
		}
		if c.Sites[i].RateLimitPauseMs <= 0 {
			c.Sites[i].RateLimitPauseMs = 5_000
		}
	}
}

func (c *Config) validate() error {
	if c.RulesFile == "" {
		return fmt.Errorf("fuite: rules_file is required")
	}
	if len(c.Sites) == 0 {
		return ErrNoSites
	}
	return nil
}

func (c *FetchConfig) toInternal() fetch.Config {
	return fetch.Config{
		Timeout:    time.Duration(c.TimeoutMs) * time.Millisecond,
		MaxBytes:   c.MaxBytes,
		UserAgents: c.UserAgents,
	}
}

func (c *DedupConfig) toInternal() dedup.Config {
	return dedup.Config{
		Threshold:       c.Threshold,
		MaxCheckBytes:   c.MaxCheckBytes,
		MaxPriorSamples: c.MaxPriorSamples,
	}
}

func (c *SiteConfig) toInternal() poller.Config {
	return poller.Config{
		Interval:       time.Duration(c.IntervalMs) * time.Millisecond,
		Jitter:         time.Duration(c.JitterMs) * time.Millisecond,
		RateLimitPause: time.Duration(c.RateLimitPauseMs) * time.Millisecond,
	}
}

func (c *ArchiveConfig) toInternal() alert.ArchiveSinkConfig {
	return alert.ArchiveSinkConfig{
		Dir:        c.Dir,
		Compress:   c.Compress,
		TimeBucket: c.TimeBucket,
	}
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fuite: read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("fuite: parse config %s: %w", path, err)
	}
	cfg.defaults()
	return &cfg, nil
}
