package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PublishSinkConfig configures the external publishing sink.
type PublishSinkConfig struct {
	// URL is the content-management endpoint receiving the summary post.
	URL string
	// Token is sent as a bearer token.
	Token string
	// MaxRetries bounds the exponential-backoff retry. Default: 3.
	MaxRetries int
}

func (c *PublishSinkConfig) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// PublishSink POSTs a formatted incident summary to a publishing endpoint.
// The summary never includes raw content — published posts are public.
type PublishSink struct {
	config PublishSinkConfig
	client *http.Client
}

// NewPublishSink creates a PublishSink.
func NewPublishSink(cfg PublishSinkConfig) (*PublishSink, error) {
	cfg.defaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("alert: publish: empty endpoint URL")
	}
	return &PublishSink{
		config: cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type publishPost struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *PublishSink) Deliver(ctx context.Context, inc *Incident) error {
	body, err := json.Marshal(publishPost{
		Title: fmt.Sprintf("Possible leak on %s (%s)", inc.Site, inc.PasteID),
		Body:  s.summary(inc),
	})
	if err != nil {
		return fmt.Errorf("alert: publish: marshal: %w", err)
	}

	op := func() error { return s.post(ctx, body) }
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.config.MaxRetries)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("alert: publish: %w", err)
	}
	return nil
}

func (s *PublishSink) Close() error { return nil }

func (s *PublishSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		// Client errors will not improve on retry.
		return backoff.Permanent(fmt.Errorf("http %d", resp.StatusCode))
	}
	return nil
}

func (s *PublishSink) summary(inc *Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A paste matching %d detection rule(s) was published on %s.\n\n",
		len(inc.Matches), inc.Site)
	fmt.Fprintf(&b, "- Source: %s\n- Seen: %s\n\n", inc.URL,
		inc.FetchedAt.UTC().Format("2006-01-02 15:04 UTC"))
	for _, m := range inc.Matches {
		fmt.Fprintf(&b, "- **%s** — %d occurrence(s)\n", m.Rule.Description, m.Count)
	}
	return b.String()
}
