package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// MailSinkConfig configures the SMTP email sink.
type MailSinkConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// SubjectPrefix precedes "site/paste-id" in the subject line.
	SubjectPrefix string
	// MaxContentBytes bounds how much paste content goes into the body.
	// Default: 16 KiB.
	MaxContentBytes int
}

func (c *MailSinkConfig) defaults() {
	if c.Port <= 0 {
		c.Port = 587
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "[fuite]"
	}
	if c.MaxContentBytes <= 0 {
		c.MaxContentBytes = 16 * 1024
	}
}

// MailSink emails each incident to the configured recipients.
type MailSink struct {
	config MailSinkConfig
	client *mail.Client
}

// NewMailSink creates a MailSink and validates the SMTP configuration.
func NewMailSink(cfg MailSinkConfig) (*MailSink, error) {
	cfg.defaults()
	if cfg.Host == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("alert: mail: host, from and to are required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("alert: mail: client: %w", err)
	}
	return &MailSink{config: cfg, client: client}, nil
}

func (s *MailSink) Deliver(ctx context.Context, inc *Incident) error {
	msg := mail.NewMsg()
	if err := msg.From(s.config.From); err != nil {
		return fmt.Errorf("alert: mail: from: %w", err)
	}
	if err := msg.To(s.config.To...); err != nil {
		return fmt.Errorf("alert: mail: to: %w", err)
	}
	msg.Subject(fmt.Sprintf("%s %s/%s: %d rule(s) fired",
		s.config.SubjectPrefix, inc.Site, inc.PasteID, len(inc.Matches)))
	msg.SetBodyString(mail.TypeTextPlain, s.body(inc))

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("alert: mail: send: %w", err)
	}
	return nil
}

func (s *MailSink) Close() error { return nil }

func (s *MailSink) body(inc *Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Site:   %s\nPaste:  %s\nURL:    %s\nSeen:   %s\n\nMatched rules:\n",
		inc.Site, inc.PasteID, inc.URL, inc.FetchedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	for _, m := range inc.Matches {
		fmt.Fprintf(&b, "  - %s (%d occurrence(s))\n", m.Rule.Description, m.Count)
		if m.Sample != "" {
			fmt.Fprintf(&b, "    sample: %s\n", m.Sample)
		}
	}

	content := inc.Content
	if len(content) > s.config.MaxContentBytes {
		content = content[:s.config.MaxContentBytes] + "\n[truncated]"
	}
	b.WriteString("\n--- content ---\n")
	b.WriteString(content)
	return b.String()
}
