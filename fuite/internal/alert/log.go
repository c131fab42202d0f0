package alert

import (
	"context"
	"log/slog"
)

// LogSink emits one structured log line per incident.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, inc *Incident) error {
	attrs := []any{
		"incident_id", inc.ID,
		"site", inc.Site,
		"paste_id", inc.PasteID,
		"url", inc.URL,
	}
	for _, m := range inc.Matches {
		attrs = append(attrs, "rule."+m.Rule.Description, m.Count)
	}
	s.logger.Warn("alert: incident", attrs...)
	return nil
}

func (s *LogSink) Close() error { return nil }
