// Package alert fans finalized incidents out to notification sinks.
//
// Sinks are external collaborators: a delivery failure is logged and never
// blocks the pipeline — the paste is marked seen regardless, so a broken
// sink cannot cause repeated delivery attempts on every cycle.
package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/fuite/fuite/internal/rules"
)

// Incident is a fully-formed alert handed to every sink.
type Incident struct {
	ID        string
	Site      string
	PasteID   string
	URL       string
	Matches   []rules.Match
	Content   string
	FetchedAt time.Time
}

// Sink receives finalized incidents. Implementations must be safe for
// concurrent use; the dispatcher does not serialize calls beyond what the
// sink itself requires.
type Sink interface {
	Deliver(ctx context.Context, inc *Incident) error
	Close() error
}

// Router fans out incidents to all configured sinks. One sink failing does
// not stop the others; failures are logged and the first is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Deliver sends the incident to every sink.
func (r *Router) Deliver(ctx context.Context, inc *Incident) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Deliver(ctx, inc); err != nil {
			r.logger.Warn("alert: sink delivery failed",
				"site", inc.Site, "paste_id", inc.PasteID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close closes every sink, returning the first error.
func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
