// Package fuite monitors public paste sites for leaked sensitive data.
//
// It polls each configured site on its own interval, matches new pastes
// against a reloadable rule set, suppresses alerts for near-duplicate
// content already archived, and fans qualifying incidents out to
// notification sinks (log, CEF datagram, email, archive, publishing
// endpoint).
package fuite

import (
	"github.com/hazyhaar/fuite/fuite/internal/poller"
	"github.com/hazyhaar/fuite/fuite/internal/rules"
	"github.com/hazyhaar/fuite/fuite/internal/store"
)

// Re-export internal types for the public API.
type (
	Rule         = rules.Rule
	PollerStatus = poller.Status
	Incident     = store.Incident
	IncidentRule = store.IncidentRule
)
