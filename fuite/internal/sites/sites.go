// Package sites holds per-source knowledge: how to turn a listing page into
// paste identifiers, how to build a raw-content URL, and how to recover
// plain text from sites that wrap raw content in markup.
//
// Adapters are pure and stateless. Adding a site means adding one adapter
// and registering it here; the poller never changes.
package sites

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownSite is returned when configuration names a site with no adapter.
var ErrUnknownSite = errors.New("sites: unknown site")

// Adapter is the per-site contract consumed by the poller.
type Adapter interface {
	// Name identifies the site in configuration, logs and incidents.
	Name() string
	// ListingURL is the page listing recent pastes.
	ListingURL() string
	// ListPastes extracts paste identifiers from a fetched listing body,
	// in listing order, without duplicates.
	ListPastes(listingBody []byte) []string
	// ContentURL builds the raw-content URL for an identifier.
	ContentURL(id string) string
	// ExtractText recovers plain text from the raw-content response body.
	ExtractText(raw []byte) (string, error)
	// SlowDownMarker is the site's rate-limit phrase, empty if none.
	SlowDownMarker() string
}

var registry = map[string]Adapter{}

func register(a Adapter) { registry[a.Name()] = a }

// ByName resolves an adapter; unknown names are a startup-time error.
func ByName(name string) (Adapter, error) {
	a, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownSite, name, Names())
	}
	return a, nil
}

// Names lists the registered site names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// uniqueInOrder keeps the first occurrence of each identifier.
func uniqueInOrder(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
