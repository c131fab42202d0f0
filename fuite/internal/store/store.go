// Package store is the SQLite archive behind the alert pipeline.
//
// It records every dispatched incident with its matched content and rule
// annotations. The duplicate-suppression filter reads prior matched content
// back from here — the archive doubles as the dedup index.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Schema is the complete archive schema. Applied idempotently at startup.
const Schema = `
-- One row per dispatched incident
CREATE TABLE IF NOT EXISTS incidents (
    id          TEXT PRIMARY KEY,
    site        TEXT NOT NULL,
    paste_id    TEXT NOT NULL,
    url         TEXT NOT NULL,
    content     TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_time ON incidents(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_incidents_site ON incidents(site, paste_id);

-- Fired rules for an incident
CREATE TABLE IF NOT EXISTS incident_matches (
    incident_id TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
    rule        TEXT NOT NULL,
    count       INTEGER NOT NULL,
    sample      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_incident_matches ON incident_matches(incident_id);
`

// ApplySchema applies the archive schema to a database.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

// Store wraps an already-opened archive database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an open connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Incident is an archived incident row.
type Incident struct {
	ID        string         `json:"id"`
	Site      string         `json:"site"`
	PasteID   string         `json:"paste_id"`
	URL       string         `json:"url"`
	Content   string         `json:"content,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Matches   []IncidentRule `json:"matches"`
}

// IncidentRule is one fired rule recorded with an incident.
type IncidentRule struct {
	Rule   string `json:"rule"`
	Count  int    `json:"count"`
	Sample string `json:"sample,omitempty"`
}

// InsertIncident archives an incident and its fired rules in one
// transaction.
func (s *Store) InsertIncident(ctx context.Context, inc *Incident) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO incidents (id, site, paste_id, url, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.Site, inc.PasteID, inc.URL, inc.Content, inc.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("store: insert incident: %w", err)
	}

	for _, m := range inc.Matches {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO incident_matches (incident_id, rule, count, sample)
			 VALUES (?, ?, ?, ?)`,
			inc.ID, m.Rule, m.Count, m.Sample,
		); err != nil {
			return fmt.Errorf("store: insert match: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// PriorSamples returns archived matched content, newest first, bounded by
// limit. Implements the dedup filter's prior-sample provider.
func (s *Store) PriorSamples(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT content FROM incidents ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: prior samples: %w", err)
	}
	defer rows.Close()

	var samples []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		samples = append(samples, content)
	}
	return samples, rows.Err()
}

// RecentIncidents returns the newest incidents without content bodies,
// for the admin API.
func (s *Store) RecentIncidents(ctx context.Context, limit int) ([]*Incident, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, site, paste_id, url, created_at
		 FROM incidents ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*Incident
	for rows.Next() {
		var inc Incident
		var createdMs int64
		if err := rows.Scan(&inc.ID, &inc.Site, &inc.PasteID, &inc.URL, &createdMs); err != nil {
			return nil, err
		}
		inc.CreatedAt = time.UnixMilli(createdMs)
		incidents = append(incidents, &inc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, inc := range incidents {
		matches, err := s.incidentMatches(ctx, inc.ID)
		if err != nil {
			return nil, err
		}
		inc.Matches = matches
	}
	return incidents, nil
}

func (s *Store) incidentMatches(ctx context.Context, incidentID string) ([]IncidentRule, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT rule, count, sample FROM incident_matches WHERE incident_id = ?`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("store: incident matches: %w", err)
	}
	defer rows.Close()

	var matches []IncidentRule
	for rows.Next() {
		var m IncidentRule
		if err := rows.Scan(&m.Rule, &m.Count, &m.Sample); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CountIncidents returns the total number of archived incidents.
func (s *Store) CountIncidents(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&n)
	return n, err
}
