package alert

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/fuite/fuite/internal/store"
)

// ArchiveSinkConfig configures the archival sink.
type ArchiveSinkConfig struct {
	// Dir is the root dump directory.
	Dir string
	// Compress gzips the dump files.
	Compress bool
	// TimeBucket nests dumps under year/month/day directories.
	TimeBucket bool
}

// ArchiveSink persists the raw content plus match annotations: a row in the
// archive store (which feeds the dedup filter) and a dump file on disk.
type ArchiveSink struct {
	config ArchiveSinkConfig
	store  *store.Store
}

// NewArchiveSink creates an ArchiveSink. st is required; the on-disk dump
// is skipped when Dir is empty.
func NewArchiveSink(cfg ArchiveSinkConfig, st *store.Store) (*ArchiveSink, error) {
	if st == nil {
		return nil, fmt.Errorf("alert: archive: store is required")
	}
	return &ArchiveSink{config: cfg, store: st}, nil
}

func (s *ArchiveSink) Deliver(ctx context.Context, inc *Incident) error {
	row := &store.Incident{
		ID:        inc.ID,
		Site:      inc.Site,
		PasteID:   inc.PasteID,
		URL:       inc.URL,
		Content:   inc.Content,
		CreatedAt: inc.FetchedAt,
	}
	for _, m := range inc.Matches {
		row.Matches = append(row.Matches, store.IncidentRule{
			Rule:   m.Rule.Description,
			Count:  m.Count,
			Sample: m.Sample,
		})
	}
	if err := s.store.InsertIncident(ctx, row); err != nil {
		return fmt.Errorf("alert: archive: %w", err)
	}

	if s.config.Dir == "" {
		return nil
	}
	return s.dump(inc)
}

func (s *ArchiveSink) Close() error { return nil }

// dump writes the content to disk, atomically (tmp then rename) so partial
// files are never observed.
func (s *ArchiveSink) dump(inc *Incident) error {
	dir := s.config.Dir
	if s.config.TimeBucket {
		dir = filepath.Join(dir, inc.FetchedAt.UTC().Format("2006/01/02"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("alert: archive: mkdir %s: %w", dir, err)
	}

	name := inc.Site + "_" + inc.PasteID + ".txt"
	if s.config.Compress {
		name += ".gz"
	}
	target := filepath.Join(dir, name)
	tmp := target + ".tmp"

	if err := s.writeFile(tmp, inc); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("alert: archive: rename: %w", err)
	}
	return nil
}

func (s *ArchiveSink) writeFile(path string, inc *Incident) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("alert: archive: create %s: %w", path, err)
	}
	defer f.Close()

	header := s.annotations(inc)
	if s.config.Compress {
		zw := gzip.NewWriter(f)
		if _, err := zw.Write([]byte(header + inc.Content)); err != nil {
			return fmt.Errorf("alert: archive: gzip write: %w", err)
		}
		return zw.Close()
	}
	if _, err := f.WriteString(header + inc.Content); err != nil {
		return fmt.Errorf("alert: archive: write: %w", err)
	}
	return nil
}

func (s *ArchiveSink) annotations(inc *Incident) string {
	header := fmt.Sprintf("# %s %s %s fetched=%s\n",
		inc.Site, inc.PasteID, inc.URL, inc.FetchedAt.UTC().Format(time.RFC3339))
	for _, m := range inc.Matches {
		header += fmt.Sprintf("# rule: %s count=%d\n", m.Rule.Description, m.Count)
	}
	return header + "\n"
}
