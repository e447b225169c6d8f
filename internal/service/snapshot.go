package service

import (
	"fmt"
	"io"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
	"github.com/Sumatoshi-tech/seriescache/pkg/persist"
)

// SaveSnapshot writes the cache to the configured snapshot location.
func (s *Service) SaveSnapshot() (persist.Manifest, error) {
	if s.opts.Snapshot.Dir == "" {
		return persist.Manifest{}, ErrNoSnapshotDir
	}

	compression, err := persist.ParseCompression(s.opts.Snapshot.Compression)
	if err != nil {
		return persist.Manifest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.cache.Stats()
	manifest := persist.Manifest{
		Compression: compression,
		Segments:    stats.Segments,
		Records:     stats.Records,
		Min:         stats.Min,
		Max:         stats.Max,
	}

	err = persist.SaveSnapshot(s.opts.Snapshot.Dir, s.opts.Snapshot.Name, manifest, func(w io.Writer) error {
		return s.cache.Save(w, series.WritePoint)
	})
	if err != nil {
		return persist.Manifest{}, fmt.Errorf("save snapshot: %w", err)
	}

	return manifest, nil
}

// LoadSnapshot replaces the cache contents with the configured snapshot.
func (s *Service) LoadSnapshot() (persist.Manifest, error) {
	if s.opts.Snapshot.Dir == "" {
		return persist.Manifest{}, ErrNoSnapshotDir
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	manifest, err := persist.LoadSnapshot(s.opts.Snapshot.Dir, s.opts.Snapshot.Name, func(r io.Reader) error {
		return s.cache.Load(r, series.ReadPoints)
	})
	if err != nil {
		return persist.Manifest{}, fmt.Errorf("load snapshot: %w", err)
	}

	return manifest, nil
}
