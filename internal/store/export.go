package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/quizgen/internal/model"
)

// ExportRuns builds an export of every stored run and records the export
// time in metadata.
func (s *Store) ExportRuns() (model.RunExport, error) {
	runs, err := s.ListRuns("")
	if err != nil {
		return model.RunExport{}, fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []model.Run{}
	}

	now := time.Now().UTC()
	if err := s.SetMetadata("last_export", now.Format(time.RFC3339Nano)); err != nil {
		return model.RunExport{}, fmt.Errorf("record export time: %w", err)
	}
	return model.RunExport{
		ExportedAt: now,
		Count:      len(runs),
		Runs:       runs,
	}, nil
}
