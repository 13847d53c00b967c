// Package jobstore persists the current batch of bulk-analysis jobs as a
// single JSON array under one named slot.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/r2clabs/bulkstudy/pkg/models"
)

// Slot is one named string value in some backing store. Load reports
// ok=false when nothing is stored.
type Slot interface {
	Load(ctx context.Context) (data []byte, ok bool, err error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

// Store is the typed view over a Slot. Load never fails: anything that does
// not parse into a valid job array reads as an empty batch.
type Store struct {
	slot Slot
}

// New wraps slot.
func New(slot Slot) *Store {
	return &Store{slot: slot}
}

// Load returns the persisted jobs, or an empty slice when the slot is
// missing, unreadable or malformed.
func (s *Store) Load(ctx context.Context) []models.Job {
	raw, ok, err := s.slot.Load(ctx)
	if err != nil {
		slog.Warn("job store unreadable, starting empty", "error", err)
		return []models.Job{}
	}
	if !ok || len(raw) == 0 {
		return []models.Job{}
	}

	jobs, err := decode(raw)
	if err != nil {
		slog.Warn("job store malformed, starting empty", "error", err, "bytes", len(raw))
		return []models.Job{}
	}
	return jobs
}

// Save overwrites the slot with jobs.
func (s *Store) Save(ctx context.Context, jobs []models.Job) error {
	if jobs == nil {
		jobs = []models.Job{}
	}
	raw, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("encode jobs: %w", err)
	}
	if err := s.slot.Save(ctx, raw); err != nil {
		return fmt.Errorf("save jobs: %w", err)
	}
	return nil
}

// Clear removes the slot.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.slot.Clear(ctx); err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}
	return nil
}

var errEmptyID = errors.New("job without id")

func decode(raw []byte) ([]models.Job, error) {
	var jobs []models.Job
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return nil, err
	}
	if jobs == nil {
		// "null" is not an array.
		return nil, errors.New("job array is null")
	}
	for i := range jobs {
		j := &jobs[i]
		if j.ID == "" {
			j.ID = j.AnalysisID
		}
		if j.AnalysisID == "" {
			j.AnalysisID = j.ID
		}
		if j.ID == "" {
			return nil, fmt.Errorf("entry %d: %w", i, errEmptyID)
		}
		if j.Status == "" {
			return nil, fmt.Errorf("entry %d: missing status", i)
		}
		j.Data = models.CompactRaw(j.Data)
	}
	return jobs, nil
}
