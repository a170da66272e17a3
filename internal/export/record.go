// Package export hands finished practice calls to optional sinks: a local
// directory and Supabase storage.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chadiek/support-trainer/internal/transcript"
)

// ChecklistEntry is one checklist item and whether the trainee ticked it.
type ChecklistEntry struct {
	Item string `json:"item"`
	Done bool   `json:"done"`
}

// Record is a finished call as handed to exporters.
type Record struct {
	ID            string            `json:"id"`
	ScenarioID    string            `json:"scenarioId"`
	ScenarioTitle string            `json:"scenarioTitle"`
	AgentName     string            `json:"agentName"`
	Disposition   string            `json:"disposition"`
	Notes         string            `json:"notes"`
	Checklist     []ChecklistEntry  `json:"checklist"`
	Transcript    []transcript.Line `json:"transcript"`
	StartedAt     time.Time         `json:"startedAt"`
	EndedAt       time.Time         `json:"endedAt"`
}

// FileName is call-<scenarioId>-<yyyyMMdd-HHmmss>.json, stamped with EndedAt.
func (r Record) FileName() string {
	return fmt.Sprintf("call-%s-%s.json", r.ScenarioID, r.EndedAt.Format("20060102-150405"))
}

// Encode renders r as indented JSON.
func (r Record) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", r.ID, err)
	}
	return b, nil
}

// Exporter stores a finished call record.
type Exporter interface {
	Export(ctx context.Context, r Record) error
}

// Multi fans a record out to every exporter and joins their errors.
type Multi []Exporter

func (m Multi) Export(ctx context.Context, r Record) error {
	var errs []error
	for _, e := range m {
		if err := e.Export(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logged wraps an exporter so failures are logged rather than returned.
// Export failures never reach the trainee.
type Logged struct{ Exporter }

func (l Logged) Export(ctx context.Context, r Record) error {
	if err := l.Exporter.Export(ctx, r); err != nil {
		slog.Error("export: call record not stored", "record", r.ID, "scenario", r.ScenarioID, "error", err)
		return nil
	}
	slog.Info("export: call record stored", "record", r.ID, "file", r.FileName())
	return nil
}
