// Package state provides SQLite-based persistence for crewboard.
package state

import (
	"io"

	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// RunStore handles plan-run archive operations.
type RunStore interface {
	ArchiveRun(run *Run, snap board.Snapshot) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]Run, error)
	ListRunTasks(runID string) ([]*models.Task, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for run persistence. The CLI works against
// this, not the concrete SQLite implementation.
type Store interface {
	io.Closer
	Migrator
	RunStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store    = (*DB)(nil)
	_ Migrator = (*DB)(nil)
	_ RunStore = (*DB)(nil)
)
