package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoBuilds is returned by LastBuild when the history table is empty.
var ErrNoBuilds = errors.New("no builds recorded")

// Build is one row of the run history.
type Build struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	TasksRun   int
	Failures   int
}

// NewBuildID generates a time-ordered id for a build run.
func NewBuildID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fall back to a random UUID if v7 generation fails.
		return uuid.New().String()
	}
	return id.String()
}

// RecordBuildStart inserts a history row for a run that just began.
func (t *Tx) RecordBuildStart(id string, startedAt time.Time) error {
	_, err := t.tx.Exec(
		`INSERT INTO builds (build_id, started_at) VALUES (?, ?)`,
		id, startedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording build %s: %w", id, err)
	}
	return nil
}

// FinishBuild closes out a history row with the run's outcome.
func (t *Tx) FinishBuild(id string, finishedAt time.Time, tasksRun, failures int) error {
	_, err := t.tx.Exec(
		`UPDATE builds SET finished_at = ?, tasks_run = ?, failures = ? WHERE build_id = ?`,
		finishedAt.UTC().Format(timeLayout), tasksRun, failures, id,
	)
	if err != nil {
		return fmt.Errorf("finishing build %s: %w", id, err)
	}
	return nil
}

// LastBuild returns the most recently started run, or ErrNoBuilds when the
// history is empty.
func (t *Tx) LastBuild() (Build, error) {
	var b Build
	var started string
	var finished sql.NullString
	err := t.tx.QueryRow(
		`SELECT build_id, started_at, finished_at, tasks_run, failures
		 FROM builds ORDER BY started_at DESC, build_id DESC LIMIT 1`,
	).Scan(&b.ID, &started, &finished, &b.TasksRun, &b.Failures)
	if err == sql.ErrNoRows {
		return Build{}, ErrNoBuilds
	}
	if err != nil {
		return Build{}, fmt.Errorf("querying last build: %w", err)
	}

	b.StartedAt, err = time.Parse(timeLayout, started)
	if err != nil {
		return Build{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if finished.Valid {
		b.FinishedAt, err = time.Parse(timeLayout, finished.String)
		if err != nil {
			return Build{}, fmt.Errorf("parsing finished_at: %w", err)
		}
	}
	return b, nil
}
