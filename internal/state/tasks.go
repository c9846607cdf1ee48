package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// PutTask inserts a new task and returns its id. Inserting a task whose
// (commands, working directory) pair already exists fails with ErrDuplicate.
func (t *Tx) PutTask(task types.Task) (int64, error) {
	if err := task.Validate(); err != nil {
		return 0, err
	}
	cmds := task.CommandString()

	var dup int64
	err := t.tx.QueryRow(
		`SELECT task_id FROM tasks WHERE commands = ? AND working_dir = ?`,
		cmds, task.WorkingDir,
	).Scan(&dup)
	if err == nil {
		return 0, types.ErrDuplicate
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("checking task uniqueness: %w", err)
	}

	last := task.LastExecuted
	if last.IsZero() {
		last = epoch
	}
	res, err := t.tx.Exec(
		`INSERT INTO tasks (commands, working_dir, display, last_executed) VALUES (?, ?, ?, ?)`,
		cmds, task.WorkingDir, task.Display, last.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting task %s: %w", task.DisplayName(), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("task id: %w", err)
	}
	return id, nil
}

// AddTask returns the id of the task with task's natural key, inserting it
// when not present.
func (t *Tx) AddTask(task types.Task) (int64, error) {
	id, err := t.FindTask(task)
	if err == nil {
		return id, nil
	}
	if err != types.ErrNotFound {
		return 0, err
	}
	return t.PutTask(task)
}

// FindTask resolves a task's natural key (commands, working directory) to an
// id. Returns ErrNotFound when absent.
func (t *Tx) FindTask(task types.Task) (int64, error) {
	var id int64
	err := t.tx.QueryRow(
		`SELECT task_id FROM tasks WHERE commands = ? AND working_dir = ?`,
		task.CommandString(), task.WorkingDir,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, types.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("finding task: %w", err)
	}
	return id, nil
}

// Task looks up a task by id. Returns ErrNotFound for unknown ids.
func (t *Tx) Task(id int64) (types.Task, error) {
	var task types.Task
	var cmds, last string
	err := t.tx.QueryRow(
		`SELECT task_id, commands, working_dir, display, last_executed FROM tasks WHERE task_id = ?`, id,
	).Scan(&task.ID, &cmds, &task.WorkingDir, &task.Display, &last)
	if err == sql.ErrNoRows {
		return types.Task{}, types.ErrNotFound
	}
	if err != nil {
		return types.Task{}, fmt.Errorf("getting task %d: %w", id, err)
	}
	return hydrateTask(task, cmds, last)
}

// UpdateTask overwrites the stored fields of the task with task.ID. Updating
// a nonexistent id is a silent no-op.
func (t *Tx) UpdateTask(task types.Task) error {
	last := task.LastExecuted
	if last.IsZero() {
		last = epoch
	}
	_, err := t.tx.Exec(
		`UPDATE tasks SET commands = ?, working_dir = ?, display = ?, last_executed = ? WHERE task_id = ?`,
		task.CommandString(), task.WorkingDir, task.Display, last.UTC().Format(timeLayout), task.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task %d: %w", task.ID, err)
	}
	return nil
}

// RemoveTask deletes a task, cascading to its edges and pending entry.
// Removing a nonexistent id is a silent no-op.
func (t *Tx) RemoveTask(id int64) error {
	if _, err := t.tx.Exec(`DELETE FROM tasks WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("removing task %d: %w", id, err)
	}
	return nil
}

// Tasks enumerates all tasks in insertion order.
func (t *Tx) Tasks() ([]types.Task, error) {
	rows, err := t.tx.Query(
		`SELECT task_id, commands, working_dir, display, last_executed FROM tasks ORDER BY task_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("enumerating tasks: %w", err)
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		var task types.Task
		var cmds, last string
		if err := rows.Scan(&task.ID, &cmds, &task.WorkingDir, &task.Display, &last); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		task, err = hydrateTask(task, cmds, last)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// hydrateTask decodes the stored command and timestamp columns.
func hydrateTask(task types.Task, cmds, last string) (types.Task, error) {
	parsed, err := types.ParseCommands(cmds)
	if err != nil {
		return types.Task{}, fmt.Errorf("parsing commands of task %d: %w", task.ID, err)
	}
	task.Commands = parsed

	task.LastExecuted, err = time.Parse(timeLayout, last)
	if err != nil {
		return types.Task{}, fmt.Errorf("parsing last_executed of task %d: %w", task.ID, err)
	}
	return task, nil
}

// NeverExecuted reports whether the task has never run.
func NeverExecuted(task types.Task) bool {
	return !task.LastExecuted.After(epoch)
}
