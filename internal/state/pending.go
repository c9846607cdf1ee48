package state

import (
	"database/sql"
	"fmt"
)

// The pending sets mark vertices the next executor run must visit. All
// operations are idempotent; removing a vertex clears its pending entry via
// cascade.

// AddPendingResource marks a resource pending.
func (t *Tx) AddPendingResource(id int64) error {
	return t.addPending("pending_resources", "resource_id", id)
}

// AddPendingTask marks a task pending.
func (t *Tx) AddPendingTask(id int64) error {
	return t.addPending("pending_tasks", "task_id", id)
}

func (t *Tx) addPending(table, col string, id int64) error {
	_, err := t.tx.Exec(
		fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s) VALUES (?)`, table, col), id,
	)
	if err != nil {
		return fmt.Errorf("marking %d pending: %w", id, err)
	}
	return nil
}

// RemovePendingResource clears a resource's pending mark.
func (t *Tx) RemovePendingResource(id int64) error {
	return t.removePending("pending_resources", "resource_id", id)
}

// RemovePendingTask clears a task's pending mark.
func (t *Tx) RemovePendingTask(id int64) error {
	return t.removePending("pending_tasks", "task_id", id)
}

func (t *Tx) removePending(table, col string, id int64) error {
	_, err := t.tx.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, col), id,
	)
	if err != nil {
		return fmt.Errorf("unmarking %d pending: %w", id, err)
	}
	return nil
}

// IsPendingResource reports whether the resource is pending.
func (t *Tx) IsPendingResource(id int64) (bool, error) {
	return t.isPending("pending_resources", "resource_id", id)
}

// IsPendingTask reports whether the task is pending.
func (t *Tx) IsPendingTask(id int64) (bool, error) {
	return t.isPending("pending_tasks", "task_id", id)
}

func (t *Tx) isPending(table, col string, id int64) (bool, error) {
	var one int
	err := t.tx.QueryRow(
		fmt.Sprintf(`SELECT 1 FROM %s WHERE %s = ?`, table, col), id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking pending %d: %w", id, err)
	}
	return true, nil
}

// PendingResources lists pending resource ids in ascending id order.
func (t *Tx) PendingResources() ([]int64, error) {
	return t.pending("pending_resources", "resource_id")
}

// PendingTasks lists pending task ids in ascending id order.
func (t *Tx) PendingTasks() ([]int64, error) {
	return t.pending("pending_tasks", "task_id")
}

func (t *Tx) pending(table, col string) ([]int64, error) {
	rows, err := t.tx.Query(
		fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s`, col, table, col),
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning pending id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
