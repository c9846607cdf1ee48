package state

import (
	"database/sql"
	"fmt"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// Edge is one stored dependency edge, identified by its endpoints. The vertex
// colors of From and To depend on which table the edge came from.
type Edge struct {
	From int64
	To   int64
	Type types.EdgeType
}

// Neighbor pairs a neighbor vertex id with the type of the connecting edge.
type Neighbor struct {
	ID   int64
	Type types.EdgeType
}

// The two edge tables are symmetric; edgeTable selects one.
type edgeTable struct {
	name      string
	fromTable string // table holding the from endpoint
	fromCol   string
	toTable   string
	toCol     string
}

var (
	resourceEdges = edgeTable{"resource_edges", "resources", "resource_id", "tasks", "task_id"}
	taskEdges     = edgeTable{"task_edges", "tasks", "task_id", "resources", "resource_id"}
)

// PutResourceEdge inserts a resource→task edge. Inserting a duplicate
// (from, to, type) triple fails with ErrDuplicateEdge; a missing endpoint
// fails with ErrInvalidEdge.
func (t *Tx) PutResourceEdge(from, to int64, typ types.EdgeType) error {
	return t.putEdge(resourceEdges, from, to, typ)
}

// PutTaskEdge inserts a task→resource edge with the same semantics as
// PutResourceEdge.
func (t *Tx) PutTaskEdge(from, to int64, typ types.EdgeType) error {
	return t.putEdge(taskEdges, from, to, typ)
}

func (t *Tx) putEdge(et edgeTable, from, to int64, typ types.EdgeType) error {
	for _, ep := range []struct {
		table, col string
		id         int64
	}{
		{et.fromTable, et.fromCol, from},
		{et.toTable, et.toCol, to},
	} {
		var one int
		err := t.tx.QueryRow(
			fmt.Sprintf(`SELECT 1 FROM %s WHERE %s = ?`, ep.table, ep.col), ep.id,
		).Scan(&one)
		if err == sql.ErrNoRows {
			return types.ErrInvalidEdge
		}
		if err != nil {
			return fmt.Errorf("checking edge endpoint: %w", err)
		}
	}

	var one int
	err := t.tx.QueryRow(
		fmt.Sprintf(`SELECT 1 FROM %s WHERE from_id = ? AND to_id = ? AND edge_type = ?`, et.name),
		from, to, int(typ),
	).Scan(&one)
	if err == nil {
		return types.ErrDuplicateEdge
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("checking edge uniqueness: %w", err)
	}

	_, err = t.tx.Exec(
		fmt.Sprintf(`INSERT INTO %s (from_id, to_id, edge_type) VALUES (?, ?, ?)`, et.name),
		from, to, int(typ),
	)
	if err != nil {
		return fmt.Errorf("inserting edge %d->%d: %w", from, to, err)
	}
	return nil
}

// RemoveResourceEdge deletes the resource→task edge with the given type.
// Removing a nonexistent edge is a silent no-op.
func (t *Tx) RemoveResourceEdge(from, to int64, typ types.EdgeType) error {
	return t.removeEdge(resourceEdges, from, to, typ)
}

// RemoveTaskEdge deletes the task→resource edge with the given type.
func (t *Tx) RemoveTaskEdge(from, to int64, typ types.EdgeType) error {
	return t.removeEdge(taskEdges, from, to, typ)
}

func (t *Tx) removeEdge(et edgeTable, from, to int64, typ types.EdgeType) error {
	_, err := t.tx.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE from_id = ? AND to_id = ? AND edge_type = ?`, et.name),
		from, to, int(typ),
	)
	if err != nil {
		return fmt.Errorf("removing edge %d->%d: %w", from, to, err)
	}
	return nil
}

// ResourceEdgeExists reports whether the resource→task edge with the given
// type is stored.
func (t *Tx) ResourceEdgeExists(from, to int64, typ types.EdgeType) (bool, error) {
	return t.edgeExists(resourceEdges, from, to, typ)
}

// TaskEdgeExists reports whether the task→resource edge with the given type
// is stored.
func (t *Tx) TaskEdgeExists(from, to int64, typ types.EdgeType) (bool, error) {
	return t.edgeExists(taskEdges, from, to, typ)
}

func (t *Tx) edgeExists(et edgeTable, from, to int64, typ types.EdgeType) (bool, error) {
	var one int
	err := t.tx.QueryRow(
		fmt.Sprintf(`SELECT 1 FROM %s WHERE from_id = ? AND to_id = ? AND edge_type = ?`, et.name),
		from, to, int(typ),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking edge: %w", err)
	}
	return true, nil
}

// ResourceEdgeType returns the combined type of all stored resource→task
// edges between from and to. Separate explicit and implicit rows merge to
// EdgeBoth. Returns ErrNotFound when no edge connects the pair.
func (t *Tx) ResourceEdgeType(from, to int64) (types.EdgeType, error) {
	return t.edgeType(resourceEdges, from, to)
}

// TaskEdgeType is ResourceEdgeType for task→resource edges.
func (t *Tx) TaskEdgeType(from, to int64) (types.EdgeType, error) {
	return t.edgeType(taskEdges, from, to)
}

func (t *Tx) edgeType(et edgeTable, from, to int64) (types.EdgeType, error) {
	rows, err := t.tx.Query(
		fmt.Sprintf(`SELECT edge_type FROM %s WHERE from_id = ? AND to_id = ?`, et.name),
		from, to,
	)
	if err != nil {
		return 0, fmt.Errorf("querying edge type: %w", err)
	}
	defer rows.Close()

	var merged types.EdgeType
	for rows.Next() {
		var raw int
		if err := rows.Scan(&raw); err != nil {
			return 0, fmt.Errorf("scanning edge type: %w", err)
		}
		merged = mergeEdgeTypes(merged, types.EdgeType(raw))
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if merged == 0 {
		return 0, types.ErrNotFound
	}
	return merged, nil
}

// SetResourceEdgeType replaces whatever rows connect from and to with a
// single edge of the given type.
func (t *Tx) SetResourceEdgeType(from, to int64, typ types.EdgeType) error {
	return t.setEdgeType(resourceEdges, from, to, typ)
}

// SetTaskEdgeType is SetResourceEdgeType for task→resource edges.
func (t *Tx) SetTaskEdgeType(from, to int64, typ types.EdgeType) error {
	return t.setEdgeType(taskEdges, from, to, typ)
}

func (t *Tx) setEdgeType(et edgeTable, from, to int64, typ types.EdgeType) error {
	_, err := t.tx.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE from_id = ? AND to_id = ?`, et.name), from, to,
	)
	if err != nil {
		return fmt.Errorf("clearing edge %d->%d: %w", from, to, err)
	}
	return t.putEdge(et, from, to, typ)
}

// ResourceEdges enumerates all resource→task edges in insertion order.
func (t *Tx) ResourceEdges() ([]Edge, error) {
	return t.edges(resourceEdges)
}

// TaskEdges enumerates all task→resource edges in insertion order.
func (t *Tx) TaskEdges() ([]Edge, error) {
	return t.edges(taskEdges)
}

func (t *Tx) edges(et edgeTable) ([]Edge, error) {
	rows, err := t.tx.Query(
		fmt.Sprintf(`SELECT from_id, to_id, edge_type FROM %s ORDER BY edge_id`, et.name),
	)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", et.name, err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		var raw int
		if err := rows.Scan(&e.From, &e.To, &raw); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		e.Type = types.EdgeType(raw)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResourceOutgoing returns the tasks downstream of a resource.
func (t *Tx) ResourceOutgoing(id int64) ([]Neighbor, error) {
	return t.neighbors(resourceEdges, "from_id", "to_id", id)
}

// ResourceIncoming returns the tasks upstream of a resource.
func (t *Tx) ResourceIncoming(id int64) ([]Neighbor, error) {
	return t.neighbors(taskEdges, "to_id", "from_id", id)
}

// TaskOutgoing returns the resources downstream of a task.
func (t *Tx) TaskOutgoing(id int64) ([]Neighbor, error) {
	return t.neighbors(taskEdges, "from_id", "to_id", id)
}

// TaskIncoming returns the resources upstream of a task.
func (t *Tx) TaskIncoming(id int64) ([]Neighbor, error) {
	return t.neighbors(resourceEdges, "to_id", "from_id", id)
}

func (t *Tx) neighbors(et edgeTable, keyCol, valCol string, id int64) ([]Neighbor, error) {
	rows, err := t.tx.Query(
		fmt.Sprintf(`SELECT %s, edge_type FROM %s WHERE %s = ? ORDER BY edge_id`, valCol, et.name, keyCol),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying neighbors of %d: %w", id, err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		var raw int
		if err := rows.Scan(&n.ID, &raw); err != nil {
			return nil, fmt.Errorf("scanning neighbor: %w", err)
		}
		n.Type = types.EdgeType(raw)
		out = append(out, n)
	}
	return out, rows.Err()
}

// ResourceDegreeIn counts edges pointing at the resource.
func (t *Tx) ResourceDegreeIn(id int64) (int, error) {
	return t.count(`SELECT COUNT(*) FROM task_edges WHERE to_id = ?`, id)
}

// ResourceDegreeOut counts edges leaving the resource.
func (t *Tx) ResourceDegreeOut(id int64) (int, error) {
	return t.count(`SELECT COUNT(*) FROM resource_edges WHERE from_id = ?`, id)
}

// TaskDegreeIn counts edges pointing at the task.
func (t *Tx) TaskDegreeIn(id int64) (int, error) {
	return t.count(`SELECT COUNT(*) FROM resource_edges WHERE to_id = ?`, id)
}

// TaskDegreeOut counts edges leaving the task.
func (t *Tx) TaskDegreeOut(id int64) (int, error) {
	return t.count(`SELECT COUNT(*) FROM task_edges WHERE from_id = ?`, id)
}

func (t *Tx) count(query string, args ...any) (int, error) {
	var n int
	if err := t.tx.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting edges: %w", err)
	}
	return n, nil
}

// mergeEdgeTypes folds two origins into one stored type.
func mergeEdgeTypes(a, b types.EdgeType) types.EdgeType {
	if a == 0 {
		return b
	}
	if a == b {
		return a
	}
	return types.EdgeBoth
}
