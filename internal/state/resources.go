package state

import (
	"database/sql"
	"fmt"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// PutResource inserts a new resource and returns its id. Inserting a path
// that already exists fails with ErrDuplicate.
func (t *Tx) PutResource(r types.Resource) (int64, error) {
	if r.Path == "" {
		return 0, types.ErrEmptyPath
	}

	var dup int64
	err := t.tx.QueryRow(
		`SELECT resource_id FROM resources WHERE path = ?`, r.Path,
	).Scan(&dup)
	if err == nil {
		return 0, types.ErrDuplicate
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("checking resource uniqueness: %w", err)
	}

	res, err := t.tx.Exec(
		`INSERT INTO resources (path, status, checksum) VALUES (?, ?, ?)`,
		r.Path, int(r.Status), blob(r.Checksum),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting resource %s: %w", r.Path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("resource id: %w", err)
	}
	return id, nil
}

// AddResource returns the id of the resource with the given path, inserting
// a fresh row with unknown status when it does not exist yet.
func (t *Tx) AddResource(path string) (int64, error) {
	id, err := t.FindResource(path)
	if err == nil {
		return id, nil
	}
	if err != types.ErrNotFound {
		return 0, err
	}
	return t.PutResource(types.Resource{Path: path})
}

// FindResource resolves a path to a resource id. Returns ErrNotFound when no
// resource has the path.
func (t *Tx) FindResource(path string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(
		`SELECT resource_id FROM resources WHERE path = ?`, path,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, types.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("finding resource %s: %w", path, err)
	}
	return id, nil
}

// Resource looks up a resource by id. Returns ErrNotFound for unknown ids.
func (t *Tx) Resource(id int64) (types.Resource, error) {
	var r types.Resource
	var status int
	err := t.tx.QueryRow(
		`SELECT resource_id, path, status, checksum FROM resources WHERE resource_id = ?`, id,
	).Scan(&r.ID, &r.Path, &status, &r.Checksum)
	if err == sql.ErrNoRows {
		return types.Resource{}, types.ErrNotFound
	}
	if err != nil {
		return types.Resource{}, fmt.Errorf("getting resource %d: %w", id, err)
	}
	r.Status = types.ResourceStatus(status)
	return r, nil
}

// UpdateResource overwrites the stored fields of the resource with r.ID.
// Updating a nonexistent id is a silent no-op.
func (t *Tx) UpdateResource(r types.Resource) error {
	_, err := t.tx.Exec(
		`UPDATE resources SET path = ?, status = ?, checksum = ? WHERE resource_id = ?`,
		r.Path, int(r.Status), blob(r.Checksum), r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating resource %d: %w", r.ID, err)
	}
	return nil
}

// RemoveResource deletes a resource. Incident edges and pending entries go
// with it via cascade. Removing a nonexistent id is a silent no-op.
func (t *Tx) RemoveResource(id int64) error {
	if _, err := t.tx.Exec(`DELETE FROM resources WHERE resource_id = ?`, id); err != nil {
		return fmt.Errorf("removing resource %d: %w", id, err)
	}
	return nil
}

// RemoveResourceByPath deletes a resource by its natural key.
func (t *Tx) RemoveResourceByPath(path string) error {
	if _, err := t.tx.Exec(`DELETE FROM resources WHERE path = ?`, path); err != nil {
		return fmt.Errorf("removing resource %s: %w", path, err)
	}
	return nil
}

// Resources enumerates all resources except the description row, in
// insertion order.
func (t *Tx) Resources() ([]types.Resource, error) {
	rows, err := t.tx.Query(
		`SELECT resource_id, path, status, checksum FROM resources
		 WHERE resource_id > 1 ORDER BY resource_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("enumerating resources: %w", err)
	}
	defer rows.Close()

	var out []types.Resource
	for rows.Next() {
		var r types.Resource
		var status int
		if err := rows.Scan(&r.ID, &r.Path, &status, &r.Checksum); err != nil {
			return nil, fmt.Errorf("scanning resource: %w", err)
		}
		r.Status = types.ResourceStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Description returns the reserved description resource (id 1).
func (t *Tx) Description() (types.Resource, error) {
	return t.Resource(types.DescriptionResourceID)
}

// blob normalizes a nil checksum to an empty byte slice so the column stays
// NOT NULL.
func blob(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
