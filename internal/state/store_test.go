package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// setupStore opens a state file in a temp dir, ready for transactions.
func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "BUILD.state"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func begin(t *testing.T, s *Store) *Tx {
	t.Helper()
	tx, err := s.Begin()
	require.NoError(t, err)
	return tx
}

func TestDescriptionRowReserved(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	desc, err := tx.Description()
	require.NoError(t, err)
	assert.Equal(t, types.DescriptionResourceID, desc.ID)
	assert.Empty(t, desc.Path)
	assert.Empty(t, desc.Checksum)

	// Enumeration skips the description row.
	resources, err := tx.Resources()
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestResourceRoundTrip(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	in := types.Resource{Path: "/p/foo.c", Status: types.StatusFile, Checksum: []byte{1, 2, 3}}
	id, err := tx.PutResource(in)
	require.NoError(t, err)
	assert.Greater(t, id, types.DescriptionResourceID)

	got, err := tx.Resource(id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.True(t, in.Equal(got))

	found, err := tx.FindResource("/p/foo.c")
	require.NoError(t, err)
	assert.Equal(t, id, found)
}

func TestPutResourceDuplicate(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	_, err := tx.PutResource(types.Resource{Path: "/a"})
	require.NoError(t, err)
	_, err = tx.PutResource(types.Resource{Path: "/a"})
	assert.ErrorIs(t, err, types.ErrDuplicate)

	// The empty path is reserved for the description row.
	_, err = tx.PutResource(types.Resource{})
	assert.ErrorIs(t, err, types.ErrEmptyPath)
}

func TestAddResourceIsIdempotent(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	a, err := tx.AddResource("/a")
	require.NoError(t, err)
	b, err := tx.AddResource("/a")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRemoveResourceSilentAndCascading(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	rid, err := tx.AddResource("/a")
	require.NoError(t, err)
	tid, err := tx.PutTask(types.Task{Commands: [][]string{{"true"}}, WorkingDir: "/p"})
	require.NoError(t, err)
	require.NoError(t, tx.PutResourceEdge(rid, tid, types.EdgeExplicit))
	require.NoError(t, tx.AddPendingResource(rid))

	require.NoError(t, tx.RemoveResource(rid))

	// Cascade removed the incident edge and the pending entry.
	deg, err := tx.TaskDegreeIn(tid)
	require.NoError(t, err)
	assert.Zero(t, deg)
	pending, err := tx.PendingResources()
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Removing again is silent.
	assert.NoError(t, tx.RemoveResource(rid))

	_, err = tx.Resource(rid)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestTaskRoundTrip(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	in := types.Task{
		Commands:   [][]string{{"gcc", "-c", "foo.c", "-o", "foo.o"}},
		WorkingDir: "/p",
		Display:    "compile foo.c",
	}
	id, err := tx.PutTask(in)
	require.NoError(t, err)

	got, err := tx.Task(id)
	require.NoError(t, err)
	assert.Equal(t, in.Commands, got.Commands)
	assert.Equal(t, in.WorkingDir, got.WorkingDir)
	assert.Equal(t, in.Display, got.Display)
	assert.True(t, NeverExecuted(got))

	got.LastExecuted = time.Now()
	require.NoError(t, tx.UpdateTask(got))
	got, err = tx.Task(id)
	require.NoError(t, err)
	assert.False(t, NeverExecuted(got))
}

func TestPutTaskRejectsEmptyCommands(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	_, err := tx.PutTask(types.Task{WorkingDir: "/p"})
	assert.ErrorIs(t, err, types.ErrEmptyCommands)
}

func TestTaskDuplicateKey(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	task := types.Task{Commands: [][]string{{"true"}}, WorkingDir: "/p"}
	_, err := tx.PutTask(task)
	require.NoError(t, err)

	// Same key, different display: still a duplicate.
	task.Display = "other label"
	_, err = tx.PutTask(task)
	assert.ErrorIs(t, err, types.ErrDuplicate)

	// A different working directory is a different task.
	task.WorkingDir = "/q"
	_, err = tx.PutTask(task)
	assert.NoError(t, err)
}

func TestInsertRemoveInsertYieldsNewID(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	first, err := tx.PutResource(types.Resource{Path: "/a"})
	require.NoError(t, err)
	require.NoError(t, tx.RemoveResource(first))
	second, err := tx.PutResource(types.Resource{Path: "/a"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEnumerationInsertionOrder(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	paths := []string{"/c", "/a", "/b"}
	for _, p := range paths {
		_, err := tx.AddResource(p)
		require.NoError(t, err)
	}

	resources, err := tx.Resources()
	require.NoError(t, err)
	got := make([]string, len(resources))
	for i, r := range resources {
		got[i] = r.Path
	}
	assert.Equal(t, paths, got)
}

func TestEdgeOperations(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	rid, err := tx.AddResource("/a")
	require.NoError(t, err)
	tid, err := tx.PutTask(types.Task{Commands: [][]string{{"true"}}, WorkingDir: "/p"})
	require.NoError(t, err)

	require.NoError(t, tx.PutResourceEdge(rid, tid, types.EdgeExplicit))
	assert.ErrorIs(t, tx.PutResourceEdge(rid, tid, types.EdgeExplicit), types.ErrDuplicateEdge)

	exists, err := tx.ResourceEdgeExists(rid, tid, types.EdgeExplicit)
	require.NoError(t, err)
	assert.True(t, exists)

	// An edge to a missing vertex is invalid.
	assert.ErrorIs(t, tx.PutResourceEdge(rid, tid+99, types.EdgeExplicit), types.ErrInvalidEdge)
	assert.ErrorIs(t, tx.PutTaskEdge(tid+99, rid, types.EdgeExplicit), types.ErrInvalidEdge)

	// Degrees match the edge tables.
	out, err := tx.ResourceDegreeOut(rid)
	require.NoError(t, err)
	assert.Equal(t, 1, out)
	in, err := tx.TaskDegreeIn(tid)
	require.NoError(t, err)
	assert.Equal(t, 1, in)

	// Silent remove of a nonexistent edge.
	assert.NoError(t, tx.RemoveResourceEdge(rid, tid, types.EdgeImplicit))

	require.NoError(t, tx.RemoveResourceEdge(rid, tid, types.EdgeExplicit))
	exists, err = tx.ResourceEdgeExists(rid, tid, types.EdgeExplicit)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEdgeTypeMergeAndSet(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	tid, err := tx.PutTask(types.Task{Commands: [][]string{{"true"}}, WorkingDir: "/p"})
	require.NoError(t, err)
	rid, err := tx.AddResource("/out")
	require.NoError(t, err)

	_, err = tx.TaskEdgeType(tid, rid)
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, tx.PutTaskEdge(tid, rid, types.EdgeExplicit))
	require.NoError(t, tx.PutTaskEdge(tid, rid, types.EdgeImplicit))

	typ, err := tx.TaskEdgeType(tid, rid)
	require.NoError(t, err)
	assert.Equal(t, types.EdgeBoth, typ)

	require.NoError(t, tx.SetTaskEdgeType(tid, rid, types.EdgeBoth))
	edges, err := tx.TaskEdges()
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, types.EdgeBoth, edges[0].Type)
}

func TestNeighborIteration(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	src, err := tx.AddResource("/src")
	require.NoError(t, err)
	hdr, err := tx.AddResource("/hdr")
	require.NoError(t, err)
	out, err := tx.AddResource("/out")
	require.NoError(t, err)
	tid, err := tx.PutTask(types.Task{Commands: [][]string{{"cc"}}, WorkingDir: "/p"})
	require.NoError(t, err)

	require.NoError(t, tx.PutResourceEdge(src, tid, types.EdgeExplicit))
	require.NoError(t, tx.PutResourceEdge(hdr, tid, types.EdgeImplicit))
	require.NoError(t, tx.PutTaskEdge(tid, out, types.EdgeExplicit))

	inputs, err := tx.TaskIncoming(tid)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, Neighbor{ID: src, Type: types.EdgeExplicit}, inputs[0])
	assert.Equal(t, Neighbor{ID: hdr, Type: types.EdgeImplicit}, inputs[1])

	outputs, err := tx.TaskOutgoing(tid)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, out, outputs[0].ID)

	tasks, err := tx.ResourceOutgoing(src)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, tid, tasks[0].ID)

	producers, err := tx.ResourceIncoming(out)
	require.NoError(t, err)
	require.Len(t, producers, 1)
	assert.Equal(t, tid, producers[0].ID)
}

func TestPendingSetsIdempotent(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()

	rid, err := tx.AddResource("/a")
	require.NoError(t, err)
	tid, err := tx.PutTask(types.Task{Commands: [][]string{{"true"}}, WorkingDir: "/p"})
	require.NoError(t, err)

	require.NoError(t, tx.AddPendingResource(rid))
	require.NoError(t, tx.AddPendingResource(rid))
	require.NoError(t, tx.AddPendingTask(tid))

	pr, err := tx.PendingResources()
	require.NoError(t, err)
	assert.Equal(t, []int64{rid}, pr)

	ok, err := tx.IsPendingTask(tid)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, tx.RemovePendingTask(tid))
	require.NoError(t, tx.RemovePendingTask(tid))
	ok, err = tx.IsPendingTask(tid)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransactionRollback(t *testing.T) {
	s := setupStore(t)

	tx := begin(t, s)
	_, err := tx.AddResource("/a")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	tx = begin(t, s)
	defer tx.Rollback()
	_, err = tx.FindResource("/a")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPersistenceAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BUILD.state")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WithTx(func(tx *Tx) error {
		_, err := tx.PutResource(types.Resource{Path: "/a", Status: types.StatusFile, Checksum: []byte{9}})
		return err
	}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	tx := begin(t, s)
	defer tx.Rollback()
	id, err := tx.FindResource("/a")
	require.NoError(t, err)
	r, err := tx.Resource(id)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, r.Checksum)
}

func TestStoreClosed(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Close())
	_, err := s.Begin()
	assert.ErrorIs(t, err, types.ErrStoreClosed)
}

func TestBuildHistory(t *testing.T) {
	s := setupStore(t)

	id := NewBuildID()
	started := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.WithTx(func(tx *Tx) error {
		return tx.RecordBuildStart(id, started)
	}))
	require.NoError(t, s.WithTx(func(tx *Tx) error {
		return tx.FinishBuild(id, started.Add(time.Second), 3, 1)
	}))

	tx := begin(t, s)
	defer tx.Rollback()
	last, err := tx.LastBuild()
	require.NoError(t, err)
	assert.Equal(t, id, last.ID)
	assert.Equal(t, 3, last.TasksRun)
	assert.Equal(t, 1, last.Failures)
	assert.True(t, last.FinishedAt.After(last.StartedAt))
}

func TestLastBuildEmpty(t *testing.T) {
	s := setupStore(t)
	tx := begin(t, s)
	defer tx.Rollback()
	_, err := tx.LastBuild()
	assert.ErrorIs(t, err, ErrNoBuilds)
}
