// Package syncer reconciles a freshly parsed rule set against the state
// store. One Sync call is one write transaction: it fingerprints the
// description, applies the sorted-difference of declared vertices and
// explicit edges, rescans surviving resources, and seeds the pending sets.
// Implicit edges are the executor's territory and are never touched here,
// except to preserve the implicit half of a demoted edge.
package syncer

import (
	"bytes"
	"sort"
	"strings"

	"github.com/jasonwhite/brilliant-build/internal/diff"
	"github.com/jasonwhite/brilliant-build/internal/state"
	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// Result summarizes what one Sync changed.
type Result struct {
	DescriptionChanged bool
	AddedResources     int
	RemovedResources   int
	AddedTasks         int
	RemovedTasks       int
}

// Sync brings the store into agreement with the rules. descBytes is the raw
// description content; scan observes resource state (nil means ScanFile).
func Sync(st *state.Store, descPath string, descBytes []byte, rls []types.Rule, scan Scanner) (Result, error) {
	if scan == nil {
		scan = ScanFile
	}
	for _, r := range rls {
		if err := r.Validate(); err != nil {
			return Result{}, err
		}
	}

	var res Result
	err := st.WithTx(func(tx *state.Tx) error {
		var err error
		res, err = syncTx(tx, descPath, descBytes, rls, scan)
		return err
	})
	return res, err
}

func syncTx(tx *state.Tx, descPath string, descBytes []byte, rls []types.Rule, scan Scanner) (Result, error) {
	var res Result

	if err := syncDescription(tx, descPath, descBytes, &res); err != nil {
		return res, err
	}
	if err := syncVertices(tx, rls, &res); err != nil {
		return res, err
	}
	if err := syncEdges(tx, rls); err != nil {
		return res, err
	}
	if err := rescan(tx, scan); err != nil {
		return res, err
	}
	return res, nil
}

// syncDescription refreshes the fingerprint of the description resource and
// marks it pending iff the description changed.
func syncDescription(tx *state.Tx, descPath string, descBytes []byte, res *Result) error {
	desc, err := tx.Description()
	if err != nil {
		return err
	}
	sum := FingerprintBytes(descBytes)
	if bytes.Equal(desc.Checksum, sum) && desc.Path == descPath {
		return nil
	}
	res.DescriptionChanged = true
	desc.Path = descPath
	desc.Status = types.StatusFile
	desc.Checksum = sum
	if err := tx.UpdateResource(desc); err != nil {
		return err
	}
	return tx.AddPendingResource(desc.ID)
}

// syncVertices applies the sorted difference between declared and stored
// explicit vertices.
func syncVertices(tx *state.Tx, rls []types.Rule, res *Result) error {
	// Declared side, sorted and deduplicated.
	declaredPaths := declaredResourcePaths(rls)
	declaredTasks := declaredTaskList(rls)

	// Stored side: resources that carry at least one explicit edge, and
	// every task (tasks exist only through rules).
	explicitPaths, err := explicitResourcePaths(tx)
	if err != nil {
		return err
	}
	stored, err := tx.Tasks()
	if err != nil {
		return err
	}
	storedKeys := make([]string, len(stored))
	byKey := make(map[string]types.Task, len(stored))
	for i, task := range stored {
		storedKeys[i] = task.Key()
		byKey[task.Key()] = task
	}
	sort.Strings(storedKeys)

	err = diff.Each(explicitPaths, declaredPaths, strings.Compare, func(path string, tag diff.Tag) error {
		switch tag {
		case diff.Added:
			return addDeclaredResource(tx, path, res)
		case diff.Removed:
			return removeDeclaredResource(tx, path, res)
		}
		return nil
	})
	if err != nil {
		return err
	}

	taskByKey := make(map[string]types.Task, len(declaredTasks))
	declaredKeys := make([]string, len(declaredTasks))
	for i, task := range declaredTasks {
		declaredKeys[i] = task.Key()
		taskByKey[task.Key()] = task
	}

	return diff.Each(storedKeys, declaredKeys, strings.Compare, func(key string, tag diff.Tag) error {
		switch tag {
		case diff.Added:
			id, err := tx.PutTask(taskByKey[key])
			if err != nil {
				return err
			}
			res.AddedTasks++
			return tx.AddPendingTask(id)
		case diff.Removed:
			res.RemovedTasks++
			return tx.RemoveTask(byKey[key].ID)
		case diff.None:
			// Keep the display label current; it is not part of identity.
			have := byKey[key]
			want := taskByKey[key]
			if have.Display != want.Display {
				have.Display = want.Display
				return tx.UpdateTask(have)
			}
		}
		return nil
	})
}

func addDeclaredResource(tx *state.Tx, path string, res *Result) error {
	id, err := tx.AddResource(path)
	if err != nil {
		return err
	}
	res.AddedResources++
	return tx.AddPendingResource(id)
}

// removeDeclaredResource drops the explicit half of the resource's edges.
// The vertex survives while implicit edges still reference it.
func removeDeclaredResource(tx *state.Tx, path string, res *Result) error {
	id, err := tx.FindResource(path)
	if err == types.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	out, err := tx.ResourceOutgoing(id)
	if err != nil {
		return err
	}
	for _, n := range out {
		if err := dropExplicit(tx, n.Type,
			func() error { return tx.RemoveResourceEdge(id, n.ID, n.Type) },
			func() error { return tx.SetResourceEdgeType(id, n.ID, types.EdgeImplicit) },
		); err != nil {
			return err
		}
	}

	in, err := tx.ResourceIncoming(id)
	if err != nil {
		return err
	}
	for _, n := range in {
		if err := dropExplicit(tx, n.Type,
			func() error { return tx.RemoveTaskEdge(n.ID, id, n.Type) },
			func() error { return tx.SetTaskEdgeType(n.ID, id, types.EdgeImplicit) },
		); err != nil {
			return err
		}
	}

	degIn, err := tx.ResourceDegreeIn(id)
	if err != nil {
		return err
	}
	degOut, err := tx.ResourceDegreeOut(id)
	if err != nil {
		return err
	}
	if degIn+degOut == 0 {
		res.RemovedResources++
		return tx.RemoveResource(id)
	}
	return nil
}

func dropExplicit(tx *state.Tx, typ types.EdgeType, remove, demote func() error) error {
	switch typ {
	case types.EdgeExplicit:
		return remove()
	case types.EdgeBoth:
		return demote()
	}
	return nil
}

// edgeKey orders (from, to) pairs for the sorted diff.
type edgeKey struct {
	from, to int64
}

func compareEdges(a, b edgeKey) int {
	switch {
	case a.from < b.from:
		return -1
	case a.from > b.from:
		return 1
	case a.to < b.to:
		return -1
	case a.to > b.to:
		return 1
	}
	return 0
}

// syncEdges reconciles the declared explicit edge sets against storage,
// promoting and demoting against existing implicit edges as needed.
func syncEdges(tx *state.Tx, rls []types.Rule) error {
	var declaredRT, declaredTR []edgeKey
	for _, r := range rls {
		tid, err := tx.FindTask(r.Task)
		if err != nil {
			return err
		}
		for _, in := range r.Inputs {
			rid, err := tx.AddResource(in)
			if err != nil {
				return err
			}
			declaredRT = append(declaredRT, edgeKey{rid, tid})
		}
		for _, out := range r.Outputs {
			rid, err := tx.AddResource(out)
			if err != nil {
				return err
			}
			declaredTR = append(declaredTR, edgeKey{tid, rid})
		}
	}
	sortEdges(declaredRT)
	sortEdges(declaredTR)

	storedRT, storedTR, err := explicitEdges(tx)
	if err != nil {
		return err
	}

	if err := reconcileEdges(tx, storedRT, declaredRT, resourceEdgeOps(tx)); err != nil {
		return err
	}
	return reconcileEdges(tx, storedTR, declaredTR, taskEdgeOps(tx))
}

// edgeOps abstracts over the two symmetric edge families.
type edgeOps struct {
	typeOf func(from, to int64) (types.EdgeType, error)
	put    func(from, to int64, typ types.EdgeType) error
	set    func(from, to int64, typ types.EdgeType) error
	remove func(from, to int64, typ types.EdgeType) error
}

func resourceEdgeOps(tx *state.Tx) edgeOps {
	return edgeOps{tx.ResourceEdgeType, tx.PutResourceEdge, tx.SetResourceEdgeType, tx.RemoveResourceEdge}
}

func taskEdgeOps(tx *state.Tx) edgeOps {
	return edgeOps{tx.TaskEdgeType, tx.PutTaskEdge, tx.SetTaskEdgeType, tx.RemoveTaskEdge}
}

func reconcileEdges(tx *state.Tx, stored, declared []edgeKey, ops edgeOps) error {
	return diff.Each(stored, declared, compareEdges, func(e edgeKey, tag diff.Tag) error {
		switch tag {
		case diff.Added:
			typ, err := ops.typeOf(e.from, e.to)
			if err == types.ErrNotFound {
				return ops.put(e.from, e.to, types.EdgeExplicit)
			}
			if err != nil {
				return err
			}
			if typ.HasImplicit() {
				return ops.set(e.from, e.to, types.EdgeBoth)
			}
			return nil
		case diff.Removed:
			typ, err := ops.typeOf(e.from, e.to)
			if err == types.ErrNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			if typ == types.EdgeBoth {
				return ops.set(e.from, e.to, types.EdgeImplicit)
			}
			return ops.remove(e.from, e.to, typ)
		}
		return nil
	})
}

// rescan refreshes status and checksum of every resource, marking changed
// ones pending.
func rescan(tx *state.Tx, scan Scanner) error {
	resources, err := tx.Resources()
	if err != nil {
		return err
	}
	for _, r := range resources {
		status, sum, err := scan(r.Path)
		if err != nil {
			return err
		}
		if status == r.Status && bytes.Equal(sum, r.Checksum) {
			continue
		}
		r.Status = status
		r.Checksum = sum
		if err := tx.UpdateResource(r); err != nil {
			return err
		}
		if err := tx.AddPendingResource(r.ID); err != nil {
			return err
		}
	}
	return nil
}

func declaredResourcePaths(rls []types.Rule) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rls {
		for _, p := range append(append([]string{}, r.Inputs...), r.Outputs...) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

func declaredTaskList(rls []types.Rule) []types.Task {
	seen := make(map[string]bool)
	var out []types.Task
	for _, r := range rls {
		key := r.Task.Key()
		if !seen[key] {
			seen[key] = true
			out = append(out, r.Task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// explicitResourcePaths lists, sorted, the paths of resources incident to at
// least one explicit or both edge.
func explicitResourcePaths(tx *state.Tx) ([]string, error) {
	ids := make(map[int64]bool)
	rt, err := tx.ResourceEdges()
	if err != nil {
		return nil, err
	}
	for _, e := range rt {
		if e.Type.HasExplicit() {
			ids[e.From] = true
		}
	}
	tr, err := tx.TaskEdges()
	if err != nil {
		return nil, err
	}
	for _, e := range tr {
		if e.Type.HasExplicit() {
			ids[e.To] = true
		}
	}

	var out []string
	for id := range ids {
		r, err := tx.Resource(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r.Path)
	}
	sort.Strings(out)
	return out, nil
}

// explicitEdges returns the stored explicit edge keys of both families,
// sorted for the diff.
func explicitEdges(tx *state.Tx) (rt, tr []edgeKey, err error) {
	redges, err := tx.ResourceEdges()
	if err != nil {
		return nil, nil, err
	}
	for _, e := range redges {
		if e.Type.HasExplicit() {
			rt = append(rt, edgeKey{e.From, e.To})
		}
	}
	tedges, err := tx.TaskEdges()
	if err != nil {
		return nil, nil, err
	}
	for _, e := range tedges {
		if e.Type.HasExplicit() {
			tr = append(tr, edgeKey{e.From, e.To})
		}
	}
	sortEdges(rt)
	sortEdges(tr)
	return rt, tr, nil
}

func sortEdges(edges []edgeKey) {
	sort.Slice(edges, func(i, j int) bool { return compareEdges(edges[i], edges[j]) < 0 })
}
