// Package executor walks the pending subgraph in parallel topological order,
// runs pending tasks through the platform command runner, reinterprets the
// observed file accesses as implicit edges, and applies each task's outcome
// in its own short write transaction so a crash never leaves a task
// half-recorded.
package executor

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/jasonwhite/brilliant-build/internal/diff"
	"github.com/jasonwhite/brilliant-build/internal/graph"
	"github.com/jasonwhite/brilliant-build/internal/state"
	"github.com/jasonwhite/brilliant-build/internal/syncer"
	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// Executor runs pending tasks. Zero values get sensible defaults: Workers
// falls back to the logical CPU count, Scan to the filesystem scanner, Log
// to the default slog logger.
type Executor struct {
	Store   *state.Store
	Runner  types.Runner
	Workers int
	DryRun  bool
	Scan    syncer.Scanner
	Log     *slog.Logger
}

// Summary is the outcome of one Run.
type Summary struct {
	BuildID  string
	TasksRun int
	WouldRun []string
	Failures []*TaskFailure
}

// Run executes one build pass. It returns a BuildError when tasks failed, a
// CycleError when the pending subgraph intersects a cycle, and the context
// error when interrupted; the summary is valid in all of these cases.
func (e *Executor) Run(ctx context.Context) (*Summary, error) {
	workers := e.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	scan := e.Scan
	if scan == nil {
		scan = syncer.ScanFile
	}
	log := e.Log
	if log == nil {
		log = slog.Default()
	}

	plan, err := e.plan()
	if err != nil {
		return nil, err
	}
	summary := &Summary{}

	if cycles := intersectingCycles(plan.full, plan.sub); len(cycles) > 0 {
		return summary, &CycleError{Cycles: cycles}
	}

	if e.DryRun {
		summary.WouldRun = e.dryRun(ctx, plan, workers)
		return summary, nil
	}

	summary.BuildID = state.NewBuildID()
	started := time.Now()
	err = e.Store.WithTx(func(tx *state.Tx) error {
		// The description's pending mark is consumed here: the syncer has
		// already translated the change into pending vertices.
		if err := tx.RemovePendingResource(types.DescriptionResourceID); err != nil {
			return err
		}
		return tx.RecordBuildStart(summary.BuildID, started)
	})
	if err != nil {
		return summary, err
	}

	run := &buildRun{ex: e, plan: plan, scan: scan, log: log, summary: summary}
	walkErr := plan.sub.Walk(ctx, workers, run.visit)

	finishErr := e.Store.WithTx(func(tx *state.Tx) error {
		return tx.FinishBuild(summary.BuildID, time.Now(), summary.TasksRun, len(summary.Failures))
	})

	switch {
	case ctx.Err() != nil:
		return summary, ctx.Err()
	case len(summary.Failures) > 0:
		return summary, &BuildError{Failures: summary.Failures}
	case walkErr != nil:
		return summary, walkErr
	}
	return summary, finishErr
}

// buildPlan is the immutable snapshot a run works from.
type buildPlan struct {
	full       *graph.Graph
	sub        *graph.Graph
	tasks      map[int64]types.Task
	pendingRes map[int64]bool
	pendingTsk map[int64]bool
}

// plan snapshots the graph, the pending sets, and the task values inside one
// read transaction.
func (e *Executor) plan() (*buildPlan, error) {
	tx, err := e.Store.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	g, err := graph.Build(tx)
	if err != nil {
		return nil, err
	}

	tasks, err := tx.Tasks()
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]types.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	pr, err := tx.PendingResources()
	if err != nil {
		return nil, err
	}
	pt, err := tx.PendingTasks()
	if err != nil {
		return nil, err
	}

	plan := &buildPlan{
		full:       g,
		tasks:      byID,
		pendingRes: make(map[int64]bool, len(pr)),
		pendingTsk: make(map[int64]bool, len(pt)),
	}
	var roots []graph.Vertex
	for _, id := range pr {
		plan.pendingRes[id] = true
		if v := graph.ResourceVertex(id); g.Has(v) {
			roots = append(roots, v)
		}
	}
	for _, id := range pt {
		plan.pendingTsk[id] = true
		if v := graph.TaskVertex(id); g.Has(v) {
			roots = append(roots, v)
		}
	}
	plan.sub = g.Subgraph(roots)

	return plan, tx.Rollback()
}

// intersectingCycles returns the cycles of the full graph that touch the
// subgraph, rendered as vertex names.
func intersectingCycles(full, sub *graph.Graph) [][]string {
	var out [][]string
	for _, comp := range full.Cycles() {
		touches := false
		for _, v := range comp {
			if sub.Has(v) {
				touches = true
				break
			}
		}
		if touches {
			names := make([]string, len(comp))
			for i, v := range comp {
				names[i] = full.Name(v)
			}
			out = append(out, names)
		}
	}
	return out
}

// dryRun walks the subgraph without side effects and reports which tasks a
// real run would execute, assuming every executed task changes its outputs.
func (e *Executor) dryRun(ctx context.Context, plan *buildPlan, workers int) []string {
	var mu sync.Mutex
	pendingRes := make(map[int64]bool, len(plan.pendingRes))
	pendingTsk := make(map[int64]bool, len(plan.pendingTsk))
	for id := range plan.pendingRes {
		pendingRes[id] = true
	}
	for id := range plan.pendingTsk {
		pendingTsk[id] = true
	}

	var would []string
	// The walk only errors when a visit errors; this visit never does.
	_ = plan.sub.Walk(ctx, workers, func(_ context.Context, v graph.Vertex) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		switch v.Kind {
		case graph.KindResource:
			if pendingRes[v.ID] {
				for _, edge := range plan.sub.Outgoing(v) {
					pendingTsk[edge.To.ID] = true
				}
			}
		case graph.KindTask:
			if pendingTsk[v.ID] {
				would = append(would, plan.tasks[v.ID].DisplayName())
				for _, edge := range plan.sub.Outgoing(v) {
					pendingRes[edge.To.ID] = true
				}
			}
		}
		return true, nil
	})
	return would
}

// buildRun carries the mutable pieces of one real run.
type buildRun struct {
	ex      *Executor
	plan    *buildPlan
	scan    syncer.Scanner
	log     *slog.Logger
	summary *Summary
	mu      sync.Mutex
}

// visit is the walk callback. Resources propagate their pending mark to
// successor tasks; pending tasks run.
func (r *buildRun) visit(ctx context.Context, v graph.Vertex) (bool, error) {
	if v.Kind == graph.KindResource {
		return true, r.visitResource(v)
	}
	return r.visitTask(ctx, v)
}

// visitResource consumes a resource's pending mark by marking its successor
// tasks pending. Resources are otherwise passive.
func (r *buildRun) visitResource(v graph.Vertex) error {
	return r.ex.Store.WithTx(func(tx *state.Tx) error {
		pending, err := tx.IsPendingResource(v.ID)
		if err != nil || !pending {
			return err
		}
		for _, edge := range r.plan.full.Outgoing(v) {
			if err := tx.AddPendingTask(edge.To.ID); err != nil {
				return err
			}
		}
		return tx.RemovePendingResource(v.ID)
	})
}

func (r *buildRun) visitTask(ctx context.Context, v graph.Vertex) (bool, error) {
	var pending bool
	err := r.ex.Store.WithTx(func(tx *state.Tx) error {
		var err error
		pending, err = tx.IsPendingTask(v.ID)
		return err
	})
	if err != nil {
		return false, err
	}
	if !pending {
		// Skipped tasks still release successors so downstream pending
		// work gets its chance.
		return true, nil
	}

	task := r.plan.tasks[v.ID]
	r.log.Info("running task", "task", task.DisplayName(), "dir", task.WorkingDir)

	result, runErr := r.ex.Runner.Run(ctx, task.Commands, task.WorkingDir)
	if runErr != nil {
		r.fail(&TaskFailure{TaskID: v.ID, Display: task.DisplayName(), ExitCode: -1, Stderr: runErr.Error()})
		return false, nil
	}
	if result.ExitCode != 0 {
		r.fail(&TaskFailure{TaskID: v.ID, Display: task.DisplayName(), ExitCode: result.ExitCode, Stderr: result.Stderr})
		return false, nil
	}

	// All state changes of this task's outcome commit atomically.
	err = r.ex.Store.WithTx(func(tx *state.Tx) error {
		return r.applyOutcome(tx, task, result)
	})
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	r.summary.TasksRun++
	r.mu.Unlock()
	return true, nil
}

func (r *buildRun) fail(f *TaskFailure) {
	r.log.Error("task failed", "task", f.Display, "exit", f.ExitCode)
	r.mu.Lock()
	r.summary.Failures = append(r.summary.Failures, f)
	r.mu.Unlock()
}

// applyOutcome reconciles implicit edges with the observed accesses,
// refreshes output fingerprints, stamps the task, and clears its pending
// mark.
func (r *buildRun) applyOutcome(tx *state.Tx, task types.Task, result types.RunResult) error {
	if err := r.reconcileImplicit(tx, task.ID, observedPaths(result.Reads), incomingOps(tx)); err != nil {
		return err
	}
	if err := r.reconcileImplicit(tx, task.ID, observedPaths(result.Writes), outgoingOps(tx)); err != nil {
		return err
	}
	if err := r.refreshOutputs(tx, task.ID); err != nil {
		return err
	}

	task.LastExecuted = time.Now()
	if result.Display != "" {
		task.Display = result.Display
	}
	if err := tx.UpdateTask(task); err != nil {
		return err
	}
	return tx.RemovePendingTask(task.ID)
}

// implicitOps abstracts the direction of implicit reconciliation: incoming
// edges for reads, outgoing edges for writes.
type implicitOps struct {
	neighbors func(taskID int64) ([]state.Neighbor, error)
	typeOf    func(taskID, resID int64) (types.EdgeType, error)
	put       func(taskID, resID int64, typ types.EdgeType) error
	set       func(taskID, resID int64, typ types.EdgeType) error
	remove    func(taskID, resID int64, typ types.EdgeType) error
}

func incomingOps(tx *state.Tx) implicitOps {
	return implicitOps{
		neighbors: tx.TaskIncoming,
		typeOf:    func(tid, rid int64) (types.EdgeType, error) { return tx.ResourceEdgeType(rid, tid) },
		put:       func(tid, rid int64, typ types.EdgeType) error { return tx.PutResourceEdge(rid, tid, typ) },
		set:       func(tid, rid int64, typ types.EdgeType) error { return tx.SetResourceEdgeType(rid, tid, typ) },
		remove:    func(tid, rid int64, typ types.EdgeType) error { return tx.RemoveResourceEdge(rid, tid, typ) },
	}
}

func outgoingOps(tx *state.Tx) implicitOps {
	return implicitOps{
		neighbors: tx.TaskOutgoing,
		typeOf:    func(tid, rid int64) (types.EdgeType, error) { return tx.TaskEdgeType(tid, rid) },
		put:       func(tid, rid int64, typ types.EdgeType) error { return tx.PutTaskEdge(tid, rid, typ) },
		set:       func(tid, rid int64, typ types.EdgeType) error { return tx.SetTaskEdgeType(tid, rid, typ) },
		remove:    func(tid, rid int64, typ types.EdgeType) error { return tx.RemoveTaskEdge(tid, rid, typ) },
	}
}

// reconcileImplicit diffs the observed paths of one direction against the
// stored implicit edges: new observations insert implicit edges (promoting
// explicit to both), stale ones demote both to explicit or disappear.
func (r *buildRun) reconcileImplicit(tx *state.Tx, taskID int64, observed []string, ops implicitOps) error {
	neighbors, err := ops.neighbors(taskID)
	if err != nil {
		return err
	}
	var stored []string
	byPath := make(map[string]int64)
	for _, n := range neighbors {
		if !n.Type.HasImplicit() {
			continue
		}
		res, err := tx.Resource(n.ID)
		if err != nil {
			return err
		}
		stored = append(stored, res.Path)
		byPath[res.Path] = n.ID
	}
	sort.Strings(stored)

	return diff.Each(stored, observed, func(a, b string) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}, func(path string, tag diff.Tag) error {
		switch tag {
		case diff.Added:
			rid, err := tx.AddResource(path)
			if err != nil {
				return err
			}
			typ, err := ops.typeOf(taskID, rid)
			if err == types.ErrNotFound {
				return ops.put(taskID, rid, types.EdgeImplicit)
			}
			if err != nil {
				return err
			}
			if typ == types.EdgeExplicit {
				return ops.set(taskID, rid, types.EdgeBoth)
			}
			return nil
		case diff.Removed:
			rid := byPath[path]
			typ, err := ops.typeOf(taskID, rid)
			if err == types.ErrNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			if typ == types.EdgeBoth {
				return ops.set(taskID, rid, types.EdgeExplicit)
			}
			return ops.remove(taskID, rid, typ)
		}
		return nil
	})
}

// refreshOutputs re-fingerprints every output resource of the task. Changed
// outputs become pending so the change propagates to their successor tasks;
// unchanged ones stay clean and downstream is not marked on their account.
func (r *buildRun) refreshOutputs(tx *state.Tx, taskID int64) error {
	outputs, err := tx.TaskOutgoing(taskID)
	if err != nil {
		return err
	}
	for _, n := range outputs {
		res, err := tx.Resource(n.ID)
		if err != nil {
			return err
		}
		status, sum, err := r.scan(res.Path)
		if err != nil {
			return err
		}
		updated := res
		updated.Status = status
		updated.Checksum = sum
		if updated.Equal(res) {
			continue
		}
		if err := tx.UpdateResource(updated); err != nil {
			return err
		}
		if err := tx.AddPendingResource(n.ID); err != nil {
			return err
		}
	}
	return nil
}

// observedPaths normalizes a runner-reported path set: absolute paths only,
// deduplicated, sorted.
func observedPaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if p == "" || !filepath.IsAbs(p) || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
