package state

// Schema DDL for the state file. The graph is bipartite, so edges live in two
// tables: resource_edges point from a resource to a task, task_edges point
// from a task to a resource. Foreign keys cascade so that removing a vertex
// also removes its incident edges and pending entries.
const (
	createResources = `CREATE TABLE IF NOT EXISTS resources (
    resource_id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    status INTEGER NOT NULL DEFAULT 0,
    checksum BLOB NOT NULL DEFAULT X''
);`

	createTasks = `CREATE TABLE IF NOT EXISTS tasks (
    task_id INTEGER PRIMARY KEY AUTOINCREMENT,
    commands TEXT NOT NULL,
    working_dir TEXT NOT NULL,
    display TEXT NOT NULL DEFAULT '',
    last_executed TEXT NOT NULL,
    UNIQUE (commands, working_dir)
);`

	createResourceEdges = `CREATE TABLE IF NOT EXISTS resource_edges (
    edge_id INTEGER PRIMARY KEY,
    from_id INTEGER NOT NULL REFERENCES resources(resource_id) ON DELETE CASCADE,
    to_id INTEGER NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
    edge_type INTEGER NOT NULL,
    UNIQUE (from_id, to_id, edge_type)
);`

	createTaskEdges = `CREATE TABLE IF NOT EXISTS task_edges (
    edge_id INTEGER PRIMARY KEY,
    from_id INTEGER NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
    to_id INTEGER NOT NULL REFERENCES resources(resource_id) ON DELETE CASCADE,
    edge_type INTEGER NOT NULL,
    UNIQUE (from_id, to_id, edge_type)
);`

	createPendingResources = `CREATE TABLE IF NOT EXISTS pending_resources (
    resource_id INTEGER PRIMARY KEY REFERENCES resources(resource_id) ON DELETE CASCADE
);`

	createPendingTasks = `CREATE TABLE IF NOT EXISTS pending_tasks (
    task_id INTEGER PRIMARY KEY REFERENCES tasks(task_id) ON DELETE CASCADE
);`

	createBuilds = `CREATE TABLE IF NOT EXISTS builds (
    build_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    tasks_run INTEGER NOT NULL DEFAULT 0,
    failures INTEGER NOT NULL DEFAULT 0
);`
)

// Secondary indexes for neighbor and degree queries.
const (
	idxResourceEdgesFrom = `CREATE INDEX IF NOT EXISTS idx_resource_edges_from ON resource_edges(from_id);`
	idxResourceEdgesTo   = `CREATE INDEX IF NOT EXISTS idx_resource_edges_to ON resource_edges(to_id);`
	idxTaskEdgesFrom     = `CREATE INDEX IF NOT EXISTS idx_task_edges_from ON task_edges(from_id);`
	idxTaskEdgesTo       = `CREATE INDEX IF NOT EXISTS idx_task_edges_to ON task_edges(to_id);`
	idxBuildsStarted     = `CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started_at);`
)

// schemaDDL lists all CREATE statements in dependency order.
var schemaDDL = []string{
	createResources,
	createTasks,
	createResourceEdges,
	createTaskEdges,
	createPendingResources,
	createPendingTasks,
	createBuilds,
	idxResourceEdgesFrom,
	idxResourceEdgesTo,
	idxTaskEdgesFrom,
	idxTaskEdgesTo,
	idxBuildsStarted,
}

// seedDescriptionRow reserves row 1 of resources for the build description.
// The empty path is not usable by rules, so the row never collides.
const seedDescriptionRow = `INSERT OR IGNORE INTO resources (resource_id, path, status, checksum)
VALUES (1, '', 0, X'');`
