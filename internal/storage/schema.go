// ABOUTME: The SQLite schema: one table per entity kind plus their indexes.
// ABOUTME: Applied once at Open via a single CREATE TABLE IF NOT EXISTS batch.
package storage

const schema = `
CREATE TABLE IF NOT EXISTS workers (
	id             TEXT PRIMARY KEY,
	handle         TEXT NOT NULL,
	team_name      TEXT NOT NULL,
	role           TEXT NOT NULL,
	state          TEXT NOT NULL,
	health         TEXT NOT NULL,
	pid            INTEGER,
	session_id     TEXT,
	worktree_path  TEXT,
	branch         TEXT,
	swarm_id       TEXT,
	spawn_mode     TEXT NOT NULL,
	depth_level    INTEGER NOT NULL,
	restart_count  INTEGER NOT NULL DEFAULT 0,
	last_error     TEXT NOT NULL DEFAULT '',
	last_heartbeat INTEGER NOT NULL,
	spawned_at     INTEGER NOT NULL,
	dismissed_at   INTEGER
);
-- spec.md §3 invariant (i): exactly one worker per handle in any
-- non-terminal state. SQLite partial unique indexes enforce this without
-- an application-level lock.
CREATE UNIQUE INDEX IF NOT EXISTS idx_workers_handle_active
	ON workers(handle) WHERE state != 'dismissed';
CREATE INDEX IF NOT EXISTS idx_workers_spawned_at ON workers(spawned_at, id);
CREATE INDEX IF NOT EXISTS idx_workers_swarm ON workers(swarm_id);

CREATE TABLE IF NOT EXISTS swarms (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	max_agents  INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS spawn_queue (
	id                 TEXT PRIMARY KEY,
	requester_handle   TEXT NOT NULL,
	target_agent_type  TEXT NOT NULL,
	depth_level        INTEGER NOT NULL,
	priority           TEXT NOT NULL,
	status             TEXT NOT NULL,
	depends_on         TEXT NOT NULL DEFAULT '[]',
	blocked_by_count   INTEGER NOT NULL DEFAULT 0,
	payload_task       TEXT NOT NULL DEFAULT '',
	payload_context    TEXT NOT NULL DEFAULT '',
	payload_checkpoint TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL,
	processed_at       INTEGER,
	spawned_worker_id  TEXT,
	reject_reason      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_spawn_queue_status ON spawn_queue(status, priority, created_at, id);

CREATE TABLE IF NOT EXISTS blackboard_messages (
	id            TEXT PRIMARY KEY,
	swarm_id      TEXT NOT NULL,
	sender_handle TEXT NOT NULL,
	message_type  TEXT NOT NULL,
	target_handle TEXT,
	priority      TEXT NOT NULL,
	payload       BLOB,
	read_by       TEXT NOT NULL DEFAULT '[]',
	created_at    INTEGER NOT NULL,
	archived_at   INTEGER,
	expires_at    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_blackboard_swarm ON blackboard_messages(swarm_id, created_at, id);

CREATE TABLE IF NOT EXISTS checkpoints (
	id          TEXT PRIMARY KEY,
	from_handle TEXT NOT NULL,
	to_handle   TEXT NOT NULL,
	body_json   TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_to ON checkpoints(to_handle, created_at, id);

CREATE TABLE IF NOT EXISTS pheromones (
	id                TEXT PRIMARY KEY,
	swarm_id          TEXT NOT NULL,
	depositor_handle  TEXT NOT NULL,
	resource_id       TEXT NOT NULL,
	resource_type     TEXT NOT NULL,
	trail_type        TEXT NOT NULL,
	intensity         REAL NOT NULL,
	metadata_json     TEXT NOT NULL DEFAULT '{}',
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pheromones_swarm ON pheromones(swarm_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_pheromones_resource ON pheromones(swarm_id, resource_id, resource_type);

CREATE TABLE IF NOT EXISTS beliefs (
	swarm_id     TEXT NOT NULL,
	agent_handle TEXT NOT NULL,
	subject      TEXT NOT NULL,
	belief_type  TEXT NOT NULL,
	value        TEXT NOT NULL,
	confidence   REAL NOT NULL,
	evidence     TEXT NOT NULL DEFAULT '[]',
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (swarm_id, agent_handle, subject, belief_type)
);
CREATE INDEX IF NOT EXISTS idx_beliefs_subject ON beliefs(swarm_id, subject);

CREATE TABLE IF NOT EXISTS credit_accounts (
	swarm_id         TEXT NOT NULL,
	agent_handle     TEXT NOT NULL,
	balance          REAL NOT NULL DEFAULT 0,
	reputation_score REAL NOT NULL DEFAULT 0,
	total_earned     REAL NOT NULL DEFAULT 0,
	task_count       INTEGER NOT NULL DEFAULT 0,
	success_count    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (swarm_id, agent_handle)
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id           TEXT PRIMARY KEY,
	swarm_id     TEXT NOT NULL,
	agent_handle TEXT NOT NULL,
	type         TEXT NOT NULL,
	amount       REAL NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_credit_tx_account ON credit_transactions(swarm_id, agent_handle, created_at, id);

CREATE TABLE IF NOT EXISTS proposals (
	id              TEXT PRIMARY KEY,
	swarm_id        TEXT NOT NULL,
	proposer_handle TEXT NOT NULL,
	subject         TEXT NOT NULL,
	options         TEXT NOT NULL DEFAULT '[]',
	status          TEXT NOT NULL,
	deadline        INTEGER,
	created_at      INTEGER NOT NULL,
	closed_at       INTEGER,
	winner          TEXT NOT NULL DEFAULT '',
	quorum          INTEGER NOT NULL DEFAULT 0,
	participation   REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS votes (
	proposal_id  TEXT NOT NULL,
	voter_handle TEXT NOT NULL,
	option       TEXT NOT NULL,
	cast_at      INTEGER NOT NULL,
	PRIMARY KEY (proposal_id, voter_handle)
);

CREATE TABLE IF NOT EXISTS bids (
	id            TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	bidder_handle TEXT NOT NULL,
	amount        REAL NOT NULL,
	confidence    REAL NOT NULL,
	status        TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
-- spec.md §4.B unique constraint: (taskId, bidderHandle, status='pending').
CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_pending
	ON bids(task_id, bidder_handle) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_bids_task ON bids(task_id, status);

CREATE TABLE IF NOT EXISTS payoffs (
	task_id     TEXT NOT NULL,
	type        TEXT NOT NULL,
	base_value  REAL NOT NULL,
	multiplier  REAL NOT NULL,
	deadline    INTEGER,
	decay_rate  REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (task_id, type)
);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}
