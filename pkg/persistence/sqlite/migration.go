package sqlite

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- The append-only version log. UNIQUE (workflow_id, version) is the
			-- backstop for allocation races between concurrent writers.
			CREATE TABLE state_versions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				version INTEGER NOT NULL CHECK (version >= 1),
				state TEXT NOT NULL,
				checksum TEXT NOT NULL,
				created_by TEXT,
				parent_version TEXT,
				description TEXT,
				created_at TEXT NOT NULL,
				UNIQUE (workflow_id, version)
			);

			CREATE INDEX idx_state_versions_workflow ON state_versions(workflow_id, version DESC);

			-- Explicit head pointer per workflow.
			CREATE TABLE workflow_heads (
				workflow_id TEXT PRIMARY KEY,
				version_id TEXT NOT NULL REFERENCES state_versions(id),
				version INTEGER NOT NULL,
				updated_at TEXT NOT NULL
			);

			-- Snapshot index; state is NULL once the payload is offloaded.
			CREATE TABLE state_snapshots (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				state TEXT,
				checksum TEXT,
				size_bytes INTEGER NOT NULL DEFAULT 0,
				description TEXT,
				created_by TEXT,
				archive_location TEXT,
				created_at TEXT NOT NULL
			);

			CREATE INDEX idx_state_snapshots_workflow ON state_snapshots(workflow_id, created_at DESC);

			-- Conflict queue.
			CREATE TABLE state_conflicts (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				versions TEXT,
				changes TEXT,
				resolution TEXT NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('pending', 'resolved', 'failed')),
				detected_at TEXT NOT NULL
			);

			CREATE INDEX idx_state_conflicts_workflow ON state_conflicts(workflow_id, status);
			CREATE INDEX idx_state_conflicts_pending ON state_conflicts(status, detected_at DESC);
		`,
	}
}
