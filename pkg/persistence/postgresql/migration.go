package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create state_versions table: the append-only version log.
			-- UNIQUE (workflow_id, version) is the backstop for allocation races.
			CREATE TABLE state_versions (
				id UUID PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				version BIGINT NOT NULL CHECK (version >= 1),
				state JSONB NOT NULL,
				checksum VARCHAR(64) NOT NULL,
				created_by VARCHAR(255),
				parent_version UUID,
				description TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_id, version)
			);

			CREATE INDEX idx_state_versions_workflow ON state_versions(workflow_id, version DESC);
			CREATE INDEX idx_state_versions_created_at ON state_versions(created_at);

			-- Explicit head pointer per workflow; locked FOR UPDATE during appends
			-- so version allocation serializes per workflow.
			CREATE TABLE workflow_heads (
				workflow_id VARCHAR(255) PRIMARY KEY,
				version_id UUID NOT NULL REFERENCES state_versions(id),
				version BIGINT NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			-- Snapshot index; state is NULL once the payload is offloaded to the
			-- archive referenced by archive_location.
			CREATE TABLE state_snapshots (
				id UUID PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				state JSONB,
				checksum VARCHAR(64),
				size_bytes BIGINT,
				description TEXT,
				created_by VARCHAR(255),
				archive_location TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_state_snapshots_workflow ON state_snapshots(workflow_id, created_at DESC);

			-- Conflict queue.
			CREATE TABLE state_conflicts (
				id UUID PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				versions JSONB,
				changes JSONB,
				resolution VARCHAR(50) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'resolved', 'failed')),
				detected_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_state_conflicts_workflow ON state_conflicts(workflow_id, status);
			CREATE INDEX idx_state_conflicts_pending ON state_conflicts(status, detected_at DESC);
		`,
	}
}
