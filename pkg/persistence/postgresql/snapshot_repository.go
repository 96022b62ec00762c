package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helaix/flowstate/pkg/models"
)

// SnapshotRepository handles the snapshot index.
type SnapshotRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *sql.DB, logger *slog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, logger: logger}
}

// Save inserts a snapshot, or replaces the stored record when the id exists.
// Archive offload uses the replace path to drop the inline payload and record
// the archive location.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *models.StateSnapshot) error {
	var (
		stateJSON []byte
		err       error
	)

	if snapshot.State != nil {
		stateJSON, err = json.Marshal(snapshot.State)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot state: %w", err)
		}
	}

	query := `
		INSERT INTO state_snapshots (id, workflow_id, state, checksum, size_bytes, description, created_by, archive_location, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			checksum = EXCLUDED.checksum,
			size_bytes = EXCLUDED.size_bytes,
			description = EXCLUDED.description,
			archive_location = EXCLUDED.archive_location
	`

	_, err = r.db.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.WorkflowID,
		stateJSON,
		nullable(snapshot.Checksum),
		snapshot.SizeBytes,
		nullable(snapshot.Description),
		nullable(snapshot.CreatedBy),
		nullable(snapshot.ArchiveLocation),
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// GetByID returns a snapshot by its identifier, or (nil, nil).
func (r *SnapshotRepository) GetByID(ctx context.Context, snapshotID string) (*models.StateSnapshot, error) {
	query := selectSnapshotColumns + `
		WHERE id = $1
	`

	snapshot, err := r.scanSnapshot(r.db.QueryRowContext(ctx, query, snapshotID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	return snapshot, nil
}

// ListByWorkflow returns a workflow's snapshots, most recent first.
func (r *SnapshotRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.StateSnapshot, error) {
	query := selectSnapshotColumns + `
		WHERE workflow_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	snapshots := make([]*models.StateSnapshot, 0)

	for rows.Next() {
		snapshot, err := r.scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		snapshots = append(snapshots, snapshot)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// ListArchivable returns offload candidates oldest first: snapshots still
// holding their payload inline, created before cutoff, and at least
// minSizeBytes large.
func (r *SnapshotRepository) ListArchivable(ctx context.Context, cutoff time.Time, minSizeBytes int64) ([]*models.StateSnapshot, error) {
	query := selectSnapshotColumns + `
		WHERE (archive_location IS NULL OR archive_location = '')
		  AND created_at < $1
		  AND size_bytes >= $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff, minSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to query archivable snapshots: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	snapshots := make([]*models.StateSnapshot, 0)

	for rows.Next() {
		snapshot, err := r.scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		snapshots = append(snapshots, snapshot)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

const selectSnapshotColumns = `
	SELECT
		id
	  , workflow_id
	  , state
	  , checksum
	  , size_bytes
	  , description
	  , created_by
	  , archive_location
	  , created_at
	FROM state_snapshots
`

func (r *SnapshotRepository) scanSnapshot(scanner interface {
	Scan(dest ...any) error
}) (*models.StateSnapshot, error) {
	var (
		snapshot                                     models.StateSnapshot
		stateJSON                                    []byte
		checksum, description, createdBy, archiveLoc sql.NullString
		sizeBytes                                    sql.NullInt64
	)

	err := scanner.Scan(
		&snapshot.ID,
		&snapshot.WorkflowID,
		&stateJSON,
		&checksum,
		&sizeBytes,
		&description,
		&createdBy,
		&archiveLoc,
		&snapshot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if stateJSON != nil {
		snapshot.State = &models.WorkflowState{}

		err := json.Unmarshal(stateJSON, snapshot.State)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot state: %w", err)
		}
	}

	snapshot.Checksum = checksum.String
	snapshot.Description = description.String
	snapshot.CreatedBy = createdBy.String
	snapshot.ArchiveLocation = archiveLoc.String
	snapshot.SizeBytes = sizeBytes.Int64

	return &snapshot, nil
}
