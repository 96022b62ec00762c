package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/persistence"
)

// ConflictRepository handles the conflict queue.
type ConflictRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConflictRepository creates a new conflict repository.
func NewConflictRepository(db *sql.DB, logger *slog.Logger) *ConflictRepository {
	return &ConflictRepository{db: db, logger: logger}
}

// Save records a conflict, replacing the row when the id already exists.
func (r *ConflictRepository) Save(ctx context.Context, conflict *models.StateConflict) error {
	versionsJSON, err := json.Marshal(conflict.Versions)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict versions: %w", err)
	}

	changesJSON, err := json.Marshal(conflict.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict changes: %w", err)
	}

	query := `
		INSERT INTO state_conflicts (id, workflow_id, versions, changes, resolution, status, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			versions = EXCLUDED.versions,
			changes = EXCLUDED.changes,
			resolution = EXCLUDED.resolution,
			status = EXCLUDED.status
	`

	_, err = r.db.ExecContext(ctx, query,
		conflict.ID,
		conflict.WorkflowID,
		versionsJSON,
		changesJSON,
		conflict.Resolution,
		conflict.Status,
		conflict.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save conflict: %w", err)
	}

	return nil
}

// GetByID returns a conflict by its identifier, or (nil, nil).
func (r *ConflictRepository) GetByID(ctx context.Context, conflictID string) (*models.StateConflict, error) {
	query := selectConflictColumns + `
		WHERE id = $1
	`

	conflict, err := r.scanConflict(r.db.QueryRowContext(ctx, query, conflictID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query conflict: %w", err)
	}

	return conflict, nil
}

// ListPending returns unresolved conflicts most recent first, filtered to one
// workflow when workflowID is non-empty.
func (r *ConflictRepository) ListPending(ctx context.Context, workflowID string) ([]*models.StateConflict, error) {
	query := selectConflictColumns + `
		WHERE status = 'pending' AND ($1 = '' OR workflow_id = $1)
		ORDER BY detected_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending conflicts: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	conflicts := make([]*models.StateConflict, 0)

	for rows.Next() {
		conflict, err := r.scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}

		conflicts = append(conflicts, conflict)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating conflicts: %w", err)
	}

	return conflicts, nil
}

// UpdateStatus moves a conflict through its queue lifecycle. Unknown ids fail
// with ErrConflictNotFound.
func (r *ConflictRepository) UpdateStatus(ctx context.Context, conflictID string, status models.ConflictStatus) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE state_conflicts SET status = $1 WHERE id = $2",
		status, conflictID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conflict status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &persistence.ConflictError{Op: "UpdateConflictStatus", ConflictID: conflictID, Err: persistence.ErrConflictNotFound}
	}

	return nil
}

const selectConflictColumns = `
	SELECT
		id
	  , workflow_id
	  , versions
	  , changes
	  , resolution
	  , status
	  , detected_at
	FROM state_conflicts
`

func (r *ConflictRepository) scanConflict(scanner interface {
	Scan(dest ...any) error
}) (*models.StateConflict, error) {
	var (
		conflict                  models.StateConflict
		versionsJSON, changesJSON []byte
	)

	err := scanner.Scan(
		&conflict.ID,
		&conflict.WorkflowID,
		&versionsJSON,
		&changesJSON,
		&conflict.Resolution,
		&conflict.Status,
		&conflict.DetectedAt,
	)
	if err != nil {
		return nil, err
	}

	if versionsJSON != nil {
		err := json.Unmarshal(versionsJSON, &conflict.Versions)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal conflict versions: %w", err)
		}
	}

	if changesJSON != nil {
		err := json.Unmarshal(changesJSON, &conflict.Changes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal conflict changes: %w", err)
		}
	}

	return &conflict, nil
}
