package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/persistence"
)

// appendRetries bounds how often an append may lose the first-version race
// before giving up. Established workflows serialize on the head row lock and
// never retry.
const appendRetries = 3

// VersionRepository handles the append-only state version log.
type VersionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewVersionRepository creates a new version repository.
func NewVersionRepository(db *sql.DB, logger *slog.Logger) *VersionRepository {
	return &VersionRepository{db: db, logger: logger}
}

// Append allocates the next version number under the workflow's head row lock
// and inserts the version. Two appends racing to create a workflow's first
// version have no row to lock; the UNIQUE (workflow_id, version) constraint
// catches the loser, which retries against the now-existing head.
func (r *VersionRepository) Append(ctx context.Context, version *models.StateVersion) (*models.StateVersion, error) {
	for attempt := 0; attempt < appendRetries; attempt++ {
		stored, err := r.tryAppend(ctx, version)
		if err == nil {
			return stored, nil
		}

		if !isUniqueViolation(err) {
			return nil, err
		}
	}

	return nil, persistence.NewStateError("AppendVersion", version.WorkflowID, persistence.ErrDuplicateVersion)
}

func (r *VersionRepository) tryAppend(ctx context.Context, version *models.StateVersion) (*models.StateVersion, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		headNumber int64
		headID     sql.NullString
	)

	err = tx.QueryRowContext(ctx,
		"SELECT version, version_id FROM workflow_heads WHERE workflow_id = $1 FOR UPDATE",
		version.WorkflowID,
	).Scan(&headNumber, &headID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to lock workflow head: %w", err)
	}

	stored := version.Clone()
	stored.Version = headNumber + 1
	stored.ParentVersion = headID.String

	stateJSON, err := json.Marshal(stored.State)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	insertQuery := `
		INSERT INTO state_versions (id, workflow_id, version, state, checksum, created_by, parent_version, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = tx.ExecContext(ctx, insertQuery,
		stored.ID,
		stored.WorkflowID,
		stored.Version,
		stateJSON,
		stored.Checksum,
		nullable(stored.CreatedBy),
		nullable(stored.ParentVersion),
		nullable(stored.Description),
		stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert state version: %w", err)
	}

	headQuery := `
		INSERT INTO workflow_heads (workflow_id, version_id, version, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workflow_id) DO UPDATE SET
			version_id = EXCLUDED.version_id,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, headQuery, stored.WorkflowID, stored.ID, stored.Version, stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow head: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit version append: %w", err)
	}

	return stored, nil
}

// Head returns the current head version for a workflow, or (nil, nil).
func (r *VersionRepository) Head(ctx context.Context, workflowID string) (*models.StateVersion, error) {
	query := selectVersionColumns + `
		JOIN workflow_heads h ON h.version_id = v.id
		WHERE h.workflow_id = $1
	`

	version, err := r.scanVersion(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query workflow head: %w", err)
	}

	return version, nil
}

// GetByNumber returns the version with the given number, or (nil, nil).
func (r *VersionRepository) GetByNumber(ctx context.Context, workflowID string, number int64) (*models.StateVersion, error) {
	query := selectVersionColumns + `
		WHERE v.workflow_id = $1 AND v.version = $2
	`

	version, err := r.scanVersion(r.db.QueryRowContext(ctx, query, workflowID, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query version by number: %w", err)
	}

	return version, nil
}

// GetByID returns a version by its identifier, or (nil, nil).
func (r *VersionRepository) GetByID(ctx context.Context, versionID string) (*models.StateVersion, error) {
	query := selectVersionColumns + `
		WHERE v.id = $1
	`

	version, err := r.scanVersion(r.db.QueryRowContext(ctx, query, versionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query version by id: %w", err)
	}

	return version, nil
}

// History returns every version of a workflow, most recent first.
func (r *VersionRepository) History(ctx context.Context, workflowID string) ([]*models.StateVersion, error) {
	query := selectVersionColumns + `
		WHERE v.workflow_id = $1
		ORDER BY v.version DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query version history: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	versions := make([]*models.StateVersion, 0)

	for rows.Next() {
		version, err := r.scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}

		versions = append(versions, version)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return versions, nil
}

const selectVersionColumns = `
	SELECT
		v.id
	  , v.workflow_id
	  , v.version
	  , v.state
	  , v.checksum
	  , v.created_by
	  , v.parent_version
	  , v.description
	  , v.created_at
	FROM state_versions v
`

func (r *VersionRepository) scanVersion(scanner interface {
	Scan(dest ...any) error
}) (*models.StateVersion, error) {
	var (
		version                               models.StateVersion
		stateJSON                             []byte
		createdBy, parentVersion, description sql.NullString
	)

	err := scanner.Scan(
		&version.ID,
		&version.WorkflowID,
		&version.Version,
		&stateJSON,
		&version.Checksum,
		&createdBy,
		&parentVersion,
		&description,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if stateJSON != nil {
		version.State = &models.WorkflowState{}

		err := json.Unmarshal(stateJSON, version.State)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal state: %w", err)
		}
	}

	version.CreatedBy = createdBy.String
	version.ParentVersion = parentVersion.String
	version.Description = description.String

	return &version, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}
