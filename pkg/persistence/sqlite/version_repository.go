package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/persistence"
)

// VersionRepository handles the append-only state version log.
type VersionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewVersionRepository creates a new version repository.
func NewVersionRepository(db *sql.DB, logger *slog.Logger) *VersionRepository {
	return &VersionRepository{db: db, logger: logger}
}

// Append allocates the next version number from the current head and inserts
// the version in one transaction. Lost allocation races surface as UNIQUE
// violations and are retried against the new head; WAL contention errors are
// retried the same way.
func (r *VersionRepository) Append(ctx context.Context, version *models.StateVersion) (*models.StateVersion, error) {
	var stored *models.StateVersion

	retryable := func(err error) bool {
		return isTransientSQLiteErr(err) || isUniqueViolation(err)
	}

	err := retryOp(appendRetryConfig, retryable, func() error {
		var tryErr error

		stored, tryErr = r.tryAppend(ctx, version)

		return tryErr
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, persistence.NewStateError("AppendVersion", version.WorkflowID, persistence.ErrDuplicateVersion)
		}

		return nil, err
	}

	return stored, nil
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
		"SELECT version, version_id FROM workflow_heads WHERE workflow_id = ?",
		version.WorkflowID,
	).Scan(&headNumber, &headID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read workflow head: %w", err)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, insertQuery,
		stored.ID,
		stored.WorkflowID,
		stored.Version,
		string(stateJSON),
		stored.Checksum,
		nullable(stored.CreatedBy),
		nullable(stored.ParentVersion),
		nullable(stored.Description),
		formatTime(stored.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert state version: %w", err)
	}

	headQuery := `
		INSERT INTO workflow_heads (workflow_id, version_id, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (workflow_id) DO UPDATE SET
			version_id = excluded.version_id,
			version = excluded.version,
			updated_at = excluded.updated_at
	`

	_, err = tx.ExecContext(ctx, headQuery, stored.WorkflowID, stored.ID, stored.Version, formatTime(stored.CreatedAt))
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
		WHERE h.workflow_id = ?
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
		WHERE v.workflow_id = ? AND v.version = ?
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
		WHERE v.id = ?
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
		WHERE v.workflow_id = ?
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
		createdAt                             string
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
		&createdAt,
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

	version.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}

	return &version, nil
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// Timestamps are stored as RFC 3339 text so rows stay readable in the sqlite
// shell and portable across drivers.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}

	return t, nil
}
