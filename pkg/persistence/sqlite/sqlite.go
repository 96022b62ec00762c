// Package sqlite provides SQLite persistence for workflow state versions,
// snapshots, and conflict records. WAL mode plus a generous busy timeout lets
// several agent processes share one database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for SQLite.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	versionRepo  *VersionRepository
	snapshotRepo *SnapshotRepository
	conflictRepo *ConflictRepository
}

// NewPersistence opens (or creates) the SQLite database and runs migrations.
// The databaseURL is a path, optionally prefixed with sqlite://.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	path := strings.TrimPrefix(databaseURL, "sqlite://")
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"

	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	database.SetMaxOpenConns(4)
	database.SetMaxIdleConns(2)
	database.SetConnMaxLifetime(30 * time.Minute)

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, sqlbase.SQLiteDialect, migrations())

	store := &Persistence{
		db:           database,
		logger:       logger,
		versionRepo:  NewVersionRepository(database, logger),
		snapshotRepo: NewSnapshotRepository(database, logger),
		conflictRepo: NewConflictRepository(database, logger),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// AppendVersion stores a new version with an atomically allocated number.
func (p *Persistence) AppendVersion(ctx context.Context, version *models.StateVersion) (*models.StateVersion, error) {
	return p.versionRepo.Append(ctx, version)
}

// HeadVersion returns the most recent version for a workflow.
func (p *Persistence) HeadVersion(ctx context.Context, workflowID string) (*models.StateVersion, error) {
	return p.versionRepo.Head(ctx, workflowID)
}

// VersionByNumber returns the version with the given number.
func (p *Persistence) VersionByNumber(ctx context.Context, workflowID string, number int64) (*models.StateVersion, error) {
	return p.versionRepo.GetByNumber(ctx, workflowID, number)
}

// VersionByID returns a version by its identifier.
func (p *Persistence) VersionByID(ctx context.Context, versionID string) (*models.StateVersion, error) {
	return p.versionRepo.GetByID(ctx, versionID)
}

// VersionHistory returns every version of a workflow, most recent first.
func (p *Persistence) VersionHistory(ctx context.Context, workflowID string) ([]*models.StateVersion, error) {
	return p.versionRepo.History(ctx, workflowID)
}

// SaveSnapshot inserts or replaces a snapshot record.
func (p *Persistence) SaveSnapshot(ctx context.Context, snapshot *models.StateSnapshot) error {
	return p.snapshotRepo.Save(ctx, snapshot)
}

// SnapshotByID returns a snapshot by its identifier.
func (p *Persistence) SnapshotByID(ctx context.Context, snapshotID string) (*models.StateSnapshot, error) {
	return p.snapshotRepo.GetByID(ctx, snapshotID)
}

// SnapshotsByWorkflow returns a workflow's snapshots, most recent first.
func (p *Persistence) SnapshotsByWorkflow(ctx context.Context, workflowID string) ([]*models.StateSnapshot, error) {
	return p.snapshotRepo.ListByWorkflow(ctx, workflowID)
}

// ArchivableSnapshots returns snapshots eligible for archive offload.
func (p *Persistence) ArchivableSnapshots(ctx context.Context, cutoff time.Time, minSizeBytes int64) ([]*models.StateSnapshot, error) {
	return p.snapshotRepo.ListArchivable(ctx, cutoff, minSizeBytes)
}

// SaveConflict records a detected conflict.
func (p *Persistence) SaveConflict(ctx context.Context, conflict *models.StateConflict) error {
	return p.conflictRepo.Save(ctx, conflict)
}

// ConflictByID returns a conflict by its identifier.
func (p *Persistence) ConflictByID(ctx context.Context, conflictID string) (*models.StateConflict, error) {
	return p.conflictRepo.GetByID(ctx, conflictID)
}

// PendingConflicts returns unresolved conflicts, most recent first.
func (p *Persistence) PendingConflicts(ctx context.Context, workflowID string) ([]*models.StateConflict, error) {
	return p.conflictRepo.ListPending(ctx, workflowID)
}

// UpdateConflictStatus moves a conflict through its queue lifecycle.
func (p *Persistence) UpdateConflictStatus(ctx context.Context, conflictID string, status models.ConflictStatus) error {
	return p.conflictRepo.UpdateStatus(ctx, conflictID, status)
}
