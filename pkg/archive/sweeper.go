package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/helaix/flowstate/pkg/eventbus"
	"github.com/helaix/flowstate/pkg/events"
	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/persistence"
)

const (
	defaultSchedule  = "@hourly"
	defaultBatchSize = 100
)

// SweeperConfig controls which snapshots get offloaded and when. MaxAge and
// MinSizeBytes are literal thresholds: zero values mean every inline snapshot
// qualifies regardless of age or size.
type SweeperConfig struct {
	Schedule     string        // cron expression, defaults to @hourly
	MaxAge       time.Duration // only snapshots older than this are offloaded
	MinSizeBytes int64         // only snapshots at least this large are offloaded
	BatchSize    int           // offloads per sweep, defaults to 100
}

// Sweeper periodically moves eligible snapshot payloads into the archiver and
// rewrites their index entries with the archive location. A sweep is
// incremental: offload first, rewrite after, so a failure at any point leaves
// the snapshot restorable.
type Sweeper struct {
	persistence persistence.Persistence
	archiver    Archiver
	publisher   eventbus.EventPublisher
	config      SweeperConfig
	logger      *slog.Logger
	cron        *cron.Cron
}

// NewSweeper creates a sweeper. The publisher may be nil; archival events are
// then skipped.
func NewSweeper(persist persistence.Persistence, archiver Archiver, publisher eventbus.EventPublisher, config SweeperConfig, logger *slog.Logger) (*Sweeper, error) {
	if config.Schedule == "" {
		config.Schedule = defaultSchedule
	}

	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}

	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", config.Schedule, err)
	}

	return &Sweeper{
		persistence: persist,
		archiver:    archiver,
		publisher:   publisher,
		config:      config,
		logger:      logger.With("module", "archive_sweeper"),
	}, nil
}

// Start schedules periodic sweeps. Overlapping runs are skipped rather than
// stacked.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting archive sweeper",
		"schedule", s.config.Schedule,
		"max_age", s.config.MaxAge,
		"min_size_bytes", s.config.MinSizeBytes)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		_, err := s.Sweep(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Archive sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule archive sweep: %w", err)
	}

	s.cron.Start()

	return nil
}

// Stop halts the schedule. A sweep already in flight finishes on its own.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping archive sweeper")

	if s.cron != nil {
		s.cron.Stop()
	}

	return nil
}

// Sweep offloads one batch of eligible snapshots and returns how many were
// archived. Per-snapshot failures are logged and skipped so one bad payload
// cannot stall the rest of the queue.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.config.MaxAge)

	candidates, err := s.persistence.ArchivableSnapshots(ctx, cutoff, s.config.MinSizeBytes)
	if err != nil {
		return 0, fmt.Errorf("failed to list archivable snapshots: %w", err)
	}

	if len(candidates) > s.config.BatchSize {
		candidates = candidates[:s.config.BatchSize]
	}

	archived := 0

	for _, snapshot := range candidates {
		err := s.offload(ctx, snapshot)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to archive snapshot",
				"error", err,
				"snapshot_id", snapshot.ID,
				"workflow_id", snapshot.WorkflowID)

			continue
		}

		archived++
	}

	if len(candidates) > 0 {
		s.logger.InfoContext(ctx, "Archive sweep finished",
			"archived", archived,
			"candidates", len(candidates))
	}

	return archived, nil
}

// offload stores the payload in the archiver, then rewrites the index entry
// without it. When the rewrite fails the payload sits unused in cold storage
// and the snapshot stays inline, which is safe in both directions.
func (s *Sweeper) offload(ctx context.Context, snapshot *models.StateSnapshot) error {
	location, err := s.archiver.Offload(ctx, snapshot)
	if err != nil {
		return err
	}

	entry := snapshot.Clone()
	entry.State = nil
	entry.ArchiveLocation = location

	err = s.persistence.SaveSnapshot(ctx, entry)
	if err != nil {
		return fmt.Errorf("payload stored at %s but index rewrite failed: %w", location, err)
	}

	s.logger.InfoContext(ctx, "Snapshot archived",
		"snapshot_id", snapshot.ID,
		"workflow_id", snapshot.WorkflowID,
		"location", location,
		"size_bytes", snapshot.SizeBytes)

	if s.publisher != nil {
		event := events.SnapshotArchived{
			BaseEvent:       events.NewBaseEvent(events.SnapshotArchivedEvent, snapshot.WorkflowID),
			SnapshotID:      snapshot.ID,
			ArchiveLocation: location,
			SizeBytes:       snapshot.SizeBytes,
		}

		err = s.publisher.Publish(ctx, snapshot.WorkflowID, event)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish snapshot archived event",
				"error", err,
				"snapshot_id", snapshot.ID)
		}
	}

	return nil
}
