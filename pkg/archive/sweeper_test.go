package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helaix/flowstate/pkg/eventbus"
	"github.com/helaix/flowstate/pkg/events"
	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/persistence/memory"
	"github.com/helaix/flowstate/pkg/statestore"
)

// mapArchiver is an in-memory Archiver for sweep tests.
type mapArchiver struct {
	blobs map[string][]byte
	fail  error
}

func newMapArchiver() *mapArchiver {
	return &mapArchiver{blobs: make(map[string][]byte)}
}

func (a *mapArchiver) Offload(_ context.Context, snapshot *models.StateSnapshot) (string, error) {
	if a.fail != nil {
		return "", a.fail
	}

	data, err := encodePayload(snapshot)
	if err != nil {
		return "", err
	}

	location := "mem://" + snapshot.ID
	a.blobs[location] = data

	return location, nil
}

func (a *mapArchiver) Recall(_ context.Context, snapshot *models.StateSnapshot) (*models.WorkflowState, error) {
	data, ok := a.blobs[snapshot.ArchiveLocation]
	if !ok {
		return nil, fmt.Errorf("no payload at %s", snapshot.ArchiveLocation)
	}

	return decodePayload(snapshot, data)
}

func (a *mapArchiver) HealthCheck(_ context.Context) error { return nil }

func (a *mapArchiver) Close() error { return nil }

type fakePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *fakePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

// seedSnapshot stores a snapshot whose CreatedAt lies age in the past.
// sizeBytes overrides the recorded payload size when positive.
func seedSnapshot(t *testing.T, store *memory.Persistence, id, workflowID string, age time.Duration, sizeBytes int64) *models.StateSnapshot {
	t.Helper()

	snapshot := newSnapshot(t, id, workflowID)
	snapshot.CreatedAt = time.Now().UTC().Add(-age)

	if sizeBytes > 0 {
		snapshot.SizeBytes = sizeBytes
	}

	require.NoError(t, store.SaveSnapshot(context.Background(), snapshot))

	return snapshot
}

func TestNewSweeper_InvalidSchedule(t *testing.T) {
	_, err := NewSweeper(memory.NewPersistence(), newMapArchiver(), nil, SweeperConfig{Schedule: "not-a-cron"}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sweep schedule")
}

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	archiver := newMapArchiver()
	publisher := &fakePublisher{}

	eligible := seedSnapshot(t, store, "snap-old", "wf-1", 48*time.Hour, 0)
	seedSnapshot(t, store, "snap-new", "wf-1", time.Hour, 0)
	seedSnapshot(t, store, "snap-tiny", "wf-2", 48*time.Hour, 10)

	sweeper, err := NewSweeper(store, archiver, publisher, SweeperConfig{
		MaxAge:       24 * time.Hour,
		MinSizeBytes: 100,
	}, testLogger())
	require.NoError(t, err)

	archived, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, archived)

	stored, err := store.SnapshotByID(ctx, "snap-old")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Archived())
	assert.Nil(t, stored.State)
	assert.Equal(t, "mem://snap-old", stored.ArchiveLocation)
	assert.Equal(t, eligible.Checksum, stored.Checksum)
	assert.Equal(t, eligible.SizeBytes, stored.SizeBytes)
	assert.Equal(t, "orchestrator", stored.CreatedBy)

	for _, id := range []string{"snap-new", "snap-tiny"} {
		inline, err := store.SnapshotByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, inline)
		assert.False(t, inline.Archived())
		assert.NotNil(t, inline.State)
	}

	require.Len(t, publisher.events, 1)

	event, ok := publisher.events[0].(events.SnapshotArchived)
	require.True(t, ok)
	assert.Equal(t, events.SnapshotArchivedEvent, event.GetType())
	assert.Equal(t, "snap-old", event.SnapshotID)
	assert.Equal(t, "mem://snap-old", event.ArchiveLocation)
	assert.Equal(t, eligible.SizeBytes, event.SizeBytes)
	assert.Equal(t, "wf-1", event.WorkflowID)

	// The offloaded snapshot no longer qualifies.
	archived, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, archived)
}

func TestSweeper_SweepHonorsBatchSize(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()

	seedSnapshot(t, store, "snap-a", "wf-1", 72*time.Hour, 0)
	seedSnapshot(t, store, "snap-b", "wf-1", 48*time.Hour, 0)
	seedSnapshot(t, store, "snap-c", "wf-2", 36*time.Hour, 0)

	sweeper, err := NewSweeper(store, newMapArchiver(), nil, SweeperConfig{
		MaxAge:    time.Hour,
		BatchSize: 2,
	}, testLogger())
	require.NoError(t, err)

	archived, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, archived)

	// Oldest first: snap-a and snap-b go in the first batch.
	for id, wantArchived := range map[string]bool{"snap-a": true, "snap-b": true, "snap-c": false} {
		stored, err := store.SnapshotByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, wantArchived, stored.Archived(), id)
	}

	archived, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, archived)

	archived, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, archived)
}

func TestSweeper_SweepSkipsFailedOffloads(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	archiver := newMapArchiver()
	archiver.fail = errors.New("cold storage down")

	seedSnapshot(t, store, "snap-old", "wf-1", 48*time.Hour, 0)

	sweeper, err := NewSweeper(store, archiver, nil, SweeperConfig{MaxAge: time.Hour}, testLogger())
	require.NoError(t, err)

	archived, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, archived)

	stored, err := store.SnapshotByID(ctx, "snap-old")
	require.NoError(t, err)
	assert.False(t, stored.Archived())
	assert.NotNil(t, stored.State)
}

func TestSweeper_ArchivedSnapshotRestoresThroughStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()
	archiver := newMapArchiver()
	manager := statestore.NewManager(store, nil, archiver, testLogger())

	state := newState("wf-1")

	_, err := manager.PersistWorkflowState(ctx, "wf-1", state, "agent-1", "initial state")
	require.NoError(t, err)

	snapshot, err := manager.CreateStateSnapshot(ctx, "wf-1", "before archive", "agent-1")
	require.NoError(t, err)

	// Zero thresholds make everything already stored eligible.
	sweeper, err := NewSweeper(store, archiver, nil, SweeperConfig{}, testLogger())
	require.NoError(t, err)

	archived, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, archived)

	stored, err := store.SnapshotByID(ctx, snapshot.ID)
	require.NoError(t, err)
	require.True(t, stored.Archived())

	version, err := manager.RestoreFromSnapshot(ctx, "wf-1", snapshot.ID, "operator")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version.Version)

	restored, err := manager.GetWorkflowState(ctx, "wf-1", statestore.VersionSelector{})
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, state.Name, restored.Name)
	assert.Equal(t, state.Status, restored.Status)
}

func TestSweeper_StartStop(t *testing.T) {
	ctx := context.Background()

	sweeper, err := NewSweeper(memory.NewPersistence(), newMapArchiver(), nil, SweeperConfig{Schedule: "@hourly"}, testLogger())
	require.NoError(t, err)

	require.NoError(t, sweeper.Start(ctx))
	require.NoError(t, sweeper.Stop(ctx))
}
