// Package memory provides an in-memory persistence backend. It backs tests
// and single-process deployments and is the reference for the storage
// contract's atomicity and isolation semantics.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/persistence"
)

// versionChain is one workflow's append-only version log. Versions are stored
// in allocation order so versions[i].Version == i+1; head is the index of the
// current head version.
type versionChain struct {
	versions []*models.StateVersion
	head     int
}

func (c *versionChain) headVersion() *models.StateVersion {
	if len(c.versions) == 0 {
		return nil
	}

	return c.versions[c.head]
}

// Persistence implements the persistence.Persistence interface in process
// memory. One store-wide mutex serializes writes; values crossing the API
// boundary are deep-copied in both directions so callers can never alias the
// stored arena.
type Persistence struct {
	mu            sync.RWMutex
	chains        map[string]*versionChain
	versionsByID  map[string]*models.StateVersion
	snapshots     map[string]*models.StateSnapshot
	snapshotIndex map[string][]string // workflow id -> snapshot ids, creation order
	conflicts     map[string]*models.StateConflict
	conflictOrder []string // conflict ids, creation order
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		chains:        make(map[string]*versionChain),
		versionsByID:  make(map[string]*models.StateVersion),
		snapshots:     make(map[string]*models.StateSnapshot),
		snapshotIndex: make(map[string][]string),
		conflicts:     make(map[string]*models.StateConflict),
	}
}

// AppendVersion assigns the next version number from the chain head, links
// the parent, and appends. The store mutex makes allocation and append one
// atomic step, so racing appends get distinct contiguous numbers.
func (p *Persistence) AppendVersion(ctx context.Context, version *models.StateVersion) (*models.StateVersion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	chain, ok := p.chains[version.WorkflowID]
	if !ok {
		chain = &versionChain{}
		p.chains[version.WorkflowID] = chain
	}

	stored := version.Clone()

	if head := chain.headVersion(); head != nil {
		stored.Version = head.Version + 1
		stored.ParentVersion = head.ID
	} else {
		stored.Version = 1
		stored.ParentVersion = ""
	}

	chain.versions = append(chain.versions, stored)
	chain.head = len(chain.versions) - 1
	p.versionsByID[stored.ID] = stored

	return stored.Clone(), nil
}

// HeadVersion returns the current head version, or (nil, nil) when the
// workflow has no versions.
func (p *Persistence) HeadVersion(ctx context.Context, workflowID string) (*models.StateVersion, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	chain, ok := p.chains[workflowID]
	if !ok {
		return nil, nil
	}

	head := chain.headVersion()
	if head == nil {
		return nil, nil
	}

	return head.Clone(), nil
}

// VersionByNumber returns the version with the given number, or (nil, nil).
// Numbers are contiguous from 1, so the lookup is a direct index.
func (p *Persistence) VersionByNumber(ctx context.Context, workflowID string, number int64) (*models.StateVersion, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	chain, ok := p.chains[workflowID]
	if !ok || number < 1 || number > int64(len(chain.versions)) {
		return nil, nil
	}

	return chain.versions[number-1].Clone(), nil
}

// VersionByID returns a version by its identifier, or (nil, nil).
func (p *Persistence) VersionByID(ctx context.Context, versionID string) (*models.StateVersion, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	version, ok := p.versionsByID[versionID]
	if !ok {
		return nil, nil
	}

	return version.Clone(), nil
}

// VersionHistory returns the workflow's versions most recent first. Unknown
// workflows yield an empty slice.
func (p *Persistence) VersionHistory(ctx context.Context, workflowID string) ([]*models.StateVersion, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	chain, ok := p.chains[workflowID]
	if !ok {
		return []*models.StateVersion{}, nil
	}

	history := make([]*models.StateVersion, 0, len(chain.versions))
	for i := len(chain.versions) - 1; i >= 0; i-- {
		history = append(history, chain.versions[i].Clone())
	}

	return history, nil
}

// SaveSnapshot inserts a snapshot, or replaces the stored record when the id
// already exists (archive offload rewrites the index entry in place).
func (p *Persistence) SaveSnapshot(ctx context.Context, snapshot *models.StateSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.snapshots[snapshot.ID]; !exists {
		p.snapshotIndex[snapshot.WorkflowID] = append(p.snapshotIndex[snapshot.WorkflowID], snapshot.ID)
	}

	p.snapshots[snapshot.ID] = snapshot.Clone()

	return nil
}

// SnapshotByID returns a snapshot by id, or (nil, nil).
func (p *Persistence) SnapshotByID(ctx context.Context, snapshotID string) (*models.StateSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snapshot, ok := p.snapshots[snapshotID]
	if !ok {
		return nil, nil
	}

	return snapshot.Clone(), nil
}

// SnapshotsByWorkflow returns a workflow's snapshots, most recent first.
func (p *Persistence) SnapshotsByWorkflow(ctx context.Context, workflowID string) ([]*models.StateSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := p.snapshotIndex[workflowID]

	snapshots := make([]*models.StateSnapshot, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		snapshots = append(snapshots, p.snapshots[ids[i]].Clone())
	}

	return snapshots, nil
}

// ArchivableSnapshots returns offload candidates oldest first: snapshots
// still holding their payload inline, created before cutoff, and at least
// minSizeBytes large.
func (p *Persistence) ArchivableSnapshots(ctx context.Context, cutoff time.Time, minSizeBytes int64) ([]*models.StateSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	candidates := make([]*models.StateSnapshot, 0)

	for _, snapshot := range p.snapshots {
		if snapshot.Archived() || !snapshot.CreatedAt.Before(cutoff) || snapshot.SizeBytes < minSizeBytes {
			continue
		}

		candidates = append(candidates, snapshot.Clone())
	}

	slices.SortFunc(candidates, func(a, b *models.StateSnapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return candidates, nil
}

// SaveConflict records a conflict for later reconciliation.
func (p *Persistence) SaveConflict(ctx context.Context, conflict *models.StateConflict) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.conflicts[conflict.ID]; !exists {
		p.conflictOrder = append(p.conflictOrder, conflict.ID)
	}

	p.conflicts[conflict.ID] = conflict.Clone()

	return nil
}

// ConflictByID returns a conflict by id, or (nil, nil).
func (p *Persistence) ConflictByID(ctx context.Context, conflictID string) (*models.StateConflict, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conflict, ok := p.conflicts[conflictID]
	if !ok {
		return nil, nil
	}

	return conflict.Clone(), nil
}

// PendingConflicts returns unresolved conflicts most recent first, filtered
// to one workflow when workflowID is non-empty.
func (p *Persistence) PendingConflicts(ctx context.Context, workflowID string) ([]*models.StateConflict, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pending := make([]*models.StateConflict, 0)

	for i := len(p.conflictOrder) - 1; i >= 0; i-- {
		conflict := p.conflicts[p.conflictOrder[i]]
		if conflict.Status != models.ConflictStatusPending {
			continue
		}

		if workflowID != "" && conflict.WorkflowID != workflowID {
			continue
		}

		pending = append(pending, conflict.Clone())
	}

	return pending, nil
}

// UpdateConflictStatus moves a conflict through its lifecycle. Unknown ids
// fail with ErrConflictNotFound.
func (p *Persistence) UpdateConflictStatus(ctx context.Context, conflictID string, status models.ConflictStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conflict, ok := p.conflicts[conflictID]
	if !ok {
		return &persistence.ConflictError{Op: "UpdateConflictStatus", ConflictID: conflictID, Err: persistence.ErrConflictNotFound}
	}

	conflict.Status = status

	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	return nil
}

// Close releases the stored data.
func (p *Persistence) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chains = make(map[string]*versionChain)
	p.versionsByID = make(map[string]*models.StateVersion)
	p.snapshots = make(map[string]*models.StateSnapshot)
	p.snapshotIndex = make(map[string][]string)
	p.conflicts = make(map[string]*models.StateConflict)
	p.conflictOrder = nil

	return nil
}
