// Package archive moves snapshot payloads between the store and cold storage.
// The store keeps every snapshot's index entry (id, workflow, checksum, size,
// archive location); an Archiver holds the payload bytes once the Sweeper has
// offloaded them, and hands them back on restore.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/persistence"
	"github.com/helaix/flowstate/pkg/validation"
)

// Archiver stores and retrieves offloaded snapshot payloads. Offload returns
// the location URI the snapshot index entry is rewritten with; Recall resolves
// such a URI back into the state it holds. Implementations verify the payload
// against the snapshot checksum in both directions.
type Archiver interface {
	Offload(ctx context.Context, snapshot *models.StateSnapshot) (string, error)
	Recall(ctx context.Context, snapshot *models.StateSnapshot) (*models.WorkflowState, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// encodePayload serializes the snapshot's inline state for cold storage. A
// payload that no longer matches the recorded checksum is refused here: once
// offloaded it could never pass verification again, so the offload must not
// happen.
func encodePayload(snapshot *models.StateSnapshot) ([]byte, error) {
	if snapshot.State == nil {
		return nil, errors.New("snapshot payload is not inline")
	}

	data, err := json.Marshal(snapshot.State)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize snapshot state: %w", err)
	}

	if snapshot.Checksum != "" && validation.ChecksumBytes(data) != snapshot.Checksum {
		return nil, fmt.Errorf("snapshot %s payload failed verification before offload: %w", snapshot.ID, persistence.ErrChecksumMismatch)
	}

	return data, nil
}

// decodePayload verifies recalled bytes against the snapshot checksum and
// deserializes them. Snapshots written before checksums existed carry none and
// skip verification.
func decodePayload(snapshot *models.StateSnapshot, data []byte) (*models.WorkflowState, error) {
	if snapshot.Checksum != "" && validation.ChecksumBytes(data) != snapshot.Checksum {
		return nil, fmt.Errorf("archived payload for snapshot %s failed verification: %w", snapshot.ID, persistence.ErrChecksumMismatch)
	}

	var state models.WorkflowState

	err := json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to decode archived snapshot state: %w", err)
	}

	return &state, nil
}
