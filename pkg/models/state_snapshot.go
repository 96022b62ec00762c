package models

import "time"

// StateSnapshot is a named, immutable copy of a workflow state taken at a
// moment in time, independent of the version log. Snapshots survive workflow
// completion and can be restored as new versions later.
//
// A snapshot whose payload has been offloaded to cold storage keeps its
// metadata here with State nil and ArchiveLocation set; restore fetches the
// payload back and verifies Checksum before use.
type StateSnapshot struct {
	ID          string         `json:"id"          validate:"required"`
	WorkflowID  string         `json:"workflow_id" validate:"required"`
	State       *WorkflowState `json:"state,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by,omitempty"`
	Description string         `json:"description,omitempty"`
	SizeBytes   int64          `json:"size_bytes,omitempty"`
	// Checksum is the lowercase hex SHA-256 of the canonical JSON encoding of
	// State at snapshot time.
	Checksum string `json:"checksum,omitempty"`
	// ArchiveLocation is a URI (e.g. redis://... or s3://bucket/key) pointing
	// at the offloaded payload. Empty while the payload is held inline.
	ArchiveLocation string `json:"archive_location,omitempty"`
}

// Archived reports whether the snapshot payload lives in cold storage.
func (s *StateSnapshot) Archived() bool {
	return s.ArchiveLocation != "" && s.State == nil
}
