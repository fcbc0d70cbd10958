// Package sync defines the wire types for the bidirectional Sync Engine
// (spec §4.10): manifests, the session protocol's request/response
// shapes, classification, and conflict descriptors.
package sync

import "time"

// ManifestEntry is one row of a path->(hash,size,mtime) manifest (spec §3).
type ManifestEntry struct {
	FilePath string    `json:"file_path"`
	SHA256   string    `json:"sha256"`
	Size     int64     `json:"size"`
	MTime    time.Time `json:"mtime"`
}

// InitRequest is the client's INIT payload: its manifest and the merge
// base it last synced against.
type InitRequest struct {
	Manifest       []ManifestEntry `json:"manifest"`
	LastSyncCommit string          `json:"last_sync_commit,omitempty"`
}

// Action is a per-path plan action (spec §4.10.3).
type Action string

const (
	ActionSkip         Action = "skip"
	ActionUpload       Action = "upload"
	ActionDownload     Action = "download"
	ActionDeleteServer Action = "delete_server"
	ActionDeleteLocal  Action = "delete_local"
	ActionConflict     Action = "conflict"
	ActionCoincident   Action = "coincident"
)

// PlanEntry is one path's classification result.
type PlanEntry struct {
	FilePath string `json:"file_path"`
	Action   Action `json:"action"`
}

// InitResponse is the server's sync plan.
type InitResponse struct {
	Plan       []PlanEntry `json:"plan"`
	ServerHead string      `json:"server_head,omitempty"`
}

// ConflictResolution is a client-resolved conflict supplied at COMMIT
// (spec §4.10.2 point 4): the client's own re-resolution of a path the
// plan flagged as a conflict.
type ConflictResolution struct {
	FilePath string `json:"file_path"`
	Content  []byte `json:"content"`
}

// CommitRequest is the client's COMMIT finalization payload. BaseCommit
// is re-sent from the session's INIT (spec §4.10.1's merge base) since
// the server holds no session state between INIT and COMMIT (spec
// §4.10.2) and conflict merges at COMMIT time still need the blob at
// that commit as the three-way merge base.
type CommitRequest struct {
	BaseCommit                  string               `json:"base_commit,omitempty"`
	AcknowledgedServerDeletions []string             `json:"acknowledged_server_deletions,omitempty"`
	UploadedPaths               []string             `json:"uploaded_paths,omitempty"`
	ConflictResolutions          []ConflictResolution `json:"conflict_resolutions,omitempty"`
}

// ConflictDescriptor is returned to the client for every path the merge
// could not resolve cleanly (spec §4.10.4).
type ConflictDescriptor struct {
	FilePath           string `json:"file_path"`
	Base               string `json:"base,omitempty"`
	Ours               string `json:"ours"`
	Theirs             string `json:"theirs"`
	MergedWithMarkers  string `json:"merged_with_markers,omitempty"`
}

// CommitStatus is the top-level COMMIT outcome (spec §4.10.5 step 5).
type CommitStatus string

const (
	StatusOK      CommitStatus = "ok"
	StatusWarning CommitStatus = "warning"
)

// CommitResponse is the server's COMMIT result.
type CommitResponse struct {
	Status     CommitStatus          `json:"status"`
	CommitHash *string               `json:"commit_hash"`
	Conflicts  []ConflictDescriptor  `json:"conflicts,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
}
