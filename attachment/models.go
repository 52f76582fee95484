package attachment

import (
	"time"

	"disputeflow/directory"
)

// Version is one evidentiary file version. Older versions are never deleted;
// exactly one version per dispute is the latest.
type Version struct {
	ID            string
	DisputeID     string
	IsLatest      bool
	UploaderID    string
	UploaderRole  directory.Role
	StageAtUpload string
	FileName      string
	ContentType   string
	SizeBytes     int64
	StorageURL    string
	CreatedAt     time.Time
}

// Metadata describes the stored object; the bytes live in object storage and
// the ledger only tracks the pointer.
type Metadata struct {
	FileName    string
	ContentType string
	SizeBytes   int64
	StorageURL  string
}

// AddParams enumerates the fields of a new version.
type AddParams struct {
	DisputeID    string
	UploaderID   string
	UploaderRole directory.Role
	Metadata     Metadata
}
