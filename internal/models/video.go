package models

import "time"

// FileState mirrors the vendor's file processing state. It is only observed.
type FileState string

const (
	FileStateUnspecified FileState = "STATE_UNSPECIFIED"
	FileStateProcessing  FileState = "PROCESSING"
	FileStateActive      FileState = "ACTIVE"
	FileStateFailed      FileState = "FAILED"
)

// VideoHandle is the opaque reference returned by the vendor file store.
type VideoHandle struct {
	Name        string    `json:"name"`
	URI         string    `json:"uri"`
	MIMEType    string    `json:"mime_type"`
	DisplayName string    `json:"display_name,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	State       FileState `json:"state"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}
