package models

// SourceType describes where a document's bytes came from.
type SourceType string

const (
	SourceUpload SourceType = "upload"
	SourceURL    SourceType = "url"
	SourceManual SourceType = "manual"
)

// DocumentStatus follows uploaded → processing → ready|failed.
// Re-ingestion resets ready|failed → processing; nothing else moves backwards.
type DocumentStatus string

const (
	DocUploaded   DocumentStatus = "uploaded"
	DocProcessing DocumentStatus = "processing"
	DocReady      DocumentStatus = "ready"
	DocFailed     DocumentStatus = "failed"
)

// CanStartProcessing reports whether a document may enter processing: either
// the first ingestion (uploaded) or a re-ingestion (ready/failed).
func (s DocumentStatus) CanStartProcessing() bool {
	switch s {
	case DocUploaded, DocReady, DocFailed:
		return true
	}
	return false
}

// JobStatus follows queued → running → succeeded|failed. Terminal states are final.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Active reports whether the job occupies the document's single-flight slot.
func (s JobStatus) Active() bool {
	return s == JobQueued || s == JobRunning
}

// KeyStatus is the one-way API key lifecycle: active → revoked.
type KeyStatus string

const (
	KeyActive  KeyStatus = "active"
	KeyRevoked KeyStatus = "revoked"
)
