package models

import "errors"

// Domain errors represent business rule failures, distinct from
// infrastructure errors. Callers match them with errors.Is.
var (
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidReference indicates a cross-entity reference violates
	// tenancy or ownership, e.g. a project that belongs to another team.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrConflictingJob indicates the document already has a queued or
	// running ingestion job (single-flight per document).
	ErrConflictingJob = errors.New("conflicting ingestion job")

	// ErrInvalidTransition indicates a state machine precondition was
	// violated, e.g. starting a job that is not queued.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrValidationFailure indicates a malformed write set: chunk index
	// gaps or duplicates, citation rank gaps or duplicate chunk ids.
	ErrValidationFailure = errors.New("validation failure")

	// ErrTransientDependency indicates an external dependency (embedding
	// service, object storage) was unavailable. The caller may retry via
	// a new ingestion job.
	ErrTransientDependency = errors.New("transient dependency failure")

	// ErrKeyRevoked indicates the presented API key has been revoked.
	ErrKeyRevoked = errors.New("api key revoked")
)
