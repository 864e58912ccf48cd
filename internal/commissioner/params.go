package commissioner

import "github.com/google/uuid"

// TaskParams carries the request-scoped inputs of one operation. Every
// operation targets exactly one universe; the remaining fields are used by
// the subset of planners that need them.
type TaskParams struct {
	UniverseUUID uuid.UUID
	CustomerUUID uuid.UUID

	// ExpectedVersion gates the mutation lock. universe.VersionAny skips
	// the check.
	ExpectedVersion int64

	// Force bypasses the update-in-progress check and, for destroy,
	// tolerates step failures.
	Force bool

	// NodeName selects the node for node-scoped operations
	NodeName string

	// Keyspace and TableName are set for table operations
	Keyspace  string
	TableName string
}
