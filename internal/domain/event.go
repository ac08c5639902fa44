package domain

// ChangeKind classifies a session-store change notification.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is delivered on the per-user change feed whenever a
// session row is inserted, updated, or deleted. Before is nil for
// inserts; After is nil for deletes.
type ChangeEvent struct {
	Kind   ChangeKind `json:"kind"`
	Before *Session   `json:"before,omitempty"`
	After  *Session   `json:"after,omitempty"`
}
