package model

// FullKey identifies a logical key within a namespace.
// Canonical form is "namespace:key".
type FullKey struct {
	Namespace string
	Key       string
}

// String returns the canonical composite form
func (k FullKey) String() string {
	return k.Namespace + ":" + k.Key
}

// VersionedRecord represents a single write event. Records are append-only:
// once created they are never mutated or deleted.
type VersionedRecord struct {
	ContentID       string // Hash of the canonicalized value; shared by identical content
	WriteID         string // Unique per write event
	Value           []byte // Original payload (storage is deduplicated by ContentID)
	Timestamp       int64  // Capture time in nanoseconds, unique per WriteID
	PreviousWriteID string // WriteID this key held immediately before, empty for first write
	Deleted         bool   // True if this record is a delete marker
}

// LogEntry represents an entry in the commit log
type LogEntry struct {
	SequenceNumber  uint64 // Monotonically increasing sequence number for ordering
	Namespace       string
	Key             string
	WriteID         string
	ContentID       string
	PreviousWriteID string
	Value           []byte
	Timestamp       int64
	OperationType   OperationType
	Checksum        uint32 // CRC32 checksum over the value for integrity
}

// OperationType defines the type of operation
type OperationType string

const (
	OperationTypeWrite  OperationType = "write"
	OperationTypeDelete OperationType = "delete"
)
