// Package persist implements the pluggable snapshotter over the broker's
// retention table. A Snapshotter writes a whole-table snapshot after every
// retention mutation and restores that snapshot on broker startup.
//
// Two implementations are provided: FileSnapshotter (the default, a plain
// local file rewritten atomically) and EtcdSnapshotter (a single etcd key
// holding the whole-table blob).
package persist

import (
	"time"

	"mezzenger/message"
)

// Entry is the broker-side retention record: the message awaiting
// acknowledgment and the last time it was retransmitted.
type Entry struct {
	LastResentAt time.Time
	Msg          message.Message
}

// Table is the full retention table, keyed by message.Message.Checksum.
type Table map[string]Entry

// Snapshotter persists and restores a whole Table. Implementations must
// treat Save as idempotent and safe to call repeatedly (the broker calls it
// after every single mutation, not batched).
type Snapshotter interface {
	// Save writes the entire table, replacing whatever was previously
	// persisted.
	Save(t Table) error
	// Load reads a previously persisted table. It must return an empty,
	// non-nil Table — not an error — when nothing has ever been persisted
	// yet, so the broker can start with an empty table.
	Load() (Table, error)
}
