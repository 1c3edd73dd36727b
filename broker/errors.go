package broker

import "fmt"

// BindError is returned by Serve when either transport endpoint cannot be
// bound. It is always fatal — there is no recovery from a failed initial
// bind.
type BindError struct {
	Endpoint string
	Addr     string
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("broker: could not bind %s endpoint at %s: %v", e.Endpoint, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// PersistError is returned by Serve when a configured Snapshotter's Load
// fails at startup. This is fatal: an existing-but-unreadable persist file
// must stop the broker rather than silently starting with an empty
// retention table.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("broker: could not load persisted retention table: %v", e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
