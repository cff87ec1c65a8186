package reference

import "fmt"

// LockedError means another reference run holds the snapshot directory.
type LockedError struct {
	Dir string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("reference directory %s is locked by another run", e.Dir)
}

// ArchiveError is a failure of the shared archive. It concerns every Job
// of the run, not just the one being written.
type ArchiveError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("%s archive %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// IncompleteError means Commit was asked to write a snapshot that lacks
// output for some tests.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	if len(e.Missing) == 1 {
		return "no captured output for " + e.Missing[0]
	}
	return fmt.Sprintf("no captured output for %s and %d more", e.Missing[0], len(e.Missing)-1)
}
