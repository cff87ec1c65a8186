package catalog

import (
	"errors"
	"fmt"
)

// ConflictError reports a key defined by more than one source (or twice
// within one source).
type ConflictError struct {
	Key    string // "decoder:sample:test", or "decoder:sample path"
	First  string // source that defined the key first
	Second string // source that redefined it
}

func (e *ConflictError) Error() string {
	if e.First == e.Second {
		return fmt.Sprintf("catalog: %s defined twice in %s", e.Key, e.First)
	}
	return fmt.Sprintf("catalog: %s defined in both %s and %s", e.Key, e.First, e.Second)
}

// MalformedError reports a structurally invalid catalog source.
type MalformedError struct {
	Source string
	Path   string // key path inside the source, e.g. "mfm.fdd_fm.all.size"
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("catalog %s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("catalog %s: %s: %s", e.Source, e.Path, e.Reason)
}

// IsLoadError reports whether err is a catalog conflict or malformation,
// as opposed to an I/O failure.
func IsLoadError(err error) bool {
	var conflict *ConflictError
	var malformed *MalformedError
	return errors.As(err, &conflict) || errors.As(err, &malformed)
}
