package decode

import (
	"fmt"
	"os"
	"os/exec"
)

// ToolUnusableError means the decode tool cannot be run at all. It is
// detected once, before any Job is scheduled.
type ToolUnusableError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ToolUnusableError) Error() string {
	msg := fmt.Sprintf("decode tool %q %s", e.Tool, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolUnusableError) Unwrap() error { return e.Err }

// Probe resolves tool through PATH and checks that it is a regular,
// executable file. It returns the resolved path.
func Probe(tool string) (string, error) {
	if tool == "" {
		return "", &ToolUnusableError{Tool: tool, Reason: "is not set"}
	}
	path, err := exec.LookPath(tool)
	if err != nil {
		return "", &ToolUnusableError{Tool: tool, Reason: "not found", Err: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", &ToolUnusableError{Tool: tool, Reason: "cannot be inspected", Err: err}
	}
	if !info.Mode().IsRegular() {
		return "", &ToolUnusableError{Tool: tool, Reason: "is not a regular file"}
	}
	if !isExecutable(path) {
		return "", &ToolUnusableError{Tool: tool, Reason: "is not executable"}
	}
	return path, nil
}
