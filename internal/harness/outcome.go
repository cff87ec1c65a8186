package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/decodecheck/internal/digest"
)

// Kind classifies an Outcome.
type Kind int

const (
	KindPass Kind = iota
	KindFail
	KindToolError
	KindTimeout
	KindInternalError
)

// Kinds lists every Kind in report order.
var Kinds = []Kind{KindPass, KindFail, KindToolError, KindTimeout, KindInternalError}

var kindNames = [...]string{
	KindPass:          "pass",
	KindFail:          "fail",
	KindToolError:     "tool_error",
	KindTimeout:       "timeout",
	KindInternalError: "internal_error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText makes Kind readable as a JSON value and map key.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown outcome kind %q", s)
}

// FieldReference is the mismatch field reported when a Job has no
// expected digest set to compare against.
const FieldReference = "reference"

// Outcome is the immutable result of one Job.
type Outcome struct {
	Kind       Kind              `json:"kind"`
	Mismatches []digest.Mismatch `json:"mismatches,omitempty"`  // fail
	ExitStatus int               `json:"exit_status,omitempty"` // tool_error
	Stderr     string            `json:"stderr,omitempty"`      // tool_error
	Deadline   time.Duration     `json:"deadline,omitempty"`    // timeout
	Cause      string            `json:"cause,omitempty"`       // internal_error
}

func Pass() Outcome {
	return Outcome{Kind: KindPass}
}

func Fail(mismatches []digest.Mismatch) Outcome {
	return Outcome{Kind: KindFail, Mismatches: mismatches}
}

func ToolError(exitStatus int, stderr string) Outcome {
	return Outcome{Kind: KindToolError, ExitStatus: exitStatus, Stderr: stderr}
}

func Timeout(deadline time.Duration) Outcome {
	return Outcome{Kind: KindTimeout, Deadline: deadline}
}

func InternalError(err error) Outcome {
	return Outcome{Kind: KindInternalError, Cause: err.Error()}
}

// OK reports whether the outcome is a pass.
func (o Outcome) OK() bool {
	return o.Kind == KindPass
}

// Detail is a one-line human description, empty for a pass.
func (o Outcome) Detail() string {
	switch o.Kind {
	case KindFail:
		parts := make([]string, len(o.Mismatches))
		for i, m := range o.Mismatches {
			parts[i] = m.String()
		}
		return strings.Join(parts, "; ")
	case KindToolError:
		msg := fmt.Sprintf("exit status %d", o.ExitStatus)
		if s := strings.TrimSpace(o.Stderr); s != "" {
			msg += ": " + s
		}
		return msg
	case KindTimeout:
		return fmt.Sprintf("killed after %s", o.Deadline)
	case KindInternalError:
		return o.Cause
	default:
		return ""
	}
}

func (o Outcome) String() string {
	if d := o.Detail(); d != "" {
		return o.Kind.String() + ": " + d
	}
	return o.Kind.String()
}
