package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/decodecheck/internal/harness"
)

// Exit codes for decodecheck.
const (
	ExitSuccess      = harness.ExitPass        // everything verified or generated
	ExitFailure      = harness.ExitFail        // verification failures (fail, tool error, timeout)
	ExitUsage        = 2                       // invalid selector, flags, config or catalog
	ExitInterrupted  = harness.ExitInterrupted // user interrupt
	ExitInternal     = harness.ExitInternal    // internal error
	ExitToolUnusable = 5                       // decode tool missing or not executable
)

// Error codes used in JSON error responses.
const (
	ErrCodeGeneric   = "E001" // unclassified error
	ErrCodeUsage     = "E002" // bad flags or arguments
	ErrCodeConfig    = "E003" // config file unreadable or invalid
	ErrCodeCatalog   = "E004" // catalog missing, malformed or conflicting
	ErrCodeSelector  = "E005" // selector does not resolve
	ErrCodeSamples   = "E006" // sample files missing
	ErrCodeTool      = "E007" // decode tool unusable
	ErrCodeReference = "E008" // reference snapshot could not be written
	ErrCodeHistory   = "E009" // run history database error
	ErrCodeFailures  = "E010" // one or more tests did not pass
	ErrCodeInterrupt = "E011" // run interrupted
	ErrCodeAborted   = "E012" // run aborted by a process-wide fault
	ErrCodeWrite     = "E013" // output file could not be written
)

// ExitError represents an error with a specific exit code.
//
// An ExitError with an empty Message is silent: the command has already
// reported everything and only the exit code remains.
type ExitError struct {
	Code    int    // exit status
	ErrCode string // one of the ErrCode constants, for JSON output
	Message string
	Err     error // underlying error (optional)
}

func (e *ExitError) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return fmt.Sprintf("exit status %d", e.Code)
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, errCode, message string) *ExitError {
	return &ExitError{Code: code, ErrCode: errCode, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, errCode, message string, err error) *ExitError {
	return &ExitError{Code: code, ErrCode: errCode, Message: message, Err: err}
}

// silentExit carries only an exit status.
func silentExit(code int) *ExitError {
	return &ExitError{Code: code}
}

// GetExitCode extracts the exit code from an error.
// Errors that are not ExitErrors are internal.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitInternal
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; keeps JSON on Writer parseable
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ExitCode int    `json:"exit_code"`
	Details  any    `json:"details,omitempty"`
}

// JSON reports whether output is machine-readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success outputs data. Text mode prints data with fmt; JSON mode wraps
// it in a CLIResponse.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Result outputs a run result as JSON. A non-zero exitCode turns the
// response into an error carrying message, with the data still attached.
func (f *OutputFormatter) Result(runID string, exitCode int, message string, data any) error {
	resp := CLIResponse{Status: "ok", Data: data, RunID: runID}
	if exitCode != ExitSuccess {
		resp.Status = "error"
		resp.Error = &CLIError{Code: runErrCode(exitCode), Message: message, ExitCode: exitCode}
	}
	return f.encode(resp)
}

// runErrCode maps the exit status of a completed run to its error code.
func runErrCode(exitCode int) string {
	switch exitCode {
	case ExitFailure:
		return ErrCodeFailures
	case ExitInterrupted:
		return ErrCodeInterrupt
	case ExitInternal:
		return ErrCodeAborted
	default:
		return ErrCodeGeneric
	}
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(exitErr *ExitError, details any) error {
	code := exitErr.ErrCode
	if code == "" {
		code = ErrCodeGeneric
	}
	if f.JSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:     code,
				Message:  exitErr.Error(),
				ExitCode: exitErr.Code,
				Details:  details,
			},
		})
	}
	_, err := fmt.Fprintf(f.errWriter(), "Error [%s]: %s\n", code, exitErr.Error())
	if f.Verbose && details != nil {
		fmt.Fprintf(f.errWriter(), "Details: %v\n", details)
	}
	return err
}

// Printf writes text-mode output. It does nothing in JSON mode.
func (f *OutputFormatter) Printf(format string, args ...any) {
	if f.JSON() {
		return
	}
	fmt.Fprintf(f.Writer, format, args...)
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
