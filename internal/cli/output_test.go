package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	exitErr := WrapExitError(ExitUsage, ErrCodeSelector, "", errors.New(`selector "spi": unknown decoder "spi"`))
	require.NoError(t, formatter.Error(exitErr, map[string]any{"available": []string{"uart"}}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSelector, resp.Error.Code)
	assert.Equal(t, ExitUsage, resp.Error.ExitCode)
	assert.Equal(t, `selector "spi": unknown decoder "spi"`, resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONErrorDefaultCode(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(&ExitError{Code: ExitInternal, Message: "boom"}, nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, ErrCodeGeneric, resp.Error.Code)
}

func TestOutputFormatter_Result(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		errCode  string
	}{
		{name: "passed", exitCode: ExitSuccess},
		{name: "failures", exitCode: ExitFailure, errCode: ErrCodeFailures},
		{name: "interrupted", exitCode: ExitInterrupted, errCode: ErrCodeInterrupt},
		{name: "aborted", exitCode: ExitInternal, errCode: ErrCodeAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}
			require.NoError(t, formatter.Result("run-1", tt.exitCode, "verdict", map[string]int{"fail": 1}))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, "run-1", resp.RunID)
			assert.NotNil(t, resp.Data, "run data is kept on failure")
			if tt.errCode == "" {
				assert.Equal(t, "ok", resp.Status)
				assert.Nil(t, resp.Error)
				return
			}
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.errCode, resp.Error.Code)
			assert.Equal(t, "verdict", resp.Error.Message)
			assert.Equal(t, tt.exitCode, resp.Error.ExitCode)
		})
	}
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("Catalogs valid"))
	assert.Equal(t, "Catalogs valid\n", buf.String())
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: stdout, ErrWriter: stderr}

	require.NoError(t, formatter.Error(NewExitError(ExitUsage, ErrCodeCatalog, "cannot read catalog"), "ignored"))
	assert.Empty(t, stdout.String())
	assert.Equal(t, "Error [E004]: cannot read catalog\n", stderr.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error(NewExitError(ExitUsage, ErrCodeSamples, "missing sample files"), "test/rx.sr"))
	assert.Contains(t, buf.String(), "missing sample files")
	assert.Contains(t, buf.String(), "Details: test/rx.sr")
}

func TestOutputFormatter_PrintfSilentInJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}
	formatter.Printf("hello %d\n", 1)
	assert.Empty(t, buf.String())

	formatter.Format = "text"
	formatter.Printf("hello %d\n", 1)
	assert.Equal(t, "hello 1\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name     string
		verbose  bool
		expected string
	}{
		{name: "verbose enabled", verbose: true, expected: "debug message\n"},
		{name: "verbose disabled", verbose: false, expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}
			formatter.VerboseLog("debug message")
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("permission denied")
	tests := []struct {
		name string
		err  *ExitError
		want string
	}{
		{name: "message only", err: NewExitError(ExitUsage, ErrCodeUsage, "bad flag"), want: "bad flag"},
		{name: "cause only", err: WrapExitError(ExitInternal, ErrCodeGeneric, "", cause), want: "permission denied"},
		{name: "both", err: WrapExitError(ExitInternal, ErrCodeHistory, "cannot open history", cause), want: "cannot open history: permission denied"},
		{name: "silent", err: silentExit(ExitFailure), want: "exit status 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
	assert.ErrorIs(t, WrapExitError(ExitInternal, "", "x", cause), cause)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitToolUnusable, GetExitCode(NewExitError(ExitToolUnusable, ErrCodeTool, "no tool")))
	assert.Equal(t, ExitUsage, GetExitCode(fmt.Errorf("wrapped: %w", silentExit(ExitUsage))))
	assert.Equal(t, ExitInternal, GetExitCode(errors.New("plain")))
}
