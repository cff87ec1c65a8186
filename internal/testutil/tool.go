// Package testutil holds helpers shared by package tests: fake decode
// tools, a deterministic clock and a concurrency gauge.
package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// WriteScript writes an executable /bin/sh script with the given body into
// a fresh temp dir and returns its path. The script receives the decode
// tool argv unchanged.
func WriteScript(t testing.TB, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	script := "#!/bin/sh\n" + body
	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

// PrintfTool returns a fake decode tool that writes output verbatim to
// stdout and exits 0.
func PrintfTool(t testing.TB, output string) string {
	t.Helper()
	return WriteScript(t, "fake-decode", "printf '%s' "+shellQuote(output))
}

// FailingTool returns a fake decode tool that writes msg to stderr and
// exits with status.
func FailingTool(t testing.TB, status int, msg string) string {
	t.Helper()
	return WriteScript(t, "fake-decode", "printf '%s' "+shellQuote(msg)+" >&2\nexit "+strconv.Itoa(status))
}

// SleepTool returns a fake decode tool that sleeps for the given number of
// seconds before printing "done".
func SleepTool(t testing.TB, seconds string) string {
	t.Helper()
	return WriteScript(t, "fake-decode", "sleep "+seconds+"\nprintf done")
}

// ArgsTool returns a fake decode tool that prints each of its arguments
// on its own line. Useful for asserting the argv the runner builds.
func ArgsTool(t testing.TB) string {
	t.Helper()
	return WriteScript(t, "fake-decode", `for a in "$@"; do printf '%s\n' "$a"; done`)
}

// Touch creates an empty file at path, creating parent directories.
func Touch(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("touch: %v", err)
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
