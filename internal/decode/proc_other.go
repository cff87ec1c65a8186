//go:build !unix

package decode

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func isExecutable(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
