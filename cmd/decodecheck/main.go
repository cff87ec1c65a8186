// Command decodecheck verifies protocol decoder output against recorded
// reference digests.
package main

import (
	"context"
	"os"

	"github.com/roach88/decodecheck/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
