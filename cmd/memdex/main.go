// Package main provides the entry point for the memdex CLI.
package main

import (
	"os"

	"github.com/openclaw/memdex/cmd/memdex/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
