package main

import (
	"fmt"
	"os"

	"github.com/RubikVault/rubikvault-site-sub000/cmd/forecast/commands"
)

// main is the entry point for the forecast CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/forecast [command]
func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, commands.FailureLine(err))
		os.Exit(1)
	}
}
