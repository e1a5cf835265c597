package main

import (
	"os"

	"github.com/wonny/bankstar/cmd/warehouse/commands"
)

// main is the entry point for the warehouse CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/warehouse [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
