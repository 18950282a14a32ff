// Package main is the entry point for the kioku CLI.
//
// Usage:
//
//	kioku <command> [flags] [args]
//
// Commands:
//
//	server   - Run the HTTP API server (watches configured directories)
//	ingest   - Ingest a target through a source adapter
//	search   - Query the index
//	delete   - Delete records by source path or repository URL
//	status   - Show index and storage status
//	backup   - Archive the data directories, optionally uploading them
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/kiokusearch/kioku/cmd/kioku/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
