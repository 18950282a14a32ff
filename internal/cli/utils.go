// Package cli renders engine responses for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kiokusearch/kioku/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one result per line, for piping into other tools.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates an output format string from a flag.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputCompact, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for _, r := range resp.Results {
			fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\n",
				r.Score, r.Source, r.Meta.SourcePath, Truncate(oneLine(r.Snippet), 120))
		}
		return nil
	default:
		writeSearchResultsText(w, resp)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, resp *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", resp.Total, resp.QueryTimeMS)
	for i, r := range resp.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Vector: %.4f, Keyword: %.4f)\n",
			i+1, r.Score, r.VectorScore, r.KeywordScore)
		fmt.Fprintf(w, "ID: %s\n", r.ID)
		fmt.Fprintf(w, "Source: %s | %s", r.Source, r.Meta.SourcePath)
		if r.Meta.TotalChunks > 1 {
			fmt.Fprintf(w, " [chunk %d/%d]", r.Meta.ChunkIndex+1, r.Meta.TotalChunks)
		}
		fmt.Fprintln(w)
		if r.Meta.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", r.Meta.Title)
		}
		fmt.Fprintf(w, "\n%s\n\n", r.Snippet)
	}
}

// WriteStatus writes a status report to w in the given format. Compact falls
// back to text.
func WriteStatus(w io.Writer, report *models.StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "ready:       %t\n", report.Ready)
	fmt.Fprintf(w, "records:     %d\n", report.Records)
	fmt.Fprintf(w, "dimensions:  %d\n", report.Dimensions)
	fmt.Fprintf(w, "dirty:       %d   # records not yet flushed to storage\n", report.Dirty)
	fmt.Fprintf(w, "disk_usage:  %d bytes\n", report.DiskUsage)
	fmt.Fprintf(w, "backend:     %s\n", report.Backend)
	fmt.Fprintf(w, "keyword:     %t\n", report.Keyword)
	if len(report.BySource) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# records by source")
		types := make([]string, 0, len(report.BySource))
		for st := range report.BySource {
			types = append(types, string(st))
		}
		sort.Strings(types)
		for _, st := range types {
			fmt.Fprintf(w, "%-12s %d\n", st+":", report.BySource[models.SourceType(st)])
		}
	}
	return nil
}

// WriteIngestReport writes an ingest report to w in the given format. Compact
// falls back to text.
func WriteIngestReport(w io.Writer, report *models.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Job %s: %s\n", report.JobID, report.State)
	fmt.Fprintf(w, "Committed %d/%d chunks", report.ChunksCommitted, report.ChunksTotal)
	if report.RecordsDeleted > 0 {
		fmt.Fprintf(w, " (replaced %d records)", report.RecordsDeleted)
	}
	fmt.Fprintf(w, " in %dms\n", report.DurationMS)
	if len(report.SourcePaths) > 1 {
		fmt.Fprintf(w, "Sources: %d paths\n", len(report.SourcePaths))
	}
	for _, fc := range report.FailedChunks {
		fmt.Fprintf(w, "  failed: %s chunk %d: %s\n", fc.SourcePath, fc.ChunkIndex, fc.Reason)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// oneLine collapses whitespace runs (including newlines) to single spaces.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
