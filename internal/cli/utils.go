// Package cli provides output helpers for the docent command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/docent/internal/importer"
	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteMatches writes image search matches to w in the given format. JSON
// output is the same array the HTTP API returns.
func WriteMatches(w io.Writer, exhibitionID int64, matches []models.SimilarityMatch, elapsed time.Duration, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, matches)
	}
	fmt.Fprintf(w, "\nFound %d matches in exhibition %d (%dms)\n\n", len(matches), exhibitionID, elapsed.Milliseconds())
	for i, m := range matches {
		writeOneMatch(w, i+1, m)
	}
	return nil
}

func writeOneMatch(w io.Writer, rank int, m models.SimilarityMatch) {
	a := m.Artwork
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", rank, m.Score)
	fmt.Fprintf(w, "ID: %s\n", a.ID)
	fmt.Fprintf(w, "Title: %s\n", a.Title)
	if a.Artist != "" {
		fmt.Fprintf(w, "Artist: %s\n", a.Artist)
	}
	if a.ProductionYear != nil {
		fmt.Fprintf(w, "Year: %s\n", *a.ProductionYear)
	}
	if a.Description != nil {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(*a.Description, 200))
	}
	fmt.Fprintln(w)
}

// WriteImportSummary reports what a catalog import wrote.
func WriteImportSummary(w io.Writer, sum *importer.Summary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, sum)
	}
	fmt.Fprintf(w, "Imported %d galleries, %d exhibitions, %d artworks (%d embedded",
		sum.Galleries, sum.Exhibitions, sum.Artworks, sum.Embedded)
	if sum.Points > 0 {
		fmt.Fprintf(w, ", %d indexed", sum.Points)
	}
	fmt.Fprintln(w, ")")
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
