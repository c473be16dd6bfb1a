// Package export serializes scan results. Two formats are supported:
// a JSON array (one object per item, schema fixed by the crawl.Detail
// tags) and CSV with a header row (timestamps in RFC 3339).
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/drivescan/drivescan/internal/crawl"
)

// Format names a supported output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name from user input.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("export: unknown format %q (want json or csv)", s)
	}
}

// Write serializes details to w in the given format, path-sorted so
// output is deterministic across runs.
func Write(w io.Writer, format Format, details []crawl.Detail) error {
	sorted := make([]crawl.Detail, len(details))
	copy(sorted, details)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	switch format {
	case FormatJSON:
		return writeJSON(w, sorted)
	case FormatCSV:
		return writeCSV(w, sorted)
	default:
		return fmt.Errorf("export: unknown format %q", format)
	}
}

func writeJSON(w io.Writer, details []crawl.Detail) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(details); err != nil {
		return fmt.Errorf("export: encoding JSON: %w", err)
	}

	return nil
}

// csvHeader mirrors the JSON field names so both formats share one schema.
var csvHeader = []string{
	"id", "name", "path", "size", "isFolder",
	"quickXorHash", "sensitivityLabelId", "sensitivityLabelName",
	"createdDateTime", "lastModifiedDateTime",
}

func writeCSV(w io.Writer, details []crawl.Detail) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export: writing CSV header: %w", err)
	}

	for i := range details {
		d := &details[i]

		row := []string{
			d.ID,
			d.Name,
			d.Path,
			strconv.FormatInt(d.Size, 10),
			strconv.FormatBool(d.IsFolder),
			d.QuickXorHash,
			d.SensitivityLabelID,
			d.SensitivityLabelName,
			formatTime(d.CreatedDateTime),
			formatTime(d.LastModifiedDateTime),
		}

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: writing CSV row for %s: %w", d.Path, err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flushing CSV: %w", err)
	}

	return nil
}

// formatTime renders RFC 3339, leaving unknown timestamps empty rather
// than emitting the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}
