// Package tableio serializes exported tables into the file formats written to
// the blob store. The format is chosen by the object key extension.
package tableio

import (
	"errors"
	"fmt"
	"strings"
)

// Format is an output file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatCSVGzip Format = "csv.gz"
	FormatParquet Format = "parquet"
	FormatJSONL   Format = "jsonl"
)

// ErrUnsupportedFormat is returned for unknown formats and extensions.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ParseFormat validates a configured format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatCSVGzip, FormatParquet, FormatJSONL:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// FormatFromKey derives the format from an object key such as
// "points/year=2024/month=03/day=01/0.csv.gz".
func FormatFromKey(key string) (Format, error) {
	k := strings.ToLower(key)
	switch {
	case strings.HasSuffix(k, ".csv.gz"):
		return FormatCSVGzip, nil
	case strings.HasSuffix(k, ".csv"):
		return FormatCSV, nil
	case strings.HasSuffix(k, ".parquet"):
		return FormatParquet, nil
	case strings.HasSuffix(k, ".jsonl"):
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("%w: key %q", ErrUnsupportedFormat, key)
	}
}

// Ext is the file extension without the leading dot.
func (f Format) Ext() string {
	return string(f)
}

// ContentType is the MIME type stored with written objects.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatCSVGzip:
		return "application/gzip"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	case FormatJSONL:
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
