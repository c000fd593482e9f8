package tableio

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Table is a plain string table with a header row.
type Table struct {
	Header []string
	Rows   [][]string
}

// EncodeTable serializes t in the given format. Short rows are padded with
// empty values. jsonl writes one object per row with keys in header order.
func EncodeTable(t Table, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return encodeCSV(t.Header, t.padded(), nil), nil
	case FormatCSVGzip:
		return compress(encodeCSV(t.Header, t.padded(), nil))
	case FormatParquet:
		data, err := encodeTableParquet(t.Header, t.Rows)
		if err != nil {
			return nil, fmt.Errorf("EncodeTable: %w", err)
		}
		return data, nil
	case FormatJSONL:
		data, err := encodeTableJSONL(t.Header, t.padded())
		if err != nil {
			return nil, fmt.Errorf("EncodeTable: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("EncodeTable: %w: %q", ErrUnsupportedFormat, format)
	}
}

func (t Table) padded() [][]string {
	out := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		if len(r) >= len(t.Header) {
			out[i] = r[:len(t.Header)]
			continue
		}
		p := make([]string, len(t.Header))
		copy(p, r)
		out[i] = p
	}
	return out
}

func encodeTableJSONL(header []string, rows [][]string) ([]byte, error) {
	keys := make([][]byte, len(header))
	for i, h := range header {
		k, err := json.Marshal(h)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}

	var buf bytes.Buffer
	for _, r := range rows {
		buf.WriteByte('{')
		for i, v := range r {
			if i > 0 {
				buf.WriteByte(',')
			}
			val, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			buf.Write(keys[i])
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteString("}\n")
	}
	return buf.Bytes(), nil
}
