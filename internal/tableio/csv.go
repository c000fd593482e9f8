package tableio

import (
	"bytes"
	"strings"
)

// The legacy dialect: comma delimited, quote character ', escape character \
// and no quoting. Every delimiter, quote character, escape character and line
// break inside a field is prefixed with the escape character instead.
const (
	csvDelimiter = ','
	csvQuote     = '\''
	csvEscape    = '\\'
)

var csvEscaper = strings.NewReplacer(
	string(csvEscape), string([]rune{csvEscape, csvEscape}),
	string(csvDelimiter), string([]rune{csvEscape, csvDelimiter}),
	string(csvQuote), string([]rune{csvEscape, csvQuote}),
	"\r", string(csvEscape)+"\r",
	"\n", string(csvEscape)+"\n",
)

// jsonFieldEscaper is csvEscaper for fields already run through escapeJSON,
// whose escape characters are part of the field's encoding.
var jsonFieldEscaper = strings.NewReplacer(
	string(csvDelimiter), string([]rune{csvEscape, csvDelimiter}),
	string(csvQuote), string([]rune{csvEscape, csvQuote}),
	"\r", string(csvEscape)+"\r",
	"\n", string(csvEscape)+"\n",
)

var jsonEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// escapeJSON escapes the backslashes and double quotes of a JSON document so
// that it survives as a single field of the legacy dialect. Dropping every
// escape character of the field gives back doc.
func escapeJSON(doc []byte) string {
	return jsonEscaper.Replace(string(doc))
}

// writeCSVRow writes one row. Fields whose index is set in jsonFields were
// produced by escapeJSON.
func writeCSVRow(buf *bytes.Buffer, fields []string, jsonFields []bool) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(csvDelimiter)
		}
		if i < len(jsonFields) && jsonFields[i] {
			buf.WriteString(jsonFieldEscaper.Replace(f))
			continue
		}
		buf.WriteString(csvEscaper.Replace(f))
	}
	buf.WriteByte('\n')
}

func encodeCSV(header []string, rows [][]string, jsonFields []bool) []byte {
	var buf bytes.Buffer
	writeCSVRow(&buf, header, nil)
	for _, r := range rows {
		writeCSVRow(&buf, r, jsonFields)
	}
	return buf.Bytes()
}
