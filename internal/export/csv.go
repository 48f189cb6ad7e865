// Package export writes record listings as CSV and Excel files
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Encoding selects the byte encoding of a CSV file
type Encoding string

const (
	// UTF8BOM is UTF-8 with a byte order mark so Excel detects it
	UTF8BOM Encoding = "utf8"
	// ShiftJIS is for older Japanese tools. Unmappable characters become '?'.
	ShiftJIS Encoding = "sjis"
)

// ParseEncoding maps a query value to an Encoding, defaulting to UTF8BOM
func ParseEncoding(s string) Encoding {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sjis", "shift_jis", "shiftjis", "cp932":
		return ShiftJIS
	default:
		return UTF8BOM
	}
}

// ContentType returns the Content-Type header value for enc
func (enc Encoding) ContentType() string {
	if enc == ShiftJIS {
		return "text/csv; charset=Shift_JIS"
	}
	return "text/csv; charset=UTF-8"
}

const bom = "\uFEFF"

// WriteCSV writes header and rows to w in enc with CRLF line endings
func WriteCSV(w io.Writer, header []string, rows [][]string, enc Encoding) error {
	out := w
	var closer io.Closer
	switch enc {
	case ShiftJIS:
		sjis := japanese.ShiftJIS.NewEncoder()
		header = replaceUnmappable(sjis, header)
		mapped := make([][]string, len(rows))
		for i, row := range rows {
			mapped[i] = replaceUnmappable(sjis, row)
		}
		rows = mapped
		tw := transform.NewWriter(w, japanese.ShiftJIS.NewEncoder())
		out, closer = tw, tw
	default:
		if _, err := io.WriteString(w, bom); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(out)
	cw.UseCRLF = true
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if closer != nil {
		return closer.Close()
	}
	return nil
}

// replaceUnmappable swaps runes enc cannot represent for '?'
func replaceUnmappable(enc *encoding.Encoder, fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		if _, err := enc.String(f); err == nil {
			out[i] = f
			continue
		}
		var b strings.Builder
		for _, r := range f {
			if _, err := enc.String(string(r)); err != nil {
				b.WriteByte('?')
				continue
			}
			b.WriteRune(r)
		}
		out[i] = b.String()
	}
	return out
}
