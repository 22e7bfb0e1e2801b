package parser

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode/utf8"

	"github.com/KaramelBytes/funnelboard/internal/table"
)

type csvDecoder struct{}

func (csvDecoder) Name() string { return "csv" }

func (csvDecoder) CanParse(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".txt")
}

// Sniff accepts UTF-8 text without NUL bytes in its first block.
func (csvDecoder) Sniff(data []byte) bool {
	head := stripBOM(data)
	if len(head) > 8<<10 {
		head = head[:8<<10]
		// don't reject a multi-byte rune cut in half by the window
		for i := 0; i < utf8.UTFMax && !utf8.Valid(head); i++ {
			head = head[:len(head)-1]
		}
	}
	return len(head) > 0 && bytes.IndexByte(head, 0) < 0 && utf8.Valid(head)
}

func (csvDecoder) Decode(data []byte, opt Options) (*table.Table, error) {
	data = stripBOM(data)
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(data)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return nil, &FormatError{Format: "csv", Err: err}
	}
	if len(recs) == 0 {
		return nil, &FormatError{Format: "csv", Reason: "no header row"}
	}
	t, err := table.FromRecords(recs[0], recs[1:], opt.Table)
	if err != nil {
		return nil, &FormatError{Format: "csv", Err: err}
	}
	return t, nil
}

func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
}

// sniffDelimiter counts candidate separators outside quotes on the header
// line. Semicolons win ties, then commas. A header without any separator
// means a single column; the delimiter is then one that never occurs in the
// sampled rows, so no cell gets split.
func sniffDelimiter(data []byte) rune {
	lines := sampleLines(data, 50)
	header := countSeparators(lines[0])
	best := ';'
	for _, c := range []rune{',', '\t'} {
		if header[c] > header[best] {
			best = c
		}
	}
	if header[best] > 0 {
		return best
	}
	seen := map[rune]int{}
	for _, line := range lines[1:] {
		for c, n := range countSeparators(line) {
			seen[c] += n
		}
	}
	for _, c := range []rune{',', ';', '\t'} {
		if seen[c] == 0 {
			return c
		}
	}
	return ','
}

// sampleLines returns up to n logical lines, keeping quoted newlines inside
// their line.
func sampleLines(data []byte, n int) []string {
	var lines []string
	start, inQuote := 0, false
	for i, b := range data {
		switch {
		case b == '"':
			inQuote = !inQuote
		case b == '\n' && !inQuote:
			lines = append(lines, string(data[start:i]))
			start = i + 1
			if len(lines) == n {
				return lines
			}
		}
	}
	if start < len(data) || len(lines) == 0 {
		lines = append(lines, string(data[start:]))
	}
	return lines
}

func countSeparators(line string) map[rune]int {
	counts := map[rune]int{}
	inQuote := false
	for _, c := range line {
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == ';' || c == ',' || c == '\t':
			counts[c]++
		}
	}
	return counts
}
