package parser

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/KaramelBytes/funnelboard/internal/table"
)

// Decoder turns the bytes of one tabular format into a table.
type Decoder interface {
	Name() string
	CanParse(filename string) bool
	Sniff(data []byte) bool
	Decode(data []byte, opt Options) (*table.Table, error)
}

// Options controls loading.
type Options struct {
	// Format forces a decoder by name ("csv", "xlsx"); empty means sniff.
	Format string
	// Delimiter for delimited text. If 0, sniffed from the header line.
	Delimiter rune
	// Sheet selects a workbook sheet; empty means the first one.
	Sheet string
	// Table carries locale and row-limit options for kind inference.
	Table table.Options
}

var registry []Decoder

// Register adds a decoder. Sniffing tries decoders in registration order.
func Register(d Decoder) {
	registry = append(registry, d)
}

var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Load parses an uploaded byte stream into a table. Without a declared
// format the content is sniffed: zip containers are read as workbooks,
// UTF-8 text as delimited text. Anything else, or content that does not
// match a declared format, is a *FormatError.
func Load(data []byte, opt Options) (*table.Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &FormatError{Reason: "empty input"}
	}
	if bytes.HasPrefix(data, oleMagic) {
		return nil, &FormatError{Format: "xls", Reason: "legacy .xls workbooks are not supported"}
	}
	if opt.Format != "" {
		d, err := decoderByName(opt.Format)
		if err != nil {
			return nil, err
		}
		if !d.Sniff(data) {
			return nil, &FormatError{Format: d.Name(), Reason: "content does not match the declared format"}
		}
		return d.Decode(data, opt)
	}
	for _, d := range registry {
		if d.Sniff(data) {
			return d.Decode(data, opt)
		}
	}
	return nil, &FormatError{Reason: "content is neither delimited text nor a spreadsheet"}
}

// LoadFile reads path and loads it, using the extension as the declared
// format when it names a registered decoder.
func LoadFile(path string, opt Options) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if opt.Format == "" {
		for _, d := range registry {
			if d.CanParse(path) {
				opt.Format = d.Name()
				break
			}
		}
	}
	return Load(data, opt)
}

func decoderByName(name string) (Decoder, error) {
	for _, d := range registry {
		if strings.EqualFold(d.Name(), name) {
			return d, nil
		}
	}
	return nil, &FormatError{Format: name, Reason: "unsupported format"}
}

func init() {
	Register(xlsxDecoder{})
	Register(csvDecoder{})
}
