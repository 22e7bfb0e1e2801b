package parser

import "fmt"

// FormatError reports bytes that match none of the supported tabular formats,
// or that claim a format and then fail to parse as it.
type FormatError struct {
	Format string // "csv", "xlsx", or "" when nothing matched
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := "unable to parse file"
	if e.Format != "" {
		msg += " as " + e.Format
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }
