package metrics

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Format selects an output encoding.
type Format string

const (
	FormatOpenMetrics Format = "open-metrics"
	FormatPrometheus  Format = "prometheus"
	FormatJSON        Format = "json"
)

// Formats lists the supported formats, default first.
func Formats() []Format {
	return []Format{FormatOpenMetrics, FormatPrometheus, FormatJSON}
}

// ParseFormat parses a format name. "openmetrics" and "text" are accepted
// as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open-metrics", "openmetrics":
		return FormatOpenMetrics, nil
	case "prometheus", "text":
		return FormatPrometheus, nil
	case "json":
		return FormatJSON, nil
	default:
		names := make([]string, 0, len(Formats()))
		for _, f := range Formats() {
			names = append(names, string(f))
		}
		return "", errors.WithHint(
			errors.Newf("unknown metrics format %q", s),
			"use one of: "+strings.Join(names, ", "),
		)
	}
}

// Write renders families in format f.
func Write(w io.Writer, f Format, families []Family) error {
	switch f {
	case FormatOpenMetrics:
		return WriteOpenMetrics(w, families)
	case FormatPrometheus:
		return WriteText(w, families)
	case FormatJSON:
		return WriteJSON(w, families)
	default:
		return errors.AssertionFailedf("unhandled metrics format %q", f)
	}
}
