// Package metrics renders metric families in the Prometheus text format,
// the OpenMetrics text format and JSON.
//
// Families are written in the order given. Every document is validated
// before the first byte is written, so a writer either emits a complete
// document or nothing.
package metrics

import (
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind is the metric type of a family.
type Kind string

const (
	KindCounter Kind = "counter"
	KindGauge   Kind = "gauge"
)

// ErrInvalidName is wrapped by errors for metric and label names outside the
// exposition grammar.
var ErrInvalidName = errors.New("invalid metric name")

// Label is one name/value pair of a sample.
type Label struct {
	Name  string
	Value string
}

// Sample is one value of a family, identified by its labels.
type Sample struct {
	Labels []Label
	Value  float64
}

// Family is a named group of samples sharing help text and kind.
type Family struct {
	Name    string
	Help    string
	Kind    Kind
	Samples []Sample
}

// NewCounter creates an empty counter family.
func NewCounter(name, help string) *Family {
	return &Family{Name: name, Help: help, Kind: KindCounter}
}

// NewGauge creates an empty gauge family.
func NewGauge(name, help string) *Family {
	return &Family{Name: name, Help: help, Kind: KindGauge}
}

// Add appends a sample and returns the family for chaining.
func (f *Family) Add(value float64, labels ...Label) *Family {
	f.Samples = append(f.Samples, Sample{Labels: labels, Value: value})
	return f
}

// L is shorthand for a Label.
func L(name, value string) Label {
	return Label{Name: name, Value: value}
}

// Validate checks names and uniqueness across a document.
func Validate(families []Family) error {
	names := make(map[string]struct{}, len(families))
	for _, f := range families {
		if !ValidMetricName(f.Name) {
			return errors.Wrapf(ErrInvalidName, "metric %q", f.Name)
		}
		if f.Kind != KindCounter && f.Kind != KindGauge {
			return errors.AssertionFailedf("metric %q has unknown kind %q", f.Name, f.Kind)
		}
		if _, dup := names[f.Name]; dup {
			return errors.AssertionFailedf("metric family %q declared twice", f.Name)
		}
		names[f.Name] = struct{}{}

		sets := make(map[string]struct{}, len(f.Samples))
		for _, s := range f.Samples {
			seen := make(map[string]struct{}, len(s.Labels))
			for _, l := range s.Labels {
				if !ValidLabelName(l.Name) {
					return errors.Wrapf(ErrInvalidName, "metric %q: label %q", f.Name, l.Name)
				}
				if _, dup := seen[l.Name]; dup {
					return errors.AssertionFailedf("metric %q: label %q repeated in one sample", f.Name, l.Name)
				}
				seen[l.Name] = struct{}{}
			}
			key := labelKey(s.Labels)
			if _, dup := sets[key]; dup {
				return errors.AssertionFailedf("metric %q: duplicate sample {%s}", f.Name, key)
			}
			sets[key] = struct{}{}
		}
	}
	return nil
}

// ValidMetricName reports whether name matches [a-zA-Z_:][a-zA-Z0-9_:]*.
func ValidMetricName(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_' || c == ':' || isLetter(c):
		case i > 0 && isDigit(c):
		default:
			return false
		}
	}
	return true
}

// ValidLabelName reports whether name matches [a-zA-Z_][a-zA-Z0-9_]* and is
// not reserved (leading "__").
func ValidLabelName(name string) bool {
	if name == "" || len(name) >= 2 && name[:2] == "__" {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_' || isLetter(c):
		case i > 0 && isDigit(c):
		default:
			return false
		}
	}
	return true
}

// SanitizeName maps an arbitrary string onto the metric name grammar.
// Invalid characters become '_' and a leading digit is prefixed with '_'.
func SanitizeName(s string) string {
	out := make([]byte, 0, len(s)+1)
	for i := 0; i < len(s); i++ {
		c := rune(s[i])
		switch {
		case isLetter(c) || c == '_' || c == ':':
			out = append(out, s[i])
		case isDigit(c):
			if len(out) == 0 {
				out = append(out, '_')
			}
			out = append(out, s[i])
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func labelKey(labels []Label) string {
	// Label order does not make a sample distinct.
	sorted := slices.Clone(labels)
	slices.SortFunc(sorted, func(a, b Label) int { return strings.Compare(a.Name, b.Name) })

	var b strings.Builder
	for i, l := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.Name)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(l.Value))
	}
	return b.String()
}

func isLetter(c rune) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isDigit(c rune) bool {
	return '0' <= c && c <= '9'
}
