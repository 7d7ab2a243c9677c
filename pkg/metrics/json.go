package metrics

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/cockroachdb/errors"
)

type jsonFamily struct {
	Name    string       `json:"name"`
	Help    string       `json:"help"`
	Type    Kind         `json:"type"`
	Samples []jsonSample `json:"samples"`
}

type jsonSample struct {
	Labels map[string]string `json:"labels"`
	// Value is a number, or a string for NaN and the infinities.
	Value any `json:"value"`
}

// WriteJSON writes the families as a JSON array.
func WriteJSON(w io.Writer, families []Family) error {
	if err := Validate(families); err != nil {
		return err
	}

	doc := make([]jsonFamily, 0, len(families))
	for _, f := range families {
		jf := jsonFamily{Name: f.Name, Help: f.Help, Type: f.Kind, Samples: make([]jsonSample, 0, len(f.Samples))}
		for _, s := range f.Samples {
			labels := make(map[string]string, len(s.Labels))
			for _, l := range s.Labels {
				labels[l.Name] = l.Value
			}
			var value any = s.Value
			if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
				value = strconv.FormatFloat(s.Value, 'g', -1, 64)
			}
			jf.Samples = append(jf.Samples, jsonSample{Labels: labels, Value: value})
		}
		doc = append(doc, jf)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode metrics")
	}
	_, err := w.Write(buf.Bytes())
	return errors.Wrap(err, "write metrics")
}
