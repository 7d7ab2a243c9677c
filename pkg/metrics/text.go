package metrics

import (
	"bytes"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

const totalSuffix = "_total"

// WriteText writes the Prometheus text exposition format (version 0.0.4).
// Families without samples are left out.
func WriteText(w io.Writer, families []Family) error {
	if err := Validate(families); err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, f := range families {
		if len(f.Samples) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(&buf, toDTO(f)); err != nil {
			return errors.Wrapf(err, "encode metric %s", f.Name)
		}
	}
	_, err := w.Write(buf.Bytes())
	return errors.Wrap(err, "write metrics")
}

// WriteOpenMetrics writes the OpenMetrics 1.0 text format. Counter families
// are declared without the "_total" suffix their samples carry, so two
// counters differing only by that suffix cannot share a document. Families
// without samples are left out. The document ends with "# EOF".
func WriteOpenMetrics(w io.Writer, families []Family) error {
	if err := Validate(families); err != nil {
		return err
	}

	declared := make(map[string]string, len(families))
	for _, f := range families {
		name := f.Name
		if f.Kind == KindCounter {
			name = strings.TrimSuffix(f.Name, totalSuffix)
		}
		if name == "" {
			return errors.Wrapf(ErrInvalidName, "counter %q has no name before %s", f.Name, totalSuffix)
		}
		if prev, dup := declared[name]; dup {
			return errors.AssertionFailedf("metric families %q and %q both declare %q", prev, f.Name, name)
		}
		declared[name] = f.Name
	}

	var buf bytes.Buffer
	for _, f := range families {
		if len(f.Samples) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToOpenMetrics(&buf, toDTO(f)); err != nil {
			return errors.Wrapf(err, "encode metric %s", f.Name)
		}
	}
	if _, err := expfmt.FinalizeOpenMetrics(&buf); err != nil {
		return errors.Wrap(err, "encode metrics")
	}

	_, err := w.Write(buf.Bytes())
	return errors.Wrap(err, "write metrics")
}

// toDTO converts a validated family, keeping sample and label order.
func toDTO(f Family) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name:   proto.String(f.Name),
		Help:   proto.String(f.Help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: make([]*dto.Metric, 0, len(f.Samples)),
	}
	if f.Kind == KindCounter {
		mf.Type = dto.MetricType_COUNTER.Enum()
	}

	for _, s := range f.Samples {
		m := &dto.Metric{Label: make([]*dto.LabelPair, 0, len(s.Labels))}
		for _, l := range s.Labels {
			m.Label = append(m.Label, &dto.LabelPair{Name: proto.String(l.Name), Value: proto.String(l.Value)})
		}
		if f.Kind == KindCounter {
			m.Counter = &dto.Counter{Value: proto.Float64(s.Value)}
		} else {
			m.Gauge = &dto.Gauge{Value: proto.Float64(s.Value)}
		}
		mf.Metric = append(mf.Metric, m)
	}
	return mf
}
