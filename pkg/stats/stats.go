// Package stats derives project metric families from an issue set and the
// optional lockfile, history and auxiliary sources.
package stats

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/metrics"
)

// OtherRule labels the issues folded out of the per-rule family.
const OtherRule = "(other)"

// Counter is an auxiliary counter supplied by the caller.
type Counter struct {
	Name  string
	Help  string
	Value float64
}

// History is the issue history summary.
type History struct {
	Open     int
	Resolved int
}

// Input is everything a statistics document is computed from.
type Input struct {
	Issues    []codequality.Issue
	Lockfile  *LockfileStats
	History   *History
	Auxiliary []Counter
}

// Options tunes the output.
type Options struct {
	// TopRules limits issues_by_rule to the most frequent rules; 0 keeps all.
	TopRules int
	// Namespace prefixes every family name.
	Namespace string
}

// Aggregator computes metric families. It holds no state between calls.
type Aggregator struct {
	opts Options
}

// New creates an aggregator.
func New(opts Options) (*Aggregator, error) {
	if opts.TopRules < 0 {
		return nil, errors.Newf("stats.top_rules must not be negative, got %d", opts.TopRules)
	}
	if opts.Namespace != "" && !metrics.ValidMetricName(opts.Namespace) {
		return nil, errors.Wrapf(metrics.ErrInvalidName, "stats.namespace %q", opts.Namespace)
	}
	return &Aggregator{opts: opts}, nil
}

var builtin = []string{
	"issues_total",
	"issues_by_severity",
	"issues_by_rule",
	"files_with_issues",
	"issues_per_file",
	"issues_per_file_max",
	"dependencies",
	"dependencies_duplicated",
	"dependencies_prerelease",
	"history_open",
	"history_resolved",
}

// Families returns the families in their fixed declaration order.
func (a *Aggregator) Families(in Input) ([]metrics.Family, error) {
	var out []metrics.Family
	add := func(f *metrics.Family) {
		f.Name = a.name(f.Name)
		out = append(out, *f)
	}

	add(metrics.NewCounter("issues_total", "number of unique issues").
		Add(float64(len(in.Issues))))

	bySeverity := make(map[codequality.Severity]int)
	for _, issue := range in.Issues {
		bySeverity[issue.Severity]++
	}
	sev := metrics.NewCounter("issues_by_severity", "number of issues per severity")
	for _, s := range codequality.Severities() {
		sev.Add(float64(bySeverity[s]), metrics.L("severity", string(s)))
	}
	add(sev)

	rules := metrics.NewCounter("issues_by_rule", "number of issues per rule")
	for _, rc := range a.ruleCounts(in.Issues) {
		rules.Add(float64(rc.count), metrics.L("rule", rc.rule))
	}
	add(rules)

	perFile := fileCounts(in.Issues)
	add(metrics.NewCounter("files_with_issues", "number of files with at least one issue").
		Add(float64(len(perFile))))

	mean, worst := 0.0, 0.0
	if len(perFile) > 0 {
		mean = stat.Mean(perFile, nil)
		worst = floats.Max(perFile)
	}
	add(metrics.NewGauge("issues_per_file", "mean number of issues per affected file").Add(mean))
	add(metrics.NewGauge("issues_per_file_max", "largest number of issues in one file").Add(worst))

	if lock := in.Lockfile; lock != nil {
		add(metrics.NewGauge("dependencies", "number of dependencies").Add(float64(lock.Packages)))
		add(metrics.NewGauge("dependencies_duplicated", "number of crates locked at more than one version").
			Add(float64(lock.Duplicated)))
		add(metrics.NewGauge("dependencies_prerelease", "number of dependencies at a prerelease version").
			Add(float64(lock.Prerelease)))
	}

	if h := in.History; h != nil {
		add(metrics.NewGauge("history_open", "number of tracked issues still open").Add(float64(h.Open)))
		add(metrics.NewGauge("history_resolved", "number of tracked issues resolved").Add(float64(h.Resolved)))
	}

	aux, err := a.auxiliary(in.Auxiliary)
	if err != nil {
		return nil, err
	}
	out = append(out, aux...)

	if err := metrics.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// declaredName is the name a counter is declared under in OpenMetrics,
// where the samples carry a "_total" suffix the family name does not.
func declaredName(name string) string {
	return strings.TrimSuffix(name, "_total")
}

func (a *Aggregator) auxiliary(counters []Counter) ([]metrics.Family, error) {
	taken := make(map[string]string, 2*(len(builtin)+len(counters)))
	claim := func(name, owner string) {
		taken[name] = owner
		taken[declaredName(name)] = owner
	}
	for _, name := range builtin {
		claim(name, "built-in metric "+strconv.Quote(name))
	}

	out := make([]metrics.Family, 0, len(counters))
	for _, c := range counters {
		name := metrics.SanitizeName(strings.TrimSpace(c.Name))
		if name == "" {
			return nil, errors.Wrapf(metrics.ErrInvalidName, "auxiliary counter %q", c.Name)
		}
		if c.Value < 0 || math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
			return nil, errors.WithHint(
				errors.Newf("auxiliary counter %q has value %v", c.Name, c.Value),
				"counters must be finite and not negative",
			)
		}
		for _, candidate := range []string{name, declaredName(name)} {
			if prev, ok := taken[candidate]; ok {
				return nil, errors.WithHint(
					errors.Newf("auxiliary counter %q clashes with %s", c.Name, prev),
					"rename the counter; names that differ only by a _total suffix collide",
				)
			}
		}
		claim(name, "auxiliary counter "+strconv.Quote(c.Name))

		help := c.Help
		if help == "" {
			help = "auxiliary counter " + name
		}
		f := metrics.NewCounter(a.name(name), help).Add(c.Value)
		out = append(out, *f)
	}
	return out, nil
}

type ruleCount struct {
	rule  string
	count int
}

// ruleCounts sorts by count descending, then rule ascending, and folds the
// tail beyond TopRules into OtherRule.
func (a *Aggregator) ruleCounts(issues []codequality.Issue) []ruleCount {
	counts := make(map[string]int)
	for _, issue := range issues {
		counts[issue.CheckName]++
	}

	list := make([]ruleCount, 0, len(counts))
	for rule, n := range counts {
		list = append(list, ruleCount{rule: rule, count: n})
	}
	slices.SortFunc(list, func(x, y ruleCount) int {
		if c := cmp.Compare(y.count, x.count); c != 0 {
			return c
		}
		return strings.Compare(x.rule, y.rule)
	})

	if a.opts.TopRules == 0 || len(list) <= a.opts.TopRules {
		return list
	}

	other := 0
	for _, rc := range list[a.opts.TopRules:] {
		other += rc.count
	}
	return append(list[:a.opts.TopRules], ruleCount{rule: OtherRule, count: other})
}

// fileCounts returns the number of issues per distinct path.
func fileCounts(issues []codequality.Issue) []float64 {
	index := make(map[string]int)
	var counts []float64
	for _, issue := range issues {
		i, ok := index[issue.Path]
		if !ok {
			i = len(counts)
			index[issue.Path] = i
			counts = append(counts, 0)
		}
		counts[i]++
	}
	return counts
}

func (a *Aggregator) name(n string) string {
	if a.opts.Namespace == "" {
		return n
	}
	return a.opts.Namespace + "_" + n
}
