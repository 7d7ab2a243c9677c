package stats

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/metrics"
)

func issue(rule string, sev codequality.Severity, path string, line int) codequality.Issue {
	return codequality.NewIssue(rule, sev, "message", path, line)
}

func aggregator(t *testing.T, opts Options) *Aggregator {
	t.Helper()
	a, err := New(opts)
	require.NoError(t, err)
	return a
}

func family(t *testing.T, families []metrics.Family, name string) metrics.Family {
	t.Helper()
	for _, f := range families {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("family %s not found", name)
	return metrics.Family{}
}

func names(families []metrics.Family) []string {
	out := make([]string, len(families))
	for i, f := range families {
		out[i] = f.Name
	}
	return out
}

func TestFamiliesScenario(t *testing.T) {
	in := Input{Issues: []codequality.Issue{
		issue("clippy::a", codequality.SeverityMinor, "src/a.rs", 1),
		issue("clippy::b", codequality.SeverityMinor, "src/a.rs", 2),
		issue("E0308", codequality.SeverityMajor, "src/b.rs", 3),
	}}

	families, err := aggregator(t, Options{}).Families(in)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, metrics.WriteText(&buf, families))
	out := buf.String()

	assert.Contains(t, out, "issues_total 3\n")
	assert.Contains(t, out, `issues_by_severity{severity="minor"} 2`+"\n")
	assert.Contains(t, out, `issues_by_severity{severity="major"} 1`+"\n")
	assert.Contains(t, out, `issues_by_severity{severity="blocker"} 0`+"\n")
	assert.Contains(t, out, "files_with_issues 2\n")
	assert.Contains(t, out, "issues_per_file 1.5\n")
	assert.Contains(t, out, "issues_per_file_max 2\n")
}

func TestFamiliesOrder(t *testing.T) {
	in := Input{
		Lockfile:  &LockfileStats{Packages: 4},
		History:   &History{Open: 1, Resolved: 2},
		Auxiliary: []Counter{{Name: "zeta", Value: 1}, {Name: "alpha", Value: 2}},
	}
	families, err := aggregator(t, Options{}).Families(in)
	require.NoError(t, err)

	assert.Equal(t, []string{
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
		"zeta",
		"alpha",
	}, names(families))
}

func TestFamiliesEmptyInput(t *testing.T) {
	families, err := aggregator(t, Options{}).Families(Input{})
	require.NoError(t, err)

	assert.Len(t, families, 6, "optional sources are omitted")
	for _, f := range families {
		for _, s := range f.Samples {
			assert.Zero(t, s.Value, f.Name)
			assert.False(t, math.IsNaN(s.Value), f.Name)
		}
	}
	assert.Len(t, family(t, families, "issues_by_severity").Samples, len(codequality.Severities()))
	assert.Empty(t, family(t, families, "issues_by_rule").Samples)
}

func TestSeverityScaleOrder(t *testing.T) {
	families, err := aggregator(t, Options{}).Families(Input{})
	require.NoError(t, err)

	var got []string
	for _, s := range family(t, families, "issues_by_severity").Samples {
		got = append(got, s.Labels[0].Value)
	}
	assert.Equal(t, []string{"info", "minor", "major", "critical", "blocker"}, got)
}

func TestRuleOrderAndTopRules(t *testing.T) {
	var issues []codequality.Issue
	add := func(rule string, n int) {
		for i := range n {
			issues = append(issues, issue(rule, codequality.SeverityMinor, "src/"+rule+".rs", i+1))
		}
	}
	add("c", 2)
	add("a", 2)
	add("b", 5)
	add("d", 1)

	all, err := aggregator(t, Options{}).Families(Input{Issues: issues})
	require.NoError(t, err)
	assert.Equal(t, []metrics.Sample{
		{Labels: []metrics.Label{{Name: "rule", Value: "b"}}, Value: 5},
		{Labels: []metrics.Label{{Name: "rule", Value: "a"}}, Value: 2},
		{Labels: []metrics.Label{{Name: "rule", Value: "c"}}, Value: 2},
		{Labels: []metrics.Label{{Name: "rule", Value: "d"}}, Value: 1},
	}, family(t, all, "issues_by_rule").Samples)

	top, err := aggregator(t, Options{TopRules: 2}).Families(Input{Issues: issues})
	require.NoError(t, err)
	assert.Equal(t, []metrics.Sample{
		{Labels: []metrics.Label{{Name: "rule", Value: "b"}}, Value: 5},
		{Labels: []metrics.Label{{Name: "rule", Value: "a"}}, Value: 2},
		{Labels: []metrics.Label{{Name: "rule", Value: OtherRule}}, Value: 3},
	}, family(t, top, "issues_by_rule").Samples)

	exact, err := aggregator(t, Options{TopRules: 4}).Families(Input{Issues: issues})
	require.NoError(t, err)
	assert.Len(t, family(t, exact, "issues_by_rule").Samples, 4)
}

func TestNamespace(t *testing.T) {
	families, err := aggregator(t, Options{Namespace: "lintlab"}).Families(Input{
		Auxiliary: []Counter{{Name: "build_seconds", Value: 12}},
	})
	require.NoError(t, err)

	for _, n := range names(families) {
		assert.Regexp(t, "^lintlab_", n)
	}
	assert.Contains(t, names(families), "lintlab_build_seconds")
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{TopRules: -1})
	assert.Error(t, err)

	_, err = New(Options{Namespace: "bad-ns"})
	assert.ErrorIs(t, err, metrics.ErrInvalidName)
}

func TestAuxiliaryCounters(t *testing.T) {
	a := aggregator(t, Options{})

	families, err := a.Families(Input{Auxiliary: []Counter{{Name: "cargo.targets", Help: "targets built", Value: 7}}})
	require.NoError(t, err)
	f := family(t, families, "cargo_targets")
	assert.Equal(t, metrics.KindCounter, f.Kind)
	assert.Equal(t, "targets built", f.Help)
	assert.Equal(t, 7.0, f.Samples[0].Value)

	_, err = a.Families(Input{Auxiliary: []Counter{{Name: "issues_total", Value: 1}}})
	assert.Error(t, err, "reserved name")

	_, err = a.Families(Input{Auxiliary: []Counter{{Name: "x-y", Value: 1}, {Name: "x_y", Value: 2}}})
	assert.Error(t, err, "duplicate after sanitizing")

	_, err = a.Families(Input{Auxiliary: []Counter{{Name: "  ", Value: 1}}})
	assert.ErrorIs(t, err, metrics.ErrInvalidName)
}

func TestAuxiliaryCountersRejectBadValues(t *testing.T) {
	a := aggregator(t, Options{})

	for _, v := range []float64{-3, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := a.Families(Input{Auxiliary: []Counter{{Name: "x", Value: v}}})
		require.Error(t, err, "%v", v)
		assert.False(t, errors.IsAssertionFailure(err))
		assert.Contains(t, errors.FlattenHints(err), "not negative")
	}

	families, err := a.Families(Input{Auxiliary: []Counter{{Name: "x", Value: 0}}})
	require.NoError(t, err)
	assert.Zero(t, family(t, families, "x").Samples[0].Value)
}

func TestAuxiliaryCountersTotalSuffixClash(t *testing.T) {
	tests := []struct {
		name string
		aux  []Counter
	}{
		{"built-in declared name", []Counter{{Name: "issues", Value: 1}}},
		{"built-in with suffix", []Counter{{Name: "issues_by_rule_total", Value: 1}}},
		{"gauge with suffix", []Counter{{Name: "dependencies_total", Value: 1}}},
		{"auxiliary pair", []Counter{{Name: "build", Value: 1}, {Name: "build_total", Value: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := aggregator(t, Options{}).Families(Input{Auxiliary: tt.aux})
			require.Error(t, err)
			assert.False(t, errors.IsAssertionFailure(err))
			assert.Contains(t, err.Error(), "clashes with")
			assert.Contains(t, errors.FlattenHints(err), "rename")
		})
	}

	families, err := aggregator(t, Options{}).Families(Input{Auxiliary: []Counter{{Name: "build_total", Value: 2}}})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, metrics.WriteOpenMetrics(&buf, families))
	assert.Contains(t, buf.String(), "# TYPE build counter\nbuild_total 2.0\n")
}

func TestFamiliesDeterministic(t *testing.T) {
	in := Input{Issues: []codequality.Issue{
		issue("r1", codequality.SeverityInfo, "a", 1),
		issue("r2", codequality.SeverityBlocker, "b", 1),
		issue("r3", codequality.SeverityInfo, "c", 1),
		issue("r1", codequality.SeverityInfo, "d", 1),
	}}
	render := func() string {
		families, err := aggregator(t, Options{}).Families(in)
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, metrics.WriteOpenMetrics(&buf, families))
		return buf.String()
	}
	assert.Equal(t, render(), render())
}

func TestLoadLockfile(t *testing.T) {
	lock, err := LoadLockfile(filepath.Join("testdata", "Cargo.lock"))
	require.NoError(t, err)

	assert.Equal(t, 3, lock.Version)
	require.Len(t, lock.Package, 6)
	assert.Equal(t, []string{"serde", "syn 1.0.109", "syn 2.0.77", "tokio"}, lock.Package[0].Dependencies)

	assert.Equal(t, LockfileStats{Packages: 6, Duplicated: 1, Prerelease: 1}, lock.Stats())
	assert.Equal(t, []string{"syn"}, lock.DuplicatedCrates())
}

func TestLoadLockfileMissing(t *testing.T) {
	_, err := LoadLockfile(filepath.Join(t.TempDir(), "Cargo.lock"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoLockfile))
}

func TestLoadLockfileBroken(t *testing.T) {
	_, err := LoadLockfile(filepath.Join("testdata", "broken.lock"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoLockfile))
	assert.Contains(t, errors.FlattenHints(err), "cargo generate-lockfile")
}

func TestLockfileStatsUnparsedVersion(t *testing.T) {
	lock := &Lockfile{Package: []LockedPackage{
		{Name: "a", Version: "1.0"},
		{Name: "b", Version: "2.0.0-beta.1"},
	}}
	assert.Equal(t, LockfileStats{Packages: 2, Prerelease: 1, Unparsed: 1}, lock.Stats())
}

func TestDependenciesFamily(t *testing.T) {
	lock, err := LoadLockfile(filepath.Join("testdata", "Cargo.lock"))
	require.NoError(t, err)
	s := lock.Stats()

	families, err := aggregator(t, Options{}).Families(Input{Lockfile: &s})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, metrics.WriteOpenMetrics(&buf, families))
	assert.Contains(t, buf.String(), "# HELP dependencies number of dependencies\n# TYPE dependencies gauge\ndependencies 6.0\n")
}
