package stats

import (
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
)

// ErrNoLockfile is returned when the lockfile does not exist.
var ErrNoLockfile = errors.New("lockfile not found")

// Lockfile is the subset of Cargo.lock the statistics need.
type Lockfile struct {
	Version int             `toml:"version"`
	Package []LockedPackage `toml:"package"`
}

// LockedPackage is one [[package]] entry.
type LockedPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Checksum     string   `toml:"checksum"`
	Dependencies []string `toml:"dependencies"`
}

// LockfileStats summarizes a lockfile.
type LockfileStats struct {
	Packages int
	// Duplicated counts crates locked at more than one version.
	Duplicated int
	// Prerelease counts packages at a semver prerelease version.
	Prerelease int
	// Unparsed counts versions that are not valid semver.
	Unparsed int
}

// LoadLockfile decodes the Cargo.lock at path.
func LoadLockfile(path string) (*Lockfile, error) {
	var lock Lockfile
	if _, err := toml.DecodeFile(path, &lock); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Mark(errors.Wrapf(err, "load lockfile %s", path), ErrNoLockfile)
		}
		return nil, errors.WithHint(
			errors.Wrapf(err, "parse lockfile %s", path),
			"generate it with `cargo generate-lockfile`",
		)
	}
	return &lock, nil
}

// Stats computes the package statistics.
func (l *Lockfile) Stats() LockfileStats {
	s := LockfileStats{
		Packages:   len(l.Package),
		Duplicated: len(l.DuplicatedCrates()),
	}
	for _, pkg := range l.Package {
		v, err := semver.StrictNewVersion(pkg.Version)
		if err != nil {
			s.Unparsed++
			continue
		}
		if v.Prerelease() != "" {
			s.Prerelease++
		}
	}
	return s
}

// DuplicatedCrates returns the names of crates locked at more than one
// version, sorted.
func (l *Lockfile) DuplicatedCrates() []string {
	versions := make(map[string]map[string]struct{})
	for _, pkg := range l.Package {
		if versions[pkg.Name] == nil {
			versions[pkg.Name] = make(map[string]struct{})
		}
		versions[pkg.Name][pkg.Version] = struct{}{}
	}
	var names []string
	for name, vs := range versions {
		if len(vs) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
