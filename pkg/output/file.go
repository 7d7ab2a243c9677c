package output

import (
	"bufio"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/renameio/v2"
)

// fileSink writes to a pending file next to the destination which replaces
// the destination on Commit.
type fileSink struct {
	dest    string
	pending *renameio.PendingFile
	w       *bufio.Writer
	done    bool
}

func newFileSink(dest string) (*fileSink, error) {
	pending, err := renameio.NewPendingFile(dest,
		renameio.WithTempDir(filepath.Dir(dest)),
		renameio.WithStaticPermissions(0o644),
	)
	if err != nil {
		return nil, errors.WithHint(errors.Wrapf(err, "create output %s", dest), "check that the directory exists and is writable")
	}
	return &fileSink{dest: dest, pending: pending, w: bufio.NewWriter(pending)}, nil
}

func (f *fileSink) Write(p []byte) (int, error) {
	if f.done {
		return 0, errors.Newf("write to closed output %s", f.dest)
	}
	return f.w.Write(p)
}

func (f *fileSink) Commit() error {
	if f.done {
		return nil
	}
	f.done = true
	defer f.pending.Cleanup()

	if err := f.w.Flush(); err != nil {
		return errors.Wrapf(err, "write %s", f.dest)
	}
	if err := f.pending.CloseAtomicallyReplace(); err != nil {
		return errors.Wrapf(err, "replace %s", f.dest)
	}
	return nil
}

func (f *fileSink) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	return errors.Wrapf(f.pending.Cleanup(), "discard output for %s", f.dest)
}

func (f *fileSink) Name() string {
	return f.dest
}
