// Package output opens report inputs and destinations. The name "-" selects
// stdin or stdout; file destinations are replaced atomically.
package output

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Stdio is the name selecting the standard streams.
const Stdio = "-"

// ErrEmptyDestination is returned for an empty input or output name.
var ErrEmptyDestination = errors.New("empty path (use - for the standard stream)")

// Sink is an output that becomes visible only after Commit.
type Sink interface {
	io.Writer
	// Commit flushes and publishes the output.
	Commit() error
	// Abort discards everything written. It is safe to call after Commit.
	Abort() error
	// Name describes the destination for logs.
	Name() string
}

// Create opens dest for writing. stdout is used when dest is "-".
func Create(dest string, stdout io.Writer) (Sink, error) {
	if dest == "" {
		return nil, ErrEmptyDestination
	}
	if dest == Stdio {
		return &streamSink{w: bufio.NewWriter(stdout)}, nil
	}
	return newFileSink(dest)
}

// CheckDestination verifies that dest can be created, before any work is done.
func CheckDestination(dest string) error {
	switch dest {
	case "":
		return ErrEmptyDestination
	case Stdio:
		return nil
	}

	dir := filepath.Dir(dest)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.WithHint(errors.Wrapf(err, "output directory %s", dir), "create the directory first")
	}
	if !info.IsDir() {
		return errors.Newf("output directory %s is not a directory", dir)
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return errors.Newf("output %s is a directory", dest)
	}
	return nil
}

// OpenInput opens src for reading. stdin is returned when src is "-".
// The returned closer must always be called.
func OpenInput(src string, stdin io.Reader) (io.ReadCloser, error) {
	switch src {
	case "":
		return nil, ErrEmptyDestination
	case Stdio:
		return io.NopCloser(stdin), nil
	}

	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.WithHint(errors.Wrapf(err, "open input %s", src), "pass - to read from stdin")
		}
		return nil, errors.Wrapf(err, "open input %s", src)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat input %s", src)
	}
	if info.IsDir() {
		f.Close()
		return nil, errors.Newf("input %s is a directory", src)
	}
	return f, nil
}

// streamSink buffers until Commit so an aborted run writes nothing.
type streamSink struct {
	w    *bufio.Writer
	done bool
}

func (s *streamSink) Write(p []byte) (int, error) {
	if s.done {
		return 0, errors.New("write to closed output")
	}
	return s.w.Write(p)
}

func (s *streamSink) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	return errors.Wrap(s.w.Flush(), "flush stdout")
}

func (s *streamSink) Abort() error {
	if !s.done {
		s.done = true
		s.w.Reset(io.Discard)
	}
	return nil
}

func (s *streamSink) Name() string {
	return "stdout"
}
