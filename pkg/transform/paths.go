package transform

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// PathNormalizer rewrites diagnostic file names into repository-relative,
// slash-separated paths.
type PathNormalizer struct {
	root   string
	log    *zap.SugaredLogger
	warned map[string]struct{}
}

// NewPathNormalizer creates a normalizer for the project rooted at root.
// An empty root disables relativization of absolute paths.
func NewPathNormalizer(root string, log *zap.SugaredLogger) (*PathNormalizer, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	n := &PathNormalizer{log: log}
	if root == "" {
		return n, nil
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve project root %s", root)
	}
	n.root = strings.TrimSuffix(path.Clean(toSlash(abs)), "/")
	return n, nil
}

// Root returns the absolute project root, or "" when none is set.
func (n *PathNormalizer) Root() string {
	return n.root
}

// Normalize cleans p. Absolute paths under the root become relative to it;
// absolute paths elsewhere are kept and reported once.
func (n *PathNormalizer) Normalize(p string) string {
	s := toSlash(strings.TrimSpace(p))
	if s == "" {
		return ""
	}

	abs := isAbs(s)
	s = path.Clean(s)
	if !abs {
		return s
	}

	if n.root != "" {
		if rel, ok := under(s, n.root); ok {
			return rel
		}
	}

	if _, seen := n.warned[s]; !seen {
		if n.warned == nil {
			n.warned = make(map[string]struct{})
		}
		n.warned[s] = struct{}{}
		n.log.Warnw("Path is outside the project root, keeping it absolute", "path", s, "root", n.root)
	}
	return s
}

func under(p, root string) (string, bool) {
	if root == "/" {
		return strings.TrimPrefix(p, "/"), p != "/"
	}
	if len(p) <= len(root)+1 || p[len(root)] != '/' {
		return "", false
	}
	prefix := p[:len(root)]
	// Drive letters are case-insensitive.
	if prefix != root && !(hasDrive(root) && strings.EqualFold(prefix, root)) {
		return "", false
	}
	return p[len(root)+1:], true
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func isAbs(p string) bool {
	return strings.HasPrefix(p, "/") || (hasDrive(p) && len(p) > 2 && p[2] == '/')
}

func hasDrive(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
