package parser

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// Cargo message reasons (`cargo --message-format=json`).
const (
	ReasonCompilerMessage     = "compiler-message"
	ReasonCompilerArtifact    = "compiler-artifact"
	ReasonBuildScriptExecuted = "build-script-executed"
	ReasonBuildFinished       = "build-finished"
)

// MessageTypeDiagnostic marks a bare rustc diagnostic (`rustc --error-format=json`).
const MessageTypeDiagnostic = "diagnostic"

// CompilerMessage is a cargo "compiler-message" record.
type CompilerMessage struct {
	Reason       string     `json:"reason"`
	PackageID    string     `json:"package_id"`
	ManifestPath string     `json:"manifest_path"`
	Target       *Target    `json:"target"`
	Message      Diagnostic `json:"message"`
}

// Target is the cargo build target that produced a message.
type Target struct {
	Name    string   `json:"name"`
	Kind    []string `json:"kind"`
	SrcPath string   `json:"src_path"`
}

// Diagnostic is a rustc diagnostic, possibly with child diagnostics.
type Diagnostic struct {
	Message  string          `json:"message"`
	Code     *DiagnosticCode `json:"code"`
	Level    string          `json:"level"`
	Spans    []Span          `json:"spans"`
	Children []Diagnostic    `json:"children"`
	Rendered *string         `json:"rendered"`
}

// DiagnosticCode identifies the lint or error code.
type DiagnosticCode struct {
	Code        string  `json:"code"`
	Explanation *string `json:"explanation"`
}

// Span is a source region a diagnostic points at.
// Line and column numbers are 1-based and unsigned in rustc's output.
type Span struct {
	FileName                string         `json:"file_name"`
	ByteStart               uint64         `json:"byte_start"`
	ByteEnd                 uint64         `json:"byte_end"`
	LineStart               uint64         `json:"line_start"`
	LineEnd                 uint64         `json:"line_end"`
	ColumnStart             uint64         `json:"column_start"`
	ColumnEnd               uint64         `json:"column_end"`
	IsPrimary               bool           `json:"is_primary"`
	Text                    []SpanLine     `json:"text"`
	Label                   *string        `json:"label"`
	SuggestedReplacement    *string        `json:"suggested_replacement"`
	SuggestionApplicability *string        `json:"suggestion_applicability"`
	Expansion               *SpanExpansion `json:"expansion"`
}

// SpanLine is one source line covered by a span.
type SpanLine struct {
	Text           string `json:"text"`
	HighlightStart uint64 `json:"highlight_start"`
	HighlightEnd   uint64 `json:"highlight_end"`
}

// SpanExpansion describes the macro invocation a span came from.
type SpanExpansion struct {
	Span          Span   `json:"span"`
	MacroDeclName string `json:"macro_decl_name"`
	DefSiteSpan   *Span  `json:"def_site_span"`
}

// ParseCompilerMessage decodes a compiler-message record.
func ParseCompilerMessage(rec Record) (*CompilerMessage, error) {
	if rec.Kind != ReasonCompilerMessage {
		return nil, errors.Newf("line %d: record reason %q is not %q", rec.Line, rec.Kind, ReasonCompilerMessage)
	}
	var msg CompilerMessage
	if err := json.Unmarshal(rec.Raw, &msg); err != nil {
		return nil, errors.Wrapf(err, "line %d: decode compiler message", rec.Line)
	}
	return &msg, nil
}

// ParseDiagnostic decodes a bare rustc diagnostic record.
func ParseDiagnostic(rec Record) (*Diagnostic, error) {
	var diag Diagnostic
	if err := json.Unmarshal(rec.Raw, &diag); err != nil {
		return nil, errors.Wrapf(err, "line %d: decode diagnostic", rec.Line)
	}
	return &diag, nil
}

// CodeOr returns the diagnostic code, or fallback when there is none.
func (d *Diagnostic) CodeOr(fallback string) string {
	if d.Code == nil || strings.TrimSpace(d.Code.Code) == "" {
		return fallback
	}
	return strings.TrimSpace(d.Code.Code)
}

// PrimarySpan returns the span the diagnostic is attributed to.
//
// The first span marked primary wins, else the first span. Spans inside
// synthetic files (macro internals such as "<::core::macros>") are resolved
// through their expansion chain to the invocation site. Returns nil when no
// span lives in a real file.
func (d *Diagnostic) PrimarySpan() *Span {
	var span *Span
	for i := range d.Spans {
		if d.Spans[i].IsPrimary {
			span = &d.Spans[i]
			break
		}
	}
	if span == nil && len(d.Spans) > 0 {
		span = &d.Spans[0]
	}

	for span != nil && span.Synthetic() {
		if span.Expansion == nil {
			return nil
		}
		span = &span.Expansion.Span
	}
	return span
}

// Synthetic reports whether the span points into a compiler-internal file.
func (s *Span) Synthetic() bool {
	return s.FileName == "" || strings.HasPrefix(s.FileName, "<")
}

// Suggestions returns the help children of the diagnostic as readable text.
// A help with a machine-applicable replacement renders as "message: `replacement`".
func (d *Diagnostic) Suggestions() []string {
	var out []string
	for _, child := range d.Children {
		if child.Level != "help" {
			continue
		}
		text := strings.TrimSpace(child.Message)
		for _, span := range child.Spans {
			if span.SuggestedReplacement == nil {
				continue
			}
			if repl := strings.TrimSpace(*span.SuggestedReplacement); repl != "" {
				text += ": `" + repl + "`"
			}
			break
		}
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}
