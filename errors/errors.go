package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse     Phase = "parse"     // manifest and source scanning
	PhaseNormalize Phase = "normalize" // snippet normalization
	PhaseEncode    Phase = "encode"    // payload encoding and sizing
	PhaseName      Phase = "name"      // symbol naming and registration
	PhaseBind      Phase = "bind"      // foreign signature binding
	PhaseExport    Phase = "export"    // object and assembly emission
	PhaseLoad      Phase = "load"      // module loading and symbol extraction
	PhaseLink      Phase = "link"      // import resolution
	PhaseRuntime   Phase = "runtime"   // calls across the script boundary
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidIdentifier Kind = "invalid_identifier"
	KindUnbalanced        Kind = "unbalanced"
	KindSizeMismatch      Kind = "size_mismatch"
	KindNameConflict      Kind = "name_conflict"
	KindArityMismatch     Kind = "arity_mismatch"
	KindUnsupported       Kind = "unsupported"
	KindNotFound          Kind = "not_found"
	KindMissingImport     Kind = "missing_import"
	KindAllocation        Kind = "allocation"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidData       Kind = "invalid_data"
	KindScript            Kind = "script"
	KindInstantiation     Kind = "instantiation"
	KindIO                Kind = "io"
	KindTrap              Kind = "trap"
)

// Error is the structured error type used throughout emjs
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Symbol string
	Detail string
	Path   []string
	Sites  []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Symbol != "" {
		b.WriteString(" ")
		b.WriteString(e.Symbol)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if len(e.Sites) > 0 {
		b.WriteString(" (declared at ")
		b.WriteString(strings.Join(e.Sites, " and "))
		b.WriteByte(')')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Symbol sets the symbol the error is about
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Sites records the declaration sites involved
func (b *Builder) Sites(sites ...string) *Builder {
	b.err.Sites = sites
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidIdentifier creates an error for a name that cannot be used as a symbol or parameter
func InvalidIdentifier(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidIdentifier,
		Detail: fmt.Sprintf("%q is not a valid identifier", name),
	}
}

// SizeMismatch creates the fatal error raised when a declared size differs from the bytes
func SizeMismatch(phase Phase, symbol string, declared, actual int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindSizeMismatch,
		Symbol: symbol,
		Detail: fmt.Sprintf("declared size %d, encoded %d bytes", declared, actual),
	}
}

// NameConflict creates a symbol conflict error naming both declaration sites
func NameConflict(symbol, first, second string) *Error {
	return &Error{
		Phase:  PhaseName,
		Kind:   KindNameConflict,
		Symbol: symbol,
		Detail: "symbol declared twice",
		Sites:  []string{first, second},
	}
}

// ArityMismatch creates an arity error between a signature and a snippet
func ArityMismatch(phase Phase, symbol string, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindArityMismatch,
		Symbol: symbol,
		Detail: fmt.Sprintf("signature has %d parameter(s), snippet has %d", want, got),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, what string, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("%s: offset %d out of bounds (length %d)", what, offset, length),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, symbol, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Symbol: symbol,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Script wraps an exception thrown by a script across the boundary
func Script(symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindScript,
		Symbol: symbol,
		Detail: "script raised an exception",
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Namespace string // e.g., "env"
	Function  string // e.g., "sum"
}

// MissingImportsError is returned when a module imports functions nothing provides
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "namespace#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		ns, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Namespace: ns,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (namespace, function string) {
	ns, fn, found := strings.Cut(key, "#")
	if found {
		return ns, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d import(s):\n", len(e.Imports)))

	// Group by namespace for cleaner output
	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], imp.Function)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, fn := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
