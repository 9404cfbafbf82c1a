// Package errors provides structured error types for emjs.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the symbol involved, a field path, the declaration sites
// for conflicts, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindUnbalanced).
//		Symbol("__em_js__sum").
//		Detail("unclosed '{' at byte %d", 12).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.SizeMismatch(errors.PhaseExport, "__em_js__sum", 41, 42)
//	err := errors.NameConflict("__em_js__sum", "a.go:3:1", "b.go:9:1")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
