package store

import (
	"errors"
	"strings"
)

// Sentinel error kinds mirroring §7's storage failure semantics.
var (
	// ErrRecoverable marks a transient error (sqlite busy/locked) that the
	// caller may retry after recovery, per §4.A "Failure semantics".
	ErrRecoverable = errors.New("store: recoverable storage error")
	// ErrFatal names a non-recoverable storage error kind; classifyErr does
	// not attach it, so no error returned by this package wraps it.
	ErrFatal = errors.New("store: fatal storage error")
)

// classifyErr joins ErrRecoverable onto sqlite busy/locked errors, judged
// by the error text, so callers may retry them or run the lock-cleanup
// recovery path. Every other error, schema mismatches included, is
// returned unchanged.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "busy"),
		strings.Contains(msg, "sqlite_busy"):
		return errors.Join(ErrRecoverable, err)
	default:
		return err
	}
}

// IsRecoverable reports whether err was classified as a recoverable storage
// error.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}
