// Package leaveerr defines the error taxonomy shared by every stage of a run.
//
// An *Error carries a Kind, which decides whether the whole run aborts or only
// the current entry fails, and an ordered list of context messages that are
// rendered outer-first in front of the root cause, joined by ": ".
package leaveerr

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

// ForceHint ends every abort message that --force can bypass.
const ForceHint = "This is likely a mistake. To continue anyways, use -f/--force."

// Kind is a coarse-grained categorization for errors.
type Kind string

const (
	KindEnvironment             Kind = "environment"
	KindEmptyTargetList         Kind = "empty_target_list"
	KindMissingTargets          Kind = "missing_targets"
	KindOutsideWorkingDirectory Kind = "outside_working_directory"
	KindProtectedDirectory      Kind = "protected_directory"
	KindDirectoryList           Kind = "directory_list"
	KindConfig                  Kind = "config"
	KindHistory                 Kind = "history"
	KindRunFile                 Kind = "run_file"

	KindEntryRead         Kind = "entry_read"
	KindIsADirectory      Kind = "is_a_directory"
	KindDirectoryNotEmpty Kind = "directory_not_empty"
	KindRemove            Kind = "remove"
)

// Fatal reports whether errors of this kind abort the whole run.
// Per-entry kinds are recorded against the outcome and the scan continues.
func (k Kind) Fatal() bool {
	switch k {
	case KindEntryRead, KindIsADirectory, KindDirectoryNotEmpty, KindRemove:
		return false
	default:
		return true
	}
}

// Root causes produced by the directory-removal policy itself.
var (
	ErrIsADirectory      = errors.New("Is a directory")
	ErrDirectoryNotEmpty = errors.New("Directory is not empty")
)

// Error wraps an underlying cause with a kind and context messages.
type Error struct {
	Kind    Kind
	Path    string   // Optional: the entry or target concerned
	Targets []string // Optional: every offending target, e.g. all missing ones
	Context []string // Outermost first
	Err     error
	Hint    string // Optional guidance appended after the chain
}

// New creates an error of the given kind with a single context message.
func New(kind Kind, path string, cause error, context string) *Error {
	e := &Error{Kind: kind, Path: path, Err: Cause(cause)}
	if context != "" {
		e.Context = []string{context}
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, len(e.Context)+1)
	parts = append(parts, e.Context...)
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		parts = append(parts, string(e.Kind))
	}
	msg := strings.Join(parts, ": ")
	if e.Hint == "" {
		return msg
	}
	if strings.HasSuffix(msg, ".") {
		return msg + " " + e.Hint
	}
	return msg + ". " + e.Hint
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Chain returns the context messages followed by the root cause message,
// without the hint.
func (e *Error) Chain() []string {
	chain := append([]string(nil), e.Context...)
	if e.Err != nil {
		chain = append(chain, e.Err.Error())
	}
	return chain
}

// Wrap prepends a context message. A plain error becomes an *Error of kind.
func Wrap(err error, kind Kind, context string) *Error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		out := *le
		out.Context = append([]string{context}, le.Context...)
		return &out
	}
	return New(kind, "", err, context)
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsKind helps callers classify errors without inspecting messages.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Cause strips the operation and path decoration the os package adds, so
// that the chain does not repeat the path already named by the context.
func Cause(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		return le.Err
	}
	var se *os.SyscallError
	if errors.As(err, &se) {
		return se.Err
	}
	return err
}
