package nodemap

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a node-map failure for callers that need to branch
// on the failure mode rather than the message.
type ErrorKind string

const (
	// KindLockUnavailable indicates the cross-process lock could not be
	// opened or acquired. Fatal to the invocation; the core never retries.
	KindLockUnavailable ErrorKind = "lock_unavailable"

	// KindUnknownHost indicates a mutation was requested against a host
	// that has no registry row.
	KindUnknownHost ErrorKind = "unknown_host"

	// KindInconsistentRebuild indicates a rebuild would drop a host that
	// is still powered on. The rebuild aborts with the registry unchanged.
	KindInconsistentRebuild ErrorKind = "inconsistent_rebuild"

	// KindPersistenceFailure indicates an I/O error writing the registry,
	// the journal, or a resolution artifact.
	KindPersistenceFailure ErrorKind = "persistence_failure"

	// KindNamingGrammar indicates a host name does not parse as
	// <account>-<cloud>-<type>.
	KindNamingGrammar ErrorKind = "naming_grammar"
)

// Error is a classified node-map error with host context.
type Error struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Host is the host name the error relates to, if any.
	Host string `json:"host,omitempty"`

	// Op is the operation being performed when the error occurred.
	Op string `json:"op,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Host != "" {
		msg += fmt.Sprintf(" (host=%s)", e.Host)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is; two node-map errors match
// when their kinds match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithOp adds operation context to the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

func newError(kind ErrorKind, message, host string, err error) *Error {
	return &Error{Kind: kind, Message: message, Host: host, Err: err}
}

// NewLockUnavailableError creates a lock acquisition failure.
func NewLockUnavailableError(message string, err error) *Error {
	return newError(KindLockUnavailable, message, "", err)
}

// NewUnknownHostError creates an unknown-host failure.
func NewUnknownHostError(host string, err error) *Error {
	return newError(KindUnknownHost, "host not in registry", host, err)
}

// NewInconsistentRebuildError creates a rebuild-consistency failure naming
// the offending host.
func NewInconsistentRebuildError(host string) *Error {
	return newError(KindInconsistentRebuild,
		"host is powered on but absent from the desired set", host, nil)
}

// NewPersistenceError creates a persistence failure.
func NewPersistenceError(message string, err error) *Error {
	return newError(KindPersistenceFailure, message, "", err)
}

// NewNamingGrammarError creates a naming-grammar failure for one host.
func NewNamingGrammarError(host, reason string) *Error {
	return newError(KindNamingGrammar, reason, host, nil)
}

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsLockUnavailable reports whether err is a lock acquisition failure.
func IsLockUnavailable(err error) bool { return isKind(err, KindLockUnavailable) }

// IsUnknownHost reports whether err is an unknown-host failure.
func IsUnknownHost(err error) bool { return isKind(err, KindUnknownHost) }

// IsInconsistentRebuild reports whether err is a rebuild-consistency failure.
func IsInconsistentRebuild(err error) bool { return isKind(err, KindInconsistentRebuild) }

// IsPersistenceFailure reports whether err is a persistence failure.
func IsPersistenceFailure(err error) bool { return isKind(err, KindPersistenceFailure) }

// IsNamingGrammarError reports whether err is a naming-grammar failure.
func IsNamingGrammarError(err error) bool { return isKind(err, KindNamingGrammar) }
