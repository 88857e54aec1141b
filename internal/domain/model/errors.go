package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers match them with errors.Is.
var (
	// ErrTransport is a network or timeout failure talking to the ranking model.
	ErrTransport = errors.New("ranking model transport failed")
	// ErrParse is malformed model output for a team. It is resolved with a fallback.
	ErrParse = errors.New("ranking model output malformed")
	// ErrValidation rejects a request before any batch runs.
	ErrValidation = errors.New("invalid request")
	// ErrCacheConflict is returned when the fingerprint already failed.
	ErrCacheConflict = errors.New("fingerprint already failed")
	// ErrBackpressure is returned when the job queue cannot take more work.
	ErrBackpressure = errors.New("ranking queue is full")
	// ErrNotFound is returned for unknown fingerprints.
	ErrNotFound = errors.New("fingerprint not found")
	// ErrCanceled marks a job abandoned by its caller.
	ErrCanceled = errors.New("ranking canceled")
)

// Error carries an error kind, the operation that produced it and the
// fingerprint of the request it belongs to.
type Error struct {
	Op          string
	Kind        error
	Fingerprint string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Fingerprint != "" {
		msg += " (fingerprint " + shortFingerprint(e.Fingerprint) + ")"
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an Error of kind with a plain message.
func NewError(op string, kind error, msg string) *Error {
	return &Error{Op: op, Kind: kind, Err: errors.New(msg)}
}

// WrapError builds an Error of kind around err.
func WrapError(op string, kind error, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// WithFingerprint attaches fp to err, wrapping plain errors in an *Error.
func WithFingerprint(err error, fp string) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		cp := *me
		cp.Fingerprint = fp
		return &cp
	}
	return &Error{Op: "picklist", Kind: KindOf(err), Fingerprint: fp, Err: err}
}

// KindOf returns the sentinel kind of err, or the internal kind when err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrCacheConflict, ErrBackpressure, ErrNotFound, ErrCanceled, ErrTransport, ErrParse} {
		if errors.Is(err, k) {
			return k
		}
	}
	return errUnknown
}

// FingerprintOf returns the fingerprint attached to err, if any.
func FingerprintOf(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.Fingerprint
	}
	return ""
}

var errUnknown = errors.New("internal error")

// Error codes reported to API clients, one per kind.
const (
	CodeValidation = "validation_error"
	CodeConflict   = "cache_conflict"
	CodeBusy       = "backpressure"
	CodeNotFound   = "not_found"
	CodeCanceled   = "canceled"
	CodeTransport  = "transport_error"
	CodeParse      = "parse_error"
	CodeInternal   = "internal_error"
)

var codes = map[error]string{
	ErrValidation:    CodeValidation,
	ErrCacheConflict: CodeConflict,
	ErrBackpressure:  CodeBusy,
	ErrNotFound:      CodeNotFound,
	ErrCanceled:      CodeCanceled,
	ErrTransport:     CodeTransport,
	ErrParse:         CodeParse,
}

// CodeOf returns the API code of err's kind.
func CodeOf(err error) string {
	if c, ok := codes[KindOf(err)]; ok {
		return c
	}
	return CodeInternal
}

// KindOfCode is the inverse of CodeOf. Unknown codes map to the internal kind.
func KindOfCode(code string) error {
	for k, c := range codes {
		if c == code {
			return k
		}
	}
	return errUnknown
}

// IsUnknown reports whether kind is the catch-all kind returned by KindOf.
func IsUnknown(kind error) bool { return errors.Is(kind, errUnknown) }

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fmt.Sprintf("%s…", fp[:12])
	}
	return fp
}
