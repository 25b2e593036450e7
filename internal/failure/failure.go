// Package failure defines the error taxonomy shared by the transform pipeline.
// Every component reports errors as one of the kinds below, wrapped with
// enough context (cache key, directive, source) to be actionable.
package failure

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds.
var (
	// ErrInvalidDirective is returned for malformed or missing directives,
	// non-numeric geometry and degenerate crop boxes.
	ErrInvalidDirective = errors.New("invalid directive")
	// ErrDecode is returned when a source cannot be read or is not a supported media type.
	ErrDecode = errors.New("decode error")
	// ErrEngine is returned when the image or video engine fails.
	ErrEngine = errors.New("engine error")
	// ErrFetch is returned when a remote source is unreachable.
	ErrFetch = errors.New("fetch error")
	// ErrStorage is returned when an object storage operation fails.
	ErrStorage = errors.New("storage error")
	// ErrCancelled is returned when the caller abandons an engine run.
	ErrCancelled = errors.New("cancelled")
)

// Error is a classified failure with operation context.
type Error struct {
	// Kind is one of the sentinel errors of this package.
	Kind error
	// Op names the operation that failed, e.g. "video.build".
	Op string
	// Fields carries identifying context such as cache_key or source.
	Fields map[string]string
	// Err is the underlying cause, if any.
	Err error
}

// New creates a classified error.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// With attaches a context field and returns the receiver.
func (e *Error) With(key, value string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[key] = value
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%q", k, e.Fields[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Invalid creates an ErrInvalidDirective error with a formatted reason.
func Invalid(op, format string, args ...any) *Error {
	return New(ErrInvalidDirective, op, fmt.Errorf(format, args...))
}

// KindOf returns the sentinel kind of err, or nil if err is unclassified.
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidDirective, ErrDecode, ErrEngine, ErrFetch, ErrStorage, ErrCancelled} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
