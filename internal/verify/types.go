// Package verify checks a package's output tree after its phases succeed:
// that something was installed at all and, for the final bootstrap stage,
// that installed ELF files do not reach back into the host system.
package verify

import "fmt"

// ErrorCategory classifies ELF inspection failures.
type ErrorCategory int

const (
	// ErrUnreadable indicates the file could not be read.
	ErrUnreadable ErrorCategory = iota

	// ErrCorrupted indicates the file has invalid internal structure.
	ErrCorrupted

	// ErrRpathLimitExceeded indicates a binary has too many RPATH entries.
	ErrRpathLimitExceeded

	// ErrPathLengthExceeded indicates a path exceeds PATH_MAX.
	ErrPathLengthExceeded
)

// String returns a human-readable name for the error category.
func (c ErrorCategory) String() string {
	switch c {
	case ErrUnreadable:
		return "unreadable"
	case ErrCorrupted:
		return "corrupted"
	case ErrRpathLimitExceeded:
		return "rpath limit exceeded"
	case ErrPathLengthExceeded:
		return "path length exceeded"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ValidationError is an ELF inspection failure.
type ValidationError struct {
	Category ErrorCategory
	Path     string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msg := e.Category.String()
	if e.Message != "" {
		msg = e.Message
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	if e.Path != "" {
		return e.Path + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Mode decides what contamination findings do to the build.
type Mode string

const (
	// Advisory logs findings and lets the build succeed.
	Advisory Mode = "advisory"
	// Strict fails the build on any finding.
	Strict Mode = "strict"
)

// ParseMode parses a mode name; empty means Advisory.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Advisory:
		return Advisory, nil
	case Strict:
		return Strict, nil
	}
	return "", fmt.Errorf("invalid contamination mode %q (want advisory or strict)", s)
}
