// Package builderr defines the failure taxonomy shared by every stage of a
// package build. Each type carries the package identity and the stage so a
// single line in the build log identifies what failed where.
package builderr

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports a required toolchain or environment piece that
// could not be found. It is always fatal and never retried.
type ConfigurationError struct {
	Package string
	Stage   string
	// What names the missing resource, e.g. "cross compiler".
	What string
	// Searched lists every location that was examined.
	Searched []string
	// Pattern is the name pattern that was expected.
	Pattern string
	// Detail carries free-form context for errors that are not lookups.
	Detail string
}

func (e *ConfigurationError) Error() string {
	var sb strings.Builder
	sb.WriteString(prefix(e.Package, e.Stage))
	if e.What != "" {
		fmt.Fprintf(&sb, "%s not found", e.What)
	} else {
		sb.WriteString("invalid build configuration")
	}
	if e.Pattern != "" {
		fmt.Fprintf(&sb, " (expected %s)", e.Pattern)
	}
	if e.Detail != "" {
		fmt.Fprintf(&sb, ": %s", e.Detail)
	}
	if len(e.Searched) > 0 {
		fmt.Fprintf(&sb, "; searched: %s", strings.Join(e.Searched, ", "))
	} else if e.What != "" {
		sb.WriteString("; searched: no dependency roots supplied")
	}
	return sb.String()
}

// PhaseFailure reports a phase that exited non-zero. Remaining phases are
// not run.
type PhaseFailure struct {
	Package  string
	Stage    string
	Phase    string
	ExitCode int
	Err      error
}

func (e *PhaseFailure) Error() string {
	msg := fmt.Sprintf("%sphase %s failed with exit status %d", prefix(e.Package, e.Stage), e.Phase, e.ExitCode)
	if e.Err != nil && e.ExitCode < 0 {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PhaseFailure) Unwrap() error { return e.Err }

// VerificationFailure reports an output tree that failed verification after
// every phase succeeded, most commonly an empty destination.
type VerificationFailure struct {
	Package string
	Stage   string
	Dest    string
	Reason  string
}

func (e *VerificationFailure) Error() string {
	return fmt.Sprintf("%soutput verification failed for %s: %s", prefix(e.Package, e.Stage), e.Dest, e.Reason)
}

// Finding is one contamination finding on an installed binary.
type Finding struct {
	BinaryPath string `json:"binaryPath"`
	Reason     string `json:"reason"`
}

// ContaminationError is returned when strict contamination checking is
// enabled and the scan produced findings. In advisory mode findings are only
// logged as warnings.
type ContaminationError struct {
	Package  string
	Stage    string
	Findings []Finding
}

func (e *ContaminationError) Error() string {
	msg := fmt.Sprintf("%s%d host contamination finding(s)", prefix(e.Package, e.Stage), len(e.Findings))
	if len(e.Findings) > 0 {
		f := e.Findings[0]
		msg += fmt.Sprintf(", first: %s: %s", f.BinaryPath, f.Reason)
	}
	return msg
}

// IntegrityError reports a checksum or signature mismatch from one backend.
// Fetching continues with the next backend.
type IntegrityError struct {
	Package  string
	Source   string
	Backend  string
	Kind     string // "checksum" or "signature"
	Expected string
	Actual   string
	Err      error
}

func (e *IntegrityError) Error() string {
	var sb strings.Builder
	if e.Package != "" {
		fmt.Fprintf(&sb, "%s: ", e.Package)
	}
	fmt.Fprintf(&sb, "%s mismatch for %s", e.Kind, e.Source)
	if e.Backend != "" {
		fmt.Fprintf(&sb, " from %s", e.Backend)
	}
	if e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(&sb, ":\n  expected: %s\n  actual:   %s", e.Expected, e.Actual)
	} else if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// Attribute fills in the package identity and stage on any taxonomy error in
// err's chain that does not carry them yet.
func Attribute(err error, pkg, stage string) error {
	if err == nil {
		return nil
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		fill(&ce.Package, pkg)
		fill(&ce.Stage, stage)
	}
	var pf *PhaseFailure
	if errors.As(err, &pf) {
		fill(&pf.Package, pkg)
		fill(&pf.Stage, stage)
	}
	var vf *VerificationFailure
	if errors.As(err, &vf) {
		fill(&vf.Package, pkg)
		fill(&vf.Stage, stage)
	}
	var cf *ContaminationError
	if errors.As(err, &cf) {
		fill(&cf.Package, pkg)
		fill(&cf.Stage, stage)
	}
	var ie *IntegrityError
	if errors.As(err, &ie) {
		fill(&ie.Package, pkg)
	}
	return err
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func prefix(pkg, stage string) string {
	switch {
	case pkg != "" && stage != "":
		return fmt.Sprintf("%s [%s]: ", pkg, stage)
	case pkg != "":
		return pkg + ": "
	case stage != "":
		return "[" + stage + "]: "
	}
	return ""
}
