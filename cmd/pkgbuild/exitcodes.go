package main

import (
	"errors"
	"os"
	"strconv"

	"github.com/buckos/pkgbuild/internal/builderr"
)

// Exit codes for different error types.
// These enable scripts to distinguish between failure modes.
const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0

	// ExitGeneral indicates a general error
	ExitGeneral = 1

	// ExitUsage indicates invalid arguments or usage error
	ExitUsage = 2

	// ExitPhaseFailed indicates a build phase exited non-zero
	ExitPhaseFailed = 3

	// ExitConfiguration indicates a missing toolchain piece or an invalid request
	ExitConfiguration = 4

	// ExitVerifyFailed indicates the output tree failed verification
	ExitVerifyFailed = 5

	// ExitIntegrity indicates no backend produced a file with a matching hash or signature
	ExitIntegrity = 6

	// ExitContamination indicates strict contamination checking found host references
	ExitContamination = 7
)

// usageError marks bad arguments or flags.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exitError carries a status that needs no message, such as the
// pkg-config proxy forwarding the real tool's status.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "exit status " + strconv.Itoa(e.code) }

// exitCodeFor maps the build error taxonomy onto exit codes.
func exitCodeFor(err error) int {
	var (
		usage *usageError
		ce    *builderr.ConfigurationError
		pf    *builderr.PhaseFailure
		vf    *builderr.VerificationFailure
		cf    *builderr.ContaminationError
		ie    *builderr.IntegrityError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &usage):
		return ExitUsage
	case errors.As(err, &cf):
		return ExitContamination
	case errors.As(err, &vf):
		return ExitVerifyFailed
	case errors.As(err, &pf):
		return ExitPhaseFailed
	case errors.As(err, &ce):
		return ExitConfiguration
	case errors.As(err, &ie):
		return ExitIntegrity
	}
	return ExitGeneral
}

// exitWithCode exits with the specified exit code
func exitWithCode(code int) {
	os.Exit(code)
}
