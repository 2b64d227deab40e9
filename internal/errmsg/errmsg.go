// Package errmsg formats build errors for the terminal with possible causes
// and suggestions.
package errmsg

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/buckos/pkgbuild/internal/builderr"
	"github.com/buckos/pkgbuild/internal/lock"
)

// ErrorContext provides additional context for error formatting
type ErrorContext struct {
	Package string // the package being built (for suggestions)
	WorkDir string // where phase logs live
}

// Format returns a formatted error message with possible causes and suggestions.
// The context parameter is optional - pass nil for generic formatting.
func Format(err error, ctx *ErrorContext) string {
	if err == nil {
		return ""
	}

	var ce *builderr.ConfigurationError
	if errors.As(err, &ce) {
		return formatConfigurationError(ce)
	}
	var pf *builderr.PhaseFailure
	if errors.As(err, &pf) {
		return formatPhaseFailure(pf, ctx)
	}
	var vf *builderr.VerificationFailure
	if errors.As(err, &vf) {
		return formatVerificationFailure(vf)
	}
	var cf *builderr.ContaminationError
	if errors.As(err, &cf) {
		return formatContamination(cf)
	}
	var ie *builderr.IntegrityError
	if errors.As(err, &ie) {
		return formatIntegrity(err, ie)
	}
	if errors.Is(err, lock.ErrSlotsBusy) {
		return formatSlotsBusy(err)
	}

	errMsg := err.Error()

	var netErr net.Error
	if errors.As(err, &netErr) {
		return formatNetworkError(netErr)
	}
	if isNetworkError(errMsg) {
		return formatGenericNetworkError(errMsg)
	}
	if isPermissionError(errMsg) {
		return formatPermissionError(errMsg)
	}

	return errMsg
}

// Fprint writes the formatted error to w, prefixed with "Error: ".
func Fprint(w io.Writer, err error, ctx *ErrorContext) {
	if err == nil {
		return
	}
	msg := strings.TrimRight(Format(err, ctx), "\n")
	_, _ = fmt.Fprintf(w, "Error: %s\n", msg)
}

func formatConfigurationError(err *builderr.ConfigurationError) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	if err.What == "" {
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Check the request file and config.toml for the value named above\n")
		return sb.String()
	}

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - A dependency root that should provide it is missing from --root\n")
	sb.WriteString("  - The previous stage did not install it where expected\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Run 'pkgbuild detect --stage <stage> --root <dir>...' to see what was found\n")
	if err.Pattern != "" {
		sb.WriteString(fmt.Sprintf("  - Make sure a root contains a file matching %s\n", err.Pattern))
	}
	return sb.String()
}

func formatPhaseFailure(err *builderr.PhaseFailure, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nSuggestions:\n")
	if ctx != nil && ctx.WorkDir != "" {
		sb.WriteString(fmt.Sprintf("  - Read %s/logs/%s.log for the full output\n", ctx.WorkDir, err.Phase))
	} else {
		sb.WriteString(fmt.Sprintf("  - Read <work_dir>/logs/%s.log for the full output\n", err.Phase))
	}
	sb.WriteString("  - Run 'pkgbuild env <request>' to inspect the environment the phase saw\n")
	if err.ExitCode < 0 {
		sb.WriteString("  - The program could not be started; check that it exists on the composed PATH\n")
	}
	return sb.String()
}

func formatVerificationFailure(err *builderr.VerificationFailure) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The install phase ignored DESTDIR\n")
	sb.WriteString("  - The install phase is missing from the request\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Pass DESTDIR=\"$DESTDIR\" to the install command\n")
	return sb.String()
}

func formatContamination(err *builderr.ContaminationError) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	if len(err.Findings) > 1 {
		sb.WriteString("\nFindings:\n")
		for _, f := range err.Findings {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.BinaryPath, f.Reason))
		}
	}

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check that configure did not pick up host libraries or an rpath\n")
	sb.WriteString("  - Set PKGBUILD_CONTAMINATION=advisory to report findings without failing\n")
	return sb.String()
}

func formatIntegrity(err error, ie *builderr.IntegrityError) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	if ie.Kind == "signature" {
		sb.WriteString("  - The signing key does not match the one in the request\n")
		sb.WriteString("  - The signature file belongs to another release\n")
	} else {
		sb.WriteString("  - A mirror holds a different or truncated file\n")
		sb.WriteString("  - The checksum in the request is out of date\n")
	}

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Compare the checksum with the upstream release announcement\n")
	sb.WriteString("  - Remove the file from $PKGBUILD_HOME/distfiles and fetch again\n")
	return sb.String()
}

func formatSlotsBusy(err error) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Run 'pkgbuild locks' to see who holds the download slots\n")
	sb.WriteString("  - Run 'pkgbuild locks --cleanup' to release slots of exited processes\n")
	return sb.String()
}

func formatNetworkError(err net.Error) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	if err.Timeout() {
		sb.WriteString("  - Request timed out\n")
		sb.WriteString("  - Slow or unstable network connection\n")
	} else {
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - DNS resolution failure\n")
	}

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Configure a vendor_dir or mirror_url for offline builds\n")
	return sb.String()
}

func formatGenericNetworkError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Network connectivity issue\n")
	sb.WriteString("  - Service temporarily unavailable\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	return sb.String()
}

func formatPermissionError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Insufficient permissions on $PKGBUILD_HOME or the destination\n")
	sb.WriteString("  - File or directory owned by different user\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Ensure you own the pkgbuild directories: ls -la ~/.pkgbuild\n")
	return sb.String()
}

// isNetworkError checks if the error message indicates a network issue
func isNetworkError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "dial tcp") ||
		strings.Contains(lower, "i/o timeout")
}

// isPermissionError checks if the error message indicates a permission issue
func isPermissionError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "operation not permitted")
}
