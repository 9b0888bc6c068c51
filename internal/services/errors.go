package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStaging         = errors.New("staging error")
	ErrExternalProcess = errors.New("external process error")
	ErrPublish         = errors.New("publish error")
	ErrConfiguration   = errors.New("configuration error")
	ErrWorkspaceBusy   = errors.New("workspace busy")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStaging
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Process exit codes reported by the CLI for each failure class.
const (
	ExitOK            = 0
	ExitUnknown       = 1
	ExitConfiguration = 2
	ExitStaging       = 3
	ExitExternal      = 4
	ExitPublish       = 5
	ExitBusy          = 6
)

// ExitStatus maps a run error to the process exit code the CLI should use.
func ExitStatus(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrWorkspaceBusy):
		return ExitBusy
	case errors.Is(err, ErrExternalProcess):
		return ExitExternal
	case errors.Is(err, ErrPublish):
		return ExitPublish
	case errors.Is(err, ErrStaging):
		return ExitStaging
	default:
		return ExitUnknown
	}
}

// Category returns a short failure class name for ledger records.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrWorkspaceBusy):
		return "busy"
	case errors.Is(err, ErrExternalProcess):
		return "external_process"
	case errors.Is(err, ErrPublish):
		return "publish"
	case errors.Is(err, ErrStaging):
		return "staging"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "run failure"
	}
	return strings.Join(parts, ": ")
}
