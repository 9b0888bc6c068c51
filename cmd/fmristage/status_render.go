package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"fmristage/internal/preflight"
)

type checkStatus struct {
	label string
	color string
}

var (
	statusPass = checkStatus{label: "OK", color: "\x1b[32m"}
	statusWarn = checkStatus{label: "WARN", color: "\x1b[33m"}
	statusFail = checkStatus{label: "FAIL", color: "\x1b[31m"}
)

const ansiReset = "\x1b[0m"

// statusLabelWidth fits the longest preflight check name.
const statusLabelWidth = 28

// renderCheckLine formats one preflight result as an aligned
// "  name: [STATUS] detail" line. Failed advisory checks are warnings.
func renderCheckLine(r preflight.Result, colorize bool) string {
	status := statusFail
	switch {
	case r.Passed:
		status = statusPass
	case r.Advisory:
		status = statusWarn
	}

	line := fmt.Sprintf("  %-*s [%s]", statusLabelWidth, r.Name+":", status.label)
	if r.Detail != "" {
		line += " " + r.Detail
	}
	if colorize {
		return status.color + line + ansiReset
	}
	return line
}

func shouldColorize(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
