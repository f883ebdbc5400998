package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"speculum/internal/preflight"
	"speculum/internal/state"
)

type severity int

const (
	severityInfo severity = iota
	severityOK
	severityWarn
	severityError
)

var severityStyles = map[severity]struct {
	label  string
	colors text.Colors
}{
	severityInfo:  {"INFO", text.Colors{text.FgBlue}},
	severityOK:    {"OK", text.Colors{text.FgGreen}},
	severityWarn:  {"WARN", text.Colors{text.FgYellow}},
	severityError: {"ERROR", text.Colors{text.FgRed}},
}

const labelWidth = 22

// printer writes the aligned status lines used by the status command.
type printer struct {
	out      io.Writer
	colorize bool
}

func newPrinter(out io.Writer) printer {
	return printer{out: out, colorize: shouldColorize(out)}
}

func (p printer) section(title string) {
	heading := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(heading))
	if p.colorize {
		heading = text.FgBlue.Sprint(heading)
		rule = text.FgBlue.Sprint(rule)
	}
	fmt.Fprintln(p.out, heading)
	fmt.Fprintln(p.out, rule)
}

func (p printer) line(label string, sev severity, detail string) {
	style := severityStyles[sev]
	tag := "[" + style.label + "]"
	if detail != "" {
		tag += " " + detail
	}
	line := fmt.Sprintf("  %-*s %s", labelWidth, label+":", tag)
	if p.colorize {
		line = style.colors.Sprint(line)
	}
	fmt.Fprintln(p.out, line)
}

func preflightSeverity(r preflight.Result) severity {
	if r.Passed {
		return severityOK
	}
	return severityError
}

// statusSeverity highlights the buckets that need an operator.
func statusSeverity(status state.Status, count int) severity {
	switch {
	case count == 0:
		return severityInfo
	case status == state.StatusError, status == state.StatusPaused, status == state.StatusNeedsClarification:
		return severityWarn
	case status == state.StatusCompleted:
		return severityOK
	default:
		return severityInfo
	}
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
