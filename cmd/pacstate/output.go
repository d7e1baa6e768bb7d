package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/fatih/color"

	"github.com/steelcutops/pacstate/pacstate/hostgroup"
	"github.com/steelcutops/pacstate/pacstate/reconcile"
)

var (
	statusOK      = color.New(color.FgGreen)
	statusChanged = color.New(color.FgYellow)
	statusFailed  = color.New(color.FgRed, color.Bold)
	warnColor     = color.New(color.FgYellow)

	diffColorAdded   = color.New(color.FgGreen)
	diffColorRemoved = color.New(color.FgRed)
	diffColorHunk    = color.New(color.FgCyan)
)

type hostReport struct {
	Host string `json:"host"`
	reconcile.Result
}

func (a *app) writeResults(results []hostgroup.HostResult) error {
	if a.flags.Output == "text" {
		for _, r := range results {
			writeText(a.out, r)
		}
		return nil
	}

	reports := make([]hostReport, 0, len(results))
	for _, r := range results {
		reports = append(reports, hostReport{Host: r.Hostname, Result: r.Result})
	}
	return writeJSON(a.out, reports)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeText(out io.Writer, r hostgroup.HostResult) {
	status := statusOK.Sprint("ok")
	switch {
	case r.Result.Failed:
		status = statusFailed.Sprint("failed")
	case r.Result.Changed:
		status = statusChanged.Sprint("changed")
	}

	fmt.Fprintf(out, "%s: [%s] %s\n", r.Hostname, status, r.Result.Msg)

	for _, w := range r.Result.Warnings {
		fmt.Fprintf(out, "  %s %s: %s\n", warnColor.Sprint("warning"), w.Package, w.Message)
	}

	if d := r.Result.Diff; d != nil && (d.Before != "" || d.After != "") {
		writeDiff(out, d)
	}
}

func writeDiff(out io.Writer, d *reconcile.Diff) {
	from := d.BeforeHeader
	if from == "" {
		from = "before"
	}
	to := d.AfterHeader
	if to == "" {
		to = "after"
	}

	unified := udiff.Unified(from, to, d.Before, d.After)
	for _, line := range strings.Split(strings.TrimRight(unified, "\n"), "\n") {
		fmt.Fprintln(out, "  "+colorizeDiffLine(line))
	}
}

func colorizeDiffLine(line string) string {
	switch {
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		return line
	case strings.HasPrefix(line, "@@"):
		return diffColorHunk.Sprint(line)
	case strings.HasPrefix(line, "+"):
		return diffColorAdded.Sprint(line)
	case strings.HasPrefix(line, "-"):
		return diffColorRemoved.Sprint(line)
	default:
		return line
	}
}
