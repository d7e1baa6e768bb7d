package reconcile

import (
	"fmt"
	"strings"
)

// Diff is the textual before/after package listing of a run.
type Diff struct {
	Before       string `json:"before"`
	After        string `json:"after"`
	BeforeHeader string `json:"before_header,omitempty"`
	AfterHeader  string `json:"after_header,omitempty"`
}

// Warning is a non-fatal problem attributed to one package.
type Warning struct {
	Package string `json:"package"`
	Message string `json:"message"`
}

// Result is the outcome of a run. It is not modified once returned.
type Result struct {
	Changed  bool      `json:"changed"`
	Failed   bool      `json:"failed,omitempty"`
	Msg      string    `json:"msg"`
	Count    int       `json:"count,omitempty"`
	Packages []string  `json:"packages,omitempty"`
	Diff     *Diff     `json:"diff,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// diffLines accumulates diff entries in processing order.
type diffLines struct {
	before       []string
	after        []string
	beforeHeader string
	afterHeader  string
}

func (d *diffLines) render(enabled bool) *Diff {
	if !enabled {
		return nil
	}
	return &Diff{
		Before:       joinLines(d.before),
		After:        joinLines(d.after),
		BeforeHeader: d.beforeHeader,
		AfterHeader:  d.afterHeader,
	}
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// merge combines the result of a later phase into r.
func (r Result) merge(other Result) Result {
	merged := Result{
		Changed:  r.Changed || other.Changed,
		Failed:   r.Failed || other.Failed,
		Msg:      joinMessages(r.Msg, other.Msg),
		Count:    r.Count + other.Count,
		Packages: append(append([]string(nil), r.Packages...), other.Packages...),
		Warnings: append(append([]Warning(nil), r.Warnings...), other.Warnings...),
		Diff:     r.Diff,
	}

	if other.Diff != nil {
		if merged.Diff == nil {
			merged.Diff = other.Diff
		} else {
			merged.Diff = &Diff{
				Before:       r.Diff.Before + other.Diff.Before,
				After:        r.Diff.After + other.Diff.After,
				BeforeHeader: firstNonEmpty(r.Diff.BeforeHeader, other.Diff.BeforeHeader),
				AfterHeader:  firstNonEmpty(r.Diff.AfterHeader, other.Diff.AfterHeader),
			}
		}
	}
	return merged
}

func joinMessages(msgs ...string) string {
	var parts []string
	for _, m := range msgs {
		if m = strings.TrimSpace(m); m != "" {
			parts = append(parts, m)
		}
	}
	return strings.Join(parts, "; ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// staleAdvisory describes Latest-state packages whose repository version
// could not be fetched.
func staleAdvisory(warnings []Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	names := make([]string, 0, len(warnings))
	for _, w := range warnings {
		names = append(names, w.Package)
	}
	return fmt.Sprintf("But could not ensure 'latest' state for %d package(s) as remote version could not be fetched: %s.",
		len(names), strings.Join(names, ", "))
}
