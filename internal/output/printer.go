// Package output renders deployment progress and results for the terminal.
//
// [Printer] writes human-oriented output with lipgloss styles. Diagnostics
// are not written here; they go through the logger.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"redeploy/internal/deploy"
	"redeploy/internal/history"
)

// Printer writes formatted output to a writer.
type Printer struct {
	out io.Writer
}

// NewPrinterWithWriter creates a [Printer] writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	return &Printer{out: w}
}

// Banner announces a run against the plan's service and working copy.
func (p *Printer) Banner(plan *deploy.Plan, stages []deploy.StageName) {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	body := fmt.Sprintf("Deploy: %s\nDir:    %s\nStages: %s", plan.Service, plan.WorkDir, strings.Join(names, " → "))
	fmt.Fprintln(p.out, headerStyle.Render(body))
	fmt.Fprintln(p.out)
}

// StageStart prints the header line for a stage. Its signature matches
// [deploy.ProgressCallback].
func (p *Printer) StageStart(index, total int, stage deploy.StageName) {
	fmt.Fprintln(p.out, stageStyle.Render(fmt.Sprintf("[%d/%d] %s", index, total, stage)))
}

// Plan lists every command a deployment would run, without running them.
func (p *Printer) Plan(plan *deploy.Plan) {
	fmt.Fprintln(p.out, headerStyle.Render(fmt.Sprintf("Plan: %s\nDir:  %s", plan.Service, plan.WorkDir)))
	for i, s := range plan.Stages {
		fmt.Fprintln(p.out, stageStyle.Render(fmt.Sprintf("[%d/%d] %s", i+1, len(plan.Stages), s.Name)))
		if s.Delay > 0 {
			fmt.Fprintf(p.out, "  %s\n", mutedStyle.Render("wait "+s.Delay.String()))
		}
		for _, c := range s.Commands {
			fmt.Fprintf(p.out, "  $ %s\n", c.String())
		}
		if s.Diagnose != nil {
			fmt.Fprintf(p.out, "  %s $ %s\n", mutedStyle.Render("on failure:"), s.Diagnose.String())
		}
	}
}

// Result prints the outcome of a run: per-stage durations, the journal tail
// when the service is unhealthy, and a final success or failure line.
func (p *Printer) Result(report *deploy.Report) {
	fmt.Fprintln(p.out)
	for _, s := range report.Stages {
		mark := successStyle.Render("✓")
		if s.Err != nil {
			mark = failureStyle.Render("✗")
		}
		fmt.Fprintf(p.out, "  %s %-8s %s\n", mark, s.Name, s.Duration.Round(time.Millisecond))
	}

	if len(report.Logs) > 0 {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, failureStyle.Render(fmt.Sprintf("Last %d log lines for %s:", len(report.Logs), report.Service)))
		// journal lines are written as captured
		for _, line := range report.Logs {
			fmt.Fprintln(p.out, line)
		}
	}

	fmt.Fprintln(p.out)
	if report.Err != nil {
		fmt.Fprintln(p.out, failureStyle.Render("✗ DEPLOY FAILED"))
		fmt.Fprintf(p.out, "  %v\n", report.Err)
	} else {
		fmt.Fprintln(p.out, successStyle.Render("✓ DEPLOY SUCCESSFUL"))
		if report.Revision != "" {
			fmt.Fprintf(p.out, "  Revision: %s\n", report.Revision)
		}
	}
	fmt.Fprintf(p.out, "  Duration: %s\n", report.Duration.Round(time.Millisecond))
}

// History prints deployment records, newest first.
func (p *Printer) History(path string, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(p.out, mutedStyle.Render("No deployments recorded in "+path))
		return
	}
	for _, r := range records {
		mark := successStyle.Render("✓")
		detail := r.Revision
		if r.Outcome != history.OutcomeSuccess {
			mark = failureStyle.Render("✗")
			detail = fmt.Sprintf("failed at %s (exit %d)", r.FailedStage, r.ExitCode)
		}
		fmt.Fprintf(p.out, "%s %s  %-12s %-8s %s\n",
			mark,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Service,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			detail,
		)
	}
}

// Error prints an error that prevented a run from starting.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.out, failureStyle.Render("Error: ")+err.Error())
}
