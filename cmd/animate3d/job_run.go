package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"animate3d/internal/client"
	"animate3d/internal/config"
	"animate3d/internal/download"
	"animate3d/internal/execution"
	"animate3d/internal/jobs"
	"animate3d/internal/services"
)

// waitFlags choose between waiting for a job and returning after
// submission. jobs.blocking decides when neither flag is given.
type waitFlags struct {
	wait     bool
	detach   bool
	download bool
	dir      string
}

func (w *waitFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&w.wait, "wait", false, "Wait for the job to finish (default from jobs.blocking)")
	flags.BoolVar(&w.detach, "detach", false, "Return right after submission")
	flags.BoolVar(&w.download, "download", false, "Download artifacts when the job succeeds")
	flags.StringVar(&w.dir, "dir", "", "Download directory (default download.output_dir)")
}

func (w *waitFlags) blocking(cmd *cobra.Command, cfg *config.Config) bool {
	flags := cmd.Flags()
	switch {
	case flags.Changed("detach") && w.detach:
		return false
	case flags.Changed("wait"):
		return w.wait
	case w.download:
		return true
	}
	return cfg.Jobs.Blocking
}

// jobRun records what a blocking execution delivered.
type jobRun struct {
	reporter  *progressReporter
	outcome   jobs.Outcome
	delivered bool
}

func newJobRun(cmd *cobra.Command, cl *client.Client, blocking bool) (*jobRun, execution.Registration) {
	run := &jobRun{reporter: newProgressReporter(cmd.ErrOrStderr())}
	reg := cl.DefaultRegistration()
	reg.Blocking = blocking
	if !blocking {
		return run, reg
	}
	reg.OnProgress = run.reporter.update
	reg.OnResult = func(o jobs.Outcome) {
		run.reporter.finish(o.RID)
		run.outcome = o
		run.delivered = true
	}
	return run, reg
}

// report prints the result of a submission and downloads artifacts when
// asked. A failed job is returned as an error so the exit status reflects it.
func (c *commandContext) report(cmd *cobra.Command, cl *client.Client, rid string, run *jobRun, w *waitFlags) error {
	if !run.delivered {
		if c.jsonOutput() {
			return writeJSON(cmd, map[string]string{"rid": rid})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s\n", rid)
		fmt.Fprintf(cmd.OutOrStdout(), "Track it with: animate3d job wait %s\n", rid)
		return nil
	}

	var files []download.File
	if run.outcome.Succeeded() && w.download {
		var err error
		files, err = cl.DownloadJob(cmd.Context(), rid, w.dir)
		if err != nil {
			return err
		}
	}
	if c.jsonOutput() {
		if err := writeJSON(cmd, newOutcomeView(run.outcome, files)); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, outcomeLine(run.outcome))
		if len(files) > 0 {
			fmt.Fprintln(out, renderFiles(files))
		}
	}
	if !run.outcome.Succeeded() {
		return jobFailed(run.outcome)
	}
	return nil
}

func jobFailed(o jobs.Outcome) error {
	if o.Error == nil {
		return fmt.Errorf("job %s did not succeed", o.RID)
	}
	return fmt.Errorf("job %s failed: %s", o.RID, o.Error.String())
}

// explainWaitError turns an interrupted or timed-out wait into guidance. The
// job itself keeps running on the service either way.
func explainWaitError(ctx context.Context, rid string, err error) error {
	if err == nil || rid == "" {
		return err
	}
	var timeout *services.TimeoutError
	switch {
	case errors.As(err, &timeout):
		return fmt.Errorf("%w; resume with `animate3d job wait %s`", err, rid)
	case ctx.Err() != nil || errors.Is(err, services.ErrCancelled):
		return fmt.Errorf("stopped waiting for job %s, which keeps running on the service; resume with `animate3d job wait %s`: %w", rid, rid, err)
	}
	return err
}

func renderFiles(files []download.File) string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{f.Path, strings.ToUpper(f.Type), formatBytes(f.Bytes)})
	}
	return renderTable([]string{"File", "Type", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight})
}
