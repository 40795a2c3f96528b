package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"animate3d/internal/client"
	"animate3d/internal/execution"
	"animate3d/internal/jobs"
	"animate3d/internal/params"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Submit and track animation jobs",
	}
	jobCmd.AddCommand(newJobSubmitCommand(ctx))
	jobCmd.AddCommand(newJobStatusCommand(ctx))
	jobCmd.AddCommand(newJobWaitCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobDownloadCommand(ctx))
	jobCmd.AddCommand(newJobRerunCommand(ctx))
	return jobCmd
}

func newJobSubmitCommand(ctx *commandContext) *cobra.Command {
	var pf paramFlags
	var wf waitFlags
	var concurrency int

	cmd := &cobra.Command{
		Use:   "submit <video-or-url>...",
		Short: "Submit single-person jobs",
		Long: `Submit one job per video. Local files are uploaded first.

With several videos the jobs run as a batch of at most --concurrency at a
time and the command waits for all of them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.overrides(cmd)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, func(cl *client.Client) error {
				if len(args) > 1 {
					return ctx.runBatch(cmd, cl, args, p, concurrency, &wf)
				}
				run, reg := newJobRun(cmd, cl, wf.blocking(cmd, ctx.config))
				rid, err := cl.StartNewJob(cmd.Context(), args[0], p, reg)
				if err != nil {
					return explainWaitError(cmd.Context(), rid, err)
				}
				return ctx.report(cmd, cl, rid, run, &wf)
			})
		},
	}
	pf.register(cmd)
	wf.register(cmd)
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Jobs running at once when submitting several videos")
	return cmd
}

func (c *commandContext) runBatch(cmd *cobra.Command, cl *client.Client, media []string, p params.ProcessParams, concurrency int, wf *waitFlags) error {
	var mu sync.Mutex
	out := cmd.OutOrStdout()
	items := cl.RunBatch(cmd.Context(), media, p, concurrency, func(item client.BatchItem) {
		if c.jsonOutput() {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch {
		case item.Err != nil:
			fmt.Fprintf(out, "%s: %v\n", item.Media, item.Err)
		case item.Outcome != nil:
			fmt.Fprintf(out, "%s: %s\n", item.Media, outcomeLine(*item.Outcome))
		}
	})

	views := make([]outcomeView, 0, len(items))
	failed := 0
	for _, item := range items {
		view := outcomeView{RID: item.RID, Media: item.Media}
		if item.Outcome != nil {
			view = newOutcomeView(*item.Outcome, nil)
			view.Media = item.Media
		}
		if item.Err != nil {
			view.Error = &errorView{Message: item.Err.Error()}
		}
		if item.Succeeded() && wf.download {
			files, err := cl.DownloadJob(cmd.Context(), item.RID, wf.dir)
			if err != nil {
				view.Error = &errorView{Message: err.Error()}
			}
			view.Files = newFileViews(files)
		}
		if !view.Succeeded || view.Error != nil {
			failed++
		}
		views = append(views, view)
	}

	if c.jsonOutput() {
		if err := writeJSON(cmd, views); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(views))
		for _, v := range views {
			result := "ok"
			if v.Error != nil {
				result = v.Error.Message
			}
			rows = append(rows, []string{v.Media, v.RID, result, strconv.Itoa(len(v.Files))})
		}
		fmt.Fprintln(out, renderTable([]string{"Media", "RID", "Result", "Files"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(views))
	}
	return nil
}

func newJobStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <rid>",
		Short: "Show the current status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(cl *client.Client) error {
				report, err := cl.GetJobStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, newStatusView(report))
				}
				if !report.Found {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s is not known to the service yet (treated as pending)\n", report.RID)
					return nil
				}
				rows := [][]string{
					{"RID", report.RID},
					{"Status", statusLabel(report.Status)},
					{"Progress", fmt.Sprintf("%d%%", report.ProgressPercent)},
					{"Remote status", report.RemoteStatus},
				}
				if report.PositionInQueue > 0 {
					rows = append(rows, []string{"Queue position", strconv.Itoa(report.PositionInQueue)})
				}
				if report.Error != nil {
					rows = append(rows, []string{"Error", report.Error.String()})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
}

func newJobWaitCommand(ctx *commandContext) *cobra.Command {
	var wf waitFlags
	cmd := &cobra.Command{
		Use:   "wait <rid>...",
		Short: "Wait for submitted jobs to finish",
		Long: `Poll one or more jobs in the background until each reaches a terminal
state. Interrupting stops polling; the jobs keep running on the service.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(cl *client.Client) error {
				return ctx.waitJobs(cmd, cl, args, &wf)
			})
		},
	}
	cmd.Flags().BoolVar(&wf.download, "download", false, "Download artifacts of jobs that succeed")
	cmd.Flags().StringVar(&wf.dir, "dir", "", "Download directory (default download.output_dir)")
	return cmd
}

func (c *commandContext) waitJobs(cmd *cobra.Command, cl *client.Client, rids []string, wf *waitFlags) error {
	reporter := newProgressReporter(cmd.ErrOrStderr())
	var mu sync.Mutex
	outcomes := make(map[string]jobs.Outcome, len(rids))
	pollErrs := make(map[string]error)

	handles := make([]*execution.Handle, 0, len(rids))
	for _, rid := range rids {
		reg := cl.DefaultRegistration()
		reg.Blocking = false
		reg.OnProgress = reporter.update
		reg.OnResult = func(o jobs.Outcome) {
			reporter.finish(o.RID)
			mu.Lock()
			outcomes[o.RID] = o
			mu.Unlock()
		}
		reg.OnError = func(err error) {
			mu.Lock()
			pollErrs[rid] = err
			mu.Unlock()
		}
		h, err := cl.TrackJob(cmd.Context(), rid, reg)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}

	for _, h := range handles {
		if err := h.Wait(cmd.Context()); err != nil && cmd.Context().Err() != nil {
			for _, other := range handles {
				cl.Cancel(other.RID())
			}
			return explainWaitError(cmd.Context(), h.RID(), err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	var problems []error
	views := make([]outcomeView, 0, len(rids))
	for _, rid := range rids {
		if err, ok := pollErrs[rid]; ok {
			problems = append(problems, fmt.Errorf("%s: %w", rid, err))
			views = append(views, outcomeView{RID: rid, Error: &errorView{Message: err.Error()}})
			continue
		}
		o := outcomes[rid]
		var files []fileView
		if o.Succeeded() && wf.download {
			downloaded, err := cl.DownloadJob(cmd.Context(), rid, wf.dir)
			if err != nil {
				problems = append(problems, err)
			}
			files = newFileViews(downloaded)
		}
		if !o.Succeeded() {
			problems = append(problems, jobFailed(o))
		}
		view := newOutcomeView(o, nil)
		view.RID = rid
		view.Files = files
		views = append(views, view)
		if !c.jsonOutput() {
			fmt.Fprintln(cmd.OutOrStdout(), outcomeLine(o))
		}
	}
	if c.jsonOutput() {
		if err := writeJSON(cmd, views); err != nil {
			return err
		}
	}
	return errors.Join(problems...)
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the account's jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []jobs.Status
			for _, part := range strings.Split(statusFilter, ",") {
				if strings.TrimSpace(part) == "" {
					continue
				}
				s, ok := jobs.ParseStatus(part)
				if !ok {
					return fmt.Errorf("unknown status %q", part)
				}
				statuses = append(statuses, s)
			}
			return ctx.withClient(cmd, func(cl *client.Client) error {
				list, err := cl.ListJobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					views := make([]summaryView, 0, len(list))
					for _, s := range list {
						views = append(views, newSummaryView(s))
					}
					return writeJSON(cmd, views)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, s := range list {
					rows = append(rows, []string{
						s.RID,
						statusLabel(s.Status),
						s.FileName,
						formatBytes(s.FileSize),
						formatSeconds(s.FileDuration),
						formatTime(s.Created),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"RID", "Status", "File", "Size", "Duration", "Created"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Comma separated statuses to include")
	return cmd
}

func newJobDownloadCommand(ctx *commandContext) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "download <rid>",
		Short: "Download the artifacts of a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(cl *client.Client) error {
				files, err := cl.DownloadJob(cmd.Context(), args[0], dir)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, newFileViews(files))
				}
				if len(files) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No artifacts to download")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderFiles(files))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Download directory (default download.output_dir)")
	return cmd
}

func newJobRerunCommand(ctx *commandContext) *cobra.Command {
	var pf paramFlags
	var wf waitFlags
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "rerun <rid>",
		Short: "Resubmit a job with changed parameters",
		Long: `Resubmit a job using its stored media and parameters. Flags override the
stored parameters; everything else is kept. The rerun gets a new RID.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := pf.overrides(cmd)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, func(cl *client.Client) error {
				if dryRun {
					effective, err := cl.EffectiveRerunParams(cmd.Context(), args[0], overrides)
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, effective)
					}
					fmt.Fprintln(cmd.OutOrStdout(), strings.Join(effective.Encode(), "\n"))
					return nil
				}
				run, reg := newJobRun(cmd, cl, wf.blocking(cmd, ctx.config))
				rid, err := cl.RerunJob(cmd.Context(), args[0], overrides, reg)
				if err != nil {
					return explainWaitError(cmd.Context(), rid, err)
				}
				return ctx.report(cmd, cl, rid, run, &wf)
			})
		},
	}
	pf.register(cmd)
	wf.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the effective parameters without submitting")
	return cmd
}
