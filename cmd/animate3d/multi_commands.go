package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"animate3d/internal/client"
	"animate3d/internal/multiperson"
)

func newMultiCommand(ctx *commandContext) *cobra.Command {
	multiCmd := &cobra.Command{
		Use:   "multi",
		Short: "Multi-person workflow: detect persons, then bind models",
	}
	multiCmd.AddCommand(newMultiPrepareCommand(ctx))
	multiCmd.AddCommand(newMultiPersonsCommand(ctx))
	multiCmd.AddCommand(newMultiStartCommand(ctx))
	return multiCmd
}

type personView struct {
	Slot  string   `json:"slot"`
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

func (c *commandContext) printPersons(cmd *cobra.Command, detectionRID string, persons []multiperson.Person) error {
	if c.jsonOutput() {
		views := make([]personView, 0, len(persons))
		for _, p := range persons {
			files := make([]string, 0, len(p.Files))
			for _, f := range p.Files {
				files = append(files, f.URL)
			}
			views = append(views, personView{Slot: p.Slot, Name: p.Name, Files: files})
		}
		return writeJSON(cmd, map[string]any{"detection_rid": detectionRID, "persons": views})
	}
	out := cmd.OutOrStdout()
	if len(persons) == 0 {
		fmt.Fprintf(out, "Detection job %s found no persons\n", detectionRID)
		return nil
	}
	rows := make([][]string, 0, len(persons))
	for _, p := range persons {
		rows = append(rows, []string{p.Slot, p.Name, strconv.Itoa(len(p.Files))})
	}
	fmt.Fprintf(out, "Detection job %s found %d persons\n", detectionRID, len(persons))
	fmt.Fprintln(out, renderTable([]string{"Slot", "Name", "Previews"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
	fmt.Fprintf(out, "Bind models with: animate3d multi start %s --bind %s=<model-id> ...\n", detectionRID, persons[0].Slot)
	return nil
}

func newMultiPrepareCommand(ctx *commandContext) *cobra.Command {
	var wf waitFlags
	cmd := &cobra.Command{
		Use:   "prepare <video-or-url>",
		Short: "Submit a person detection job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(cl *client.Client) error {
				run, reg := newJobRun(cmd, cl, wf.blocking(cmd, ctx.config))
				rid, err := cl.PrepareMultiPersonJob(cmd.Context(), args[0], reg)
				if err != nil {
					return explainWaitError(cmd.Context(), rid, err)
				}
				if !run.delivered {
					return ctx.report(cmd, cl, rid, run, &wf)
				}
				if !run.outcome.Succeeded() {
					return jobFailed(run.outcome)
				}
				persons, err := cl.DetectedPersons(cmd.Context(), rid)
				if err != nil {
					return err
				}
				return ctx.printPersons(cmd, rid, persons)
			})
		},
	}
	cmd.Flags().BoolVar(&wf.wait, "wait", false, "Wait for detection to finish (default from jobs.blocking)")
	cmd.Flags().BoolVar(&wf.detach, "detach", false, "Return right after submission")
	return cmd
}

func newMultiPersonsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "persons <detection-rid>",
		Short: "List the persons a detection job found",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(cl *client.Client) error {
				persons, err := cl.DetectedPersons(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.printPersons(cmd, args[0], persons)
			})
		},
	}
}

func newMultiStartCommand(ctx *commandContext) *cobra.Command {
	var pf paramFlags
	var wf waitFlags
	var binds []string

	cmd := &cobra.Command{
		Use:   "start <detection-rid>",
		Short: "Bind a model to every detected person and start processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := parseBindings(binds)
			if err != nil {
				return err
			}
			p, err := pf.overrides(cmd)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, func(cl *client.Client) error {
				run, reg := newJobRun(cmd, cl, wf.blocking(cmd, ctx.config))
				rid, err := cl.StartMultiPersonJob(cmd.Context(), args[0], mapping, p, reg)
				if err != nil {
					return explainWaitError(cmd.Context(), rid, err)
				}
				return ctx.report(cmd, cl, rid, run, &wf)
			})
		},
	}
	pf.register(cmd)
	wf.register(cmd)
	cmd.Flags().StringArrayVar(&binds, "bind", nil, "Slot to model binding as slot=model-id (repeatable)")
	return cmd
}

// parseBindings turns slot=model pairs into a mapping keyed by normalized
// slot. Coverage of the detected slots is checked by the orchestrator.
func parseBindings(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one --bind slot=model-id is required")
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		slot, model, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(slot) == "" || strings.TrimSpace(model) == "" {
			return nil, fmt.Errorf("invalid binding %q: want slot=model-id", v)
		}
		key := multiperson.NormalizeSlot(slot)
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("slot %s is bound more than once", key)
		}
		out[key] = strings.TrimSpace(model)
	}
	return out, nil
}
