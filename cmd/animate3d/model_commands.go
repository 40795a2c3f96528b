package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"animate3d/internal/characters"
	"animate3d/internal/client"
)

func newModelCommand(ctx *commandContext) *cobra.Command {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Manage character models",
	}
	modelCmd.AddCommand(newModelListCommand(ctx))
	modelCmd.AddCommand(newModelUploadCommand(ctx))
	modelCmd.AddCommand(newModelDeleteCommand(ctx))
	return modelCmd
}

func newModelListCommand(ctx *commandContext) *cobra.Command {
	var opts characters.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stock and custom character models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(cl *client.Client) error {
				models, err := cl.Characters().List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, models)
				}
				if len(models) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No models")
					return nil
				}
				rows := make([][]string, 0, len(models))
				for _, m := range models {
					rows = append(rows, []string{m.ID, m.Name, yesNo(m.IsCustom()), formatTime(m.Created)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Custom", "Created"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ModelID, "id", "", "Only the model with this id")
	cmd.Flags().StringVar(&opts.Search, "search", "", "Filter by name")
	cmd.Flags().BoolVar(&opts.OnlyCustom, "custom", false, "Only custom models")
	return cmd
}

func newModelUploadCommand(ctx *commandContext) *cobra.Command {
	var opts characters.UploadOptions
	cmd := &cobra.Command{
		Use:   "upload <file-or-url>",
		Short: "Upload a custom character model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(cl *client.Client) error {
				id, err := cl.Characters().Upload(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]string{"model_id": id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored model %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "Model name (default from the file name)")
	cmd.Flags().BoolVar(&opts.CreateThumb, "thumbnail", false, "Ask the service to render a thumbnail")
	return cmd
}

func newModelDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <model-id>",
		Short: "Delete a custom character model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(cl *client.Client) error {
				count, err := cl.Characters().Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int{"deleted": count})
				}
				if count == 0 {
					return fmt.Errorf("model %s not found or not deletable", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted model %s\n", args[0])
				return nil
			})
		},
	}
}

func newAccountCommand(ctx *commandContext) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Account information",
	}
	accountCmd.AddCommand(&cobra.Command{
		Use:   "credits",
		Short: "Show the remaining credit balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(cl *client.Client) error {
				credits, err := cl.CreditBalance(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int{"credits": credits})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Credits: %d\n", credits)
				return nil
			})
		},
	})
	return accountCmd
}
