package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/observability"
)

func newArtifactsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect or clear the artifacts of the latest run",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show which artifacts exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.resolve(cmd, nil)
			if err != nil {
				return err
			}
			be, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer be.close()

			all, err := be.store.List(cmd.Context())
			if err != nil {
				return err
			}
			observability.NewPrinter(cmd.OutOrStdout()).PrintArtifacts(all)
			if len(all) < len(artifacts.Names) {
				fmt.Fprintln(cmd.OutOrStdout(), "Results are incomplete; run the pipeline to produce every artifact.")
			}
			return nil
		},
	}

	var raw bool
	showCmd := &cobra.Command{
		Use:       "show <name>",
		Short:     "Print one artifact",
		Long:      "Print one artifact. Names: job_analysis, resume_optimization, company_research, optimized_resume, final_report.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: artifacts.Names,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !artifacts.IsKnown(name) {
				return fmt.Errorf("unknown artifact %q", name)
			}
			cfg, err := g.resolve(cmd, nil)
			if err != nil {
				return err
			}
			be, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer be.close()

			a, err := be.store.Get(cmd.Context(), name)
			if err != nil {
				return err
			}
			if raw {
				_, err = cmd.OutOrStdout().Write(a.Content)
				return err
			}
			printArtifact(observability.NewPrinter(cmd.OutOrStdout()), *a)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&raw, "raw", false, "Print the stored content instead of a summary")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.resolve(cmd, nil)
			if err != nil {
				return err
			}
			be, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer be.close()

			if err := be.store.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Artifacts cleared.")
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, clearCmd)
	return cmd
}
