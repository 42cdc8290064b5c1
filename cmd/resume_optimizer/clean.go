package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-optimizer/internal/knowledge"
)

func newCleanCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the knowledge index and every artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.resolve(cmd, nil)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)

			index, err := knowledge.New(knowledge.Options{Dir: cfg.IndexDir, Logger: logger})
			if err != nil {
				return err
			}
			indexErr := index.Dispose()

			be, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer be.close()
			if err := be.store.ClearAll(cmd.Context()); err != nil {
				return err
			}

			if indexErr != nil {
				return indexErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Knowledge index and artifacts cleared.")
			return nil
		},
	}
}
