// Package main provides the entry point for the resume_optimizer CLI and
// HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath  string
	outputDir   string
	indexDir    string
	databaseURL string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "resume_optimizer",
		Short: "Resume optimization pipeline",
		Long: `resume_optimizer analyzes a job posting against a resume, suggests optimizations,
researches the company and writes an optimized resume plus a final report.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	pf.StringVarP(&g.outputDir, "output-dir", "o", "", "Artifact directory (default \"output\")")
	pf.StringVar(&g.indexDir, "index-dir", "", "Knowledge index directory (default \".knowledge\")")
	pf.StringVar(&g.databaseURL, "db-url", "", "PostgreSQL URL for artifacts and run history (optional, defaults to DATABASE_URL env var)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Print detailed debug information")

	root.AddCommand(
		newRunCmd(g),
		newServeCmd(g),
		newArtifactsCmd(g),
		newCleanCmd(g),
		newTokenCmd(),
	)
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
