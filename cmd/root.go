package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Ezrahel/auto-deploy-hng/internal/config"
	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
	"github.com/Ezrahel/auto-deploy-hng/internal/pipeline"
)

var (
	cleanupMode bool
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "autodeploy",
	Short: "Deploy a dockerized project to a remote Linux server in one run",
	Long: `autodeploy collects deployment parameters interactively (or from
AUTODEPLOY_* environment variables), clones the project, provisions the
target host over SSH with Docker, Docker Compose and Nginx, transfers the
files, starts the container or compose stack, configures an Nginx reverse
proxy on port 80 and validates the result.

With --cleanup it instead tears down everything a previous deployment of
the same project left on the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVar(&cleanupMode, "cleanup", false,
		"tear down the deployment instead of creating one")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"log at debug level")
}

func run(cmd *cobra.Command, args []string) error {
	// .env in the working directory feeds the AUTODEPLOY_* overrides
	_ = godotenv.Load()

	minLevel := logger.LevelInfo
	if verbose {
		minLevel = logger.LevelDebug
	}
	log, logPath, err := logger.NewSession(".", minLevel)
	if err != nil {
		return err
	}
	log.Info("Logging this run to %s", logPath)

	cfg, err := config.NewCollector(os.Stdin, os.Stdout, log).Collect(cleanupMode)
	if err != nil {
		return logged(log, err)
	}

	return logged(log, pipeline.New(log).Run(cmd.Context(), cfg))
}

// logged announces a fatal pipeline error in the session log before it
// propagates to the process exit path.
func logged(log *logger.Logger, err error) error {
	if err == nil {
		return nil
	}
	var perr *exitcode.PipelineError
	if errors.As(err, &perr) {
		log.Error("Pipeline aborted (exit code %d): %s", perr.Code, perr.Error())
	} else {
		log.Error("Pipeline aborted: %v", err)
	}
	return err
}

// Execute runs the root command and maps pipeline failures to their stable
// exit codes.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var perr *exitcode.PipelineError
		if errors.As(err, &perr) {
			fmt.Fprintf(os.Stderr, "ERROR [exit %d]: %s\n", perr.Code, perr.Error())
			os.Exit(int(perr.Code))
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
