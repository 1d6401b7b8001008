// Command wsnode runs paged web service nodes from the command line or as an
// HTTP service.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/ws-nodes/pkg/cancel"
	"github.com/Sternrassler/ws-nodes/pkg/logging"
)

const userAgent = "wsnode/0.1.0"

// exitCanceled is the conventional exit code after SIGINT.
const exitCanceled = 130

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, cancel.ErrCanceled) {
		return exitCanceled
	}
	return 1
}

// globalOptions are the persistent flags shared by all commands.
type globalOptions struct {
	configPath string
	logLevel   string
	pretty     bool
	redisAddr  string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "wsnode",
		Short: "Paged web service node runner",
		Long: `wsnode calls REST web services with Basic, NTLM or bearer authentication,
walks paged result sets and merges the rows for every input record.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logging.Config{
				Level:  logging.LogLevel(opts.logLevel),
				Pretty: opts.pretty,
				Output: cmd.ErrOrStderr(),
			})
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Node configuration file (YAML)")
	flags.StringVar(&opts.logLevel, "log-level", string(logging.LevelInfo), "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.pretty, "pretty", false, "Human-readable console logs")
	flags.StringVar(&opts.redisAddr, "redis", "", "Redis address of the named credential store")

	rootCmd.AddCommand(newFetchCommand(opts))
	rootCmd.AddCommand(newCallCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))

	return rootCmd
}
