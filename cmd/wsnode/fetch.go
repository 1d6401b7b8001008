package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/ws-nodes/pkg/cancel"
	"github.com/Sternrassler/ws-nodes/pkg/logging"
	"github.com/Sternrassler/ws-nodes/pkg/table"
)

func newFetchCommand(opts *globalOptions) *cobra.Command {
	var inputPath, outputPath string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run the configured node over JSON input rows",
		Long: `Reads an array of JSON objects as input rows, runs the configured paged
method once per row and writes the merged result as a JSON array.
Interrupting the command cancels the execution.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			in, err := readInput(inputPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			env, err := newEnvironment(ctx, opts.configPath, opts.redisAddr)
			if err != nil {
				return err
			}
			defer env.Close()

			n, err := env.node()
			if err != nil {
				return err
			}

			exec := cancel.FromContext(ctx, logging.NewLogger("wsnode"))
			res, err := n.Execute(ctx, exec, in)
			if err != nil {
				return err
			}

			return writeResult(res, outputPath, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "Input rows as a JSON array (- for stdin)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "-", "Result file (- for stdout)")

	return cmd
}

func readInput(path string, stdin io.Reader) (*table.Memory, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return table.DecodeJSON(data)
}

func writeResult(res *table.Result, path string, stdout io.Writer) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')

	if path == "" || path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
