package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/ws-nodes/pkg/cancel"
	"github.com/Sternrassler/ws-nodes/pkg/client"
	"github.com/Sternrassler/ws-nodes/pkg/logging"
)

func newCallCommand(opts *globalOptions) *cobra.Command {
	var (
		path   string
		method string
		params []string
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Perform a single web service call and print the response body",
		Example: `  wsnode call -c node.yaml --path compound/members/count --param smiles=CCO
  wsnode call -c node.yaml --path structure/similarity --param threshold:double=0.9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return errors.New("--path is required")
			}

			ps, err := parseParamFlags(params)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := newEnvironment(ctx, opts.configPath, opts.redisAddr)
			if err != nil {
				return err
			}
			defer env.Close()

			exec := cancel.FromContext(ctx, logging.NewLogger("wsnode"))
			res, err := cancel.Run(ctx, exec, cancel.DefaultPollInterval, func(ctx context.Context) (*client.CallResult, error) {
				return env.client.Do(ctx, client.Call{Method: method, Path: path, Params: ps})
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := out.Write(res.Body); err != nil {
				return err
			}
			_, err = out.Write([]byte("\n"))
			return err
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Method path relative to the base URL")
	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method (GET or POST)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Parameter name[:kind]=value, repeatable, sent in order")

	return cmd
}
