package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/ws-nodes/pkg/cancel"
	"github.com/Sternrassler/ws-nodes/pkg/client"
	"github.com/Sternrassler/ws-nodes/pkg/logging"
	"github.com/Sternrassler/ws-nodes/pkg/metrics"
	"github.com/Sternrassler/ws-nodes/pkg/node"
	"github.com/Sternrassler/ws-nodes/pkg/table"
)

// statusClientClosedRequest reports a fetch canceled by its caller.
const statusClientClosedRequest = 499

// maxInputBytes bounds the POST /fetch body.
const maxInputBytes = 32 << 20

func newServeCommand(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured node over HTTP",
		Long: `Starts an HTTP server with:
  GET  /health   liveness probe
  GET  /metrics  Prometheus metrics
  POST /fetch    runs the node over the JSON input rows in the request body

Closing a /fetch request cancels its execution.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := newEnvironment(ctx, opts.configPath, opts.redisAddr)
			if err != nil {
				return err
			}
			defer env.Close()

			n, err := env.node()
			if err != nil {
				return err
			}

			return serve(ctx, addr, newServer(n))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")

	return cmd
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	logger := logging.NewLogger("wsnode")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Starting web service node server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type server struct {
	node   *node.Node
	logger zerolog.Logger
}

func newServer(n *node.Node) http.Handler {
	s := &server{node: n, logger: logging.NewLogger("wsnode")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /fetch", s.fetchHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) fetchHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxInputBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	in, err := table.DecodeJSON(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	res, err := s.node.Execute(ctx, cancel.FromContext(ctx, s.logger), in)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}

// errorStatus maps an execution error to the response status.
func errorStatus(err error) int {
	if errors.Is(err, cancel.ErrCanceled) {
		return statusClientClosedRequest
	}
	switch client.ClassOf(err) {
	case client.ErrorClassConfig:
		return http.StatusBadRequest
	case client.ErrorClassAuth, client.ErrorClassService:
		return http.StatusBadGateway
	case client.ErrorClassNetwork:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]string{"error": err.Error()}
	if class := client.ClassOf(err); class != "" {
		body["class"] = string(class)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
