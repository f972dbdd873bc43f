package cli

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/deprank/internal/api"
)

const shutdownTimeout = 30 * time.Second

// serveCommand creates the serve command, which runs the REST API.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and resume persisted workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return c.serve(cmd.Context(), cfg.Server.Addr, func(ctx context.Context) (*runtime, error) {
				return c.newRuntime(ctx, cfg, backend{})
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// serve runs the API until ctx is cancelled, then shuts down the server
// before the engine so in-flight requests still see a live engine.
func (c *CLI) serve(ctx context.Context, addr string, open func(context.Context) (*runtime, error)) error {
	rt, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			c.Logger.Warn("shutdown", "err", err)
		}
	}()

	n, err := rt.Engine.Recover(ctx)
	if err != nil {
		return err
	}
	c.Logger.Debug("recovery finished", "started", n)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(rt.Engine, c.Logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	c.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
