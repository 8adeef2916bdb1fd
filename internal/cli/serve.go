package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chainsmith/chasm/internal/server"
	"github.com/chainsmith/chasm/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var (
		cors     string
		keepFork bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fork and trace service over HTTP",
		Long: `Serve the fork lifecycle and trace services so other chasm instances (and
browsers) can share one anvil fork.

Endpoints:
  GET  /fork/status          POST /fork/start     POST /fork/stop
  GET  /trace/{hash}         POST /trace/call     POST /trace/calltree
  POST /proxy                JSON-RPC relay to any http(s) node
  GET  /ws                   block and result feed
  GET  /health               GET  /metrics

Point clients at it with --service-url or 'chasm config set service.url'.`,
		Args: cobra.NoArgs,
		Annotations: map[string]string{
			annotationLogProgress: "true",
			annotationNoTimeout:   "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, session, err := getSession(cmd)
			if err != nil {
				return err
			}
			if a.Config.ServiceURL != "" {
				a.Logger.Warn("service_url is ignored while serving; the fork runs in this process", "service_url", a.Config.ServiceURL)
			}
			log := a.Logger

			srv := server.NewServer(a.ForkBackend, a.TraceBackend, server.Options{
				Dashboard:          session.Dashboard(),
				Gatherer:           a.Registry,
				Proxy:              a.Metrics,
				CORSAllowedOrigins: cors,
			}, log)
			defer srv.Close()

			httpServer := &http.Server{
				Addr:              a.Config.ListenAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				usecase.NewMonitor(session, a.Config.PollInterval, log).Run(ctx)
				return nil
			})
			g.Go(func() error {
				log.Info("starting HTTP server", "addr", a.Config.ListenAddr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("HTTP server failed: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				log.Info("shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if !keepFork {
					if err := a.ForkBackend.Stop(shutdownCtx); err != nil {
						log.Warn("failed to stop fork", "error", err)
					}
				}
				return httpServer.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().String("listen", "", "Address to listen on (default 127.0.0.1:3001)")
	cmd.Flags().StringVar(&cors, "cors-origins", "", `Comma separated allowed origins; empty or "*" allows all`)
	cmd.Flags().BoolVar(&keepFork, "keep-fork", false, "Leave the fork running on shutdown")
	cmd.Flags().Int("anvil-port", 0, "Port the fork listens on (default 8546)")

	return cmd
}
