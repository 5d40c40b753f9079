package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aretw0/troupe"
	"github.com/aretw0/troupe/internal/adapters/file"
	"github.com/aretw0/troupe/internal/cli"
	"github.com/aretw0/troupe/internal/presentation/tui"
	"github.com/aretw0/troupe/pkg/actor"
	httpAdapter "github.com/aretw0/troupe/pkg/adapters/http"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/aretw0/troupe/pkg/observability"
	"github.com/aretw0/troupe/pkg/registry"
	"github.com/aretw0/troupe/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Serve the machines of a directory over HTTP",
	Long: `Compiles every machine file of the directory and exposes them over a JSON
API: sessions are created and advanced by posting events, watched over
Server-Sent Events and saved in the configured store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		dir := projectDir(cmd, args)
		f := cmd.Flags()
		port, _ := f.GetString("port")
		watch, _ := f.GetBool("watch")
		validate, _ := f.GetBool("validate")

		loader := file.NewLoader(dir, file.WithLogger(logger))
		reg := registry.New()
		names, err := reg.Load(loader, machine.Implementations{})
		if err != nil {
			return err
		}

		p, err := cli.OpenStore(storeConfig(cmd), logger)
		if err != nil {
			return err
		}
		defer p.Close()

		promReg := prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := observability.NewMetrics(promReg)
		hooks := observability.Combine(observability.LogHooks(logger), metrics.Hooks())

		sessions := p.Manager(
			session.WithLogger(logger),
			session.WithActorOptions(actor.WithHooks(hooks), actor.WithLogger(logger)),
		)
		opts := []httpAdapter.Option{
			httpAdapter.WithLogger(logger),
			httpAdapter.WithMetricsHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})),
		}
		if validate {
			opts = append(opts, httpAdapter.WithRequestValidation())
		}

		srv := &http.Server{
			Addr:              ":" + port,
			Handler:           httpAdapter.NewHandler(reg, sessions, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		if watch {
			go func() {
				if err := reg.Watch(ctx, loader, machine.Implementations{}, logger); err != nil {
					logger.Error("hot reload disabled", "err", err)
				}
			}()
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			tui.PrintBanner(os.Stderr, strings.TrimSpace(troupe.Version))
			fmt.Fprintf(os.Stderr, "Serving %d machines from %s on %s\n", len(names), dir, srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "\nStart shutdown... Signal: %v\n", ctx.Signal())

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}
			fmt.Fprintln(os.Stderr, "Troupe server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().Bool("watch", false, "Reload machines when their files change")
	serveCmd.Flags().Bool("validate", false, "Validate requests against the OpenAPI document")
	addStoreFlags(serveCmd.Flags())
}
