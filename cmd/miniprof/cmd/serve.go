package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/browser"
	"github.com/sarchlab/miniprof/demoapp"
	"github.com/sarchlab/miniprof/monitoring"
	"github.com/sarchlab/miniprof/tracestore"
	"github.com/spf13/cobra"
)

const (
	purgeInterval   = time.Minute
	shutdownTimeout = 5 * time.Second
)

var (
	openBrowser bool
	serveDemo   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the stored profiles over HTTP",
	Long: `Serve the stored profiles, the resource usage of the process and ` +
		`its metrics. With --demo, the demo application is served on the ` +
		`same address and its requests are profiled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("open") {
			s.cfg.Server.OpenBrowser = openBrowser
		}

		return s.serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&openBrowser, "open", false,
		"open the results page in a browser")
	serveCmd.Flags().BoolVar(&serveDemo, "demo", false,
		"serve and profile the demo application")
	rootCmd.AddCommand(serveCmd)
}

func (s *session) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := s.buildStack()
	if err != nil {
		return err
	}

	server := monitoring.NewServer(s.store).
		WithBasePath(s.cfg.Server.BasePath).
		WithMetrics(stack.registry).
		WithConfig(&s.cfg).
		WithLogger(s.logger)

	if serveDemo {
		gin.SetMode(gin.ReleaseMode)

		app := demoapp.MakeBuilder().Build()
		server.Mount(func(routes http.Handler) http.Handler {
			return app.Router(stack.middleware, routes)
		})
	}

	url, err := server.Start(s.cfg.Server.Addr)
	if err != nil {
		return err
	}

	if serveDemo {
		s.logger.Info("demo application is profiled",
			"paths", demoapp.Paths())
	}

	if s.cfg.Server.OpenBrowser {
		if err := browser.OpenURL(url + "results?ids=1"); err != nil {
			s.logger.Warn("failed to open browser", "error", err)
		}
	}

	if purger, ok := s.store.(*tracestore.SQLiteStore); ok {
		go s.purgeExpired(ctx, purger)
	}

	<-ctx.Done()

	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// purgeExpired removes the expired rows periodically. SQLite rows do not
// expire by themselves.
func (s *session) purgeExpired(ctx context.Context, store *tracestore.SQLiteStore) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				s.logger.Warn("failed to purge expired traces", "error", err)
				continue
			}

			if n > 0 {
				s.logger.Debug("purged expired traces", "count", n)
			}
		}
	}
}
