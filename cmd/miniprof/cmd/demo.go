package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sarchlab/miniprof/demoapp"
	"github.com/sarchlab/miniprof/monitoring"
	"github.com/sarchlab/miniprof/profiling"
	"github.com/sarchlab/miniprof/tracestore"
	"github.com/sarchlab/miniprof/webprof"
	"github.com/spf13/cobra"
)

var (
	demoRounds int
	demoScale  time.Duration
	demoAs     string
	demoAdmin  bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Profile requests to the demo application",
	Long: `Send requests to the demo application in process, print the ` +
		`profile of every request, and print the statistics aggregated ` +
		`over all of them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}

		return s.demo(cmd)
	},
}

func init() {
	demoCmd.Flags().IntVarP(&demoRounds, "rounds", "n", 1,
		"how many times every demo path is requested")
	demoCmd.Flags().DurationVar(&demoScale, "scale", time.Millisecond,
		"duration of one unit of simulated work")
	demoCmd.Flags().StringVar(&demoAs, "as", "",
		"user that sends the requests")
	demoCmd.Flags().BoolVar(&demoAdmin, "admin", false,
		"send the requests as an administrator")
	rootCmd.AddCommand(demoCmd)
}

func (s *session) demo(cmd *cobra.Command) error {
	if demoRounds < 1 {
		return fmt.Errorf("rounds must be positive, got %d", demoRounds)
	}

	stack, err := s.buildStack()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	router := demoapp.MakeBuilder().
		WithScale(demoScale).
		Build().
		Router(stack.middleware, nil)

	ctx := cmd.Context()

	var ids []string

	for i := 0; i < demoRounds; i++ {
		for _, path := range demoapp.Paths() {
			id, err := sendDemoRequest(ctx, router, path)
			if err != nil {
				return err
			}

			if id == "" {
				s.logger.Info("request not profiled", "path", path)
				continue
			}

			ids = append(ids, id)
		}
	}

	results, err := monitoring.FetchResults(ctx, s.store, ids, s.logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if err := monitoring.WriteText(out, results); err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	summary, err := aggregateStored(ctx, s.store, ids)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(out); err != nil {
		return err
	}

	return monitoring.WriteSummary(out, summary, len(ids))
}

// sendDemoRequest serves one request and returns the ID of its profile, or
// an empty ID if the request was not profiled.
func sendDemoRequest(
	ctx context.Context,
	h http.Handler,
	path string,
) (string, error) {
	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)

	if demoAs != "" {
		req.Header.Set(demoapp.UserHeader, demoAs)
	}

	if demoAdmin {
		req.Header.Set(demoapp.AdminHeader, "true")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", path, rec.Code)
	}

	return rec.Header().Get(webprof.RequestIDHeader), nil
}

// aggregateStored aggregates the stored profiles of the requests together.
func aggregateStored(
	ctx context.Context,
	store tracestore.Store,
	ids []string,
) (profiling.Summary, error) {
	var forest []*profiling.Node

	for _, id := range ids {
		rec, err := store.Get(ctx, tracestore.Key(id))
		if err != nil {
			return profiling.Summary{}, fmt.Errorf("read trace %s: %w", id, err)
		}

		if rec.Root != nil {
			forest = append(forest, rec.Root.Children()...)
		}
	}

	return profiling.Aggregate(forest...), nil
}
