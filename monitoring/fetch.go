package monitoring

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sarchlab/miniprof/tracestore"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentFetches = 8

// FetchResults reads the records of the requests concurrently and presents
// them in the order of ids. Unknown requests are skipped. Store failures are
// logged and the request is skipped. The only error returned is the one of
// ctx.
func FetchResults(
	ctx context.Context,
	store tracestore.Store,
	ids []string,
	logger *slog.Logger,
) (Results, error) {
	if len(ids) == 0 {
		return Results{OK: false}, nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	found := make([]*RequestResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for i, id := range ids {
		g.Go(func() error {
			rec, err := store.Get(gctx, tracestore.Key(id))

			switch {
			case err == nil:
				rr := BuildRequestResult(id, rec)
				found[i] = &rr
			case errors.Is(err, tracestore.ErrNotFound):
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				logger.Warn("failed to read trace",
					"request_id", id,
					"error", err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Results{}, err
	}

	results := Results{OK: true, Requests: []RequestResult{}}
	for _, rr := range found {
		if rr != nil {
			results.Requests = append(results.Requests, *rr)
		}
	}

	return results, nil
}
