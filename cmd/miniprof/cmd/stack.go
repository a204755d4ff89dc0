package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sarchlab/miniprof/demoapp"
	"github.com/sarchlab/miniprof/idgen"
	"github.com/sarchlab/miniprof/metrics"
	"github.com/sarchlab/miniprof/monitoring"
	"github.com/sarchlab/miniprof/profiling"
	"github.com/sarchlab/miniprof/webprof"
)

// profilingStack is a profiler and a middleware that report to one metrics
// registry.
type profilingStack struct {
	registry   *prometheus.Registry
	profiler   *profiling.Profiler
	middleware *webprof.Middleware
}

func (s *session) buildStack() (*profilingStack, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return nil, err
	}

	ids, err := idgen.New(s.cfg.IDGeneratorKind())
	if err != nil {
		return nil, err
	}

	profiler := profiling.MakeBuilder().
		WithLogger(s.logger).
		Build()
	profiler.AcceptHook(recorder)

	b := webprof.MakeBuilder().
		WithProfiler(profiler).
		WithStore(s.store).
		WithIDGenerator(ids).
		WithResultsPath(s.cfg.Server.BasePath).
		WithSkippedPaths(monitoring.MetricsPath).
		WithURLPatterns(s.cfg.Profiler.RestrictToURLs...).
		WithPrivilegedOnly(s.cfg.Profiler.RestrictToAdmins).
		WithAllowedIdentities(s.cfg.Profiler.RestrictToUsers...).
		WithLogger(s.logger)

	if s.cfg.Profiler.RestrictToAdmins || len(s.cfg.Profiler.RestrictToUsers) > 0 {
		b = b.WithIdentityService(demoapp.HeaderIdentity{})
	}

	middleware, err := b.Build()
	if err != nil {
		return nil, err
	}

	middleware.AcceptHook(recorder)

	return &profilingStack{
		registry:   registry,
		profiler:   profiler,
		middleware: middleware,
	}, nil
}
