// Package webprof profiles HTTP requests. The middleware starts a trace for
// every request it decides to profile, hands the trace to the handlers
// through the request context, and stores the finished trace under the ID it
// reports in the response header.
package webprof

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/sarchlab/miniprof/idgen"
	"github.com/sarchlab/miniprof/profiling"
	"github.com/sarchlab/miniprof/tracestore"
)

// RequestIDHeader is the response header that carries the ID of the trace of
// the request.
const RequestIDHeader = "X-Mini-Profile-Request-Id"

// DefaultResultsPath is where the results server is mounted by default.
// Requests under it are never profiled.
const DefaultResultsPath = "/miniprof/"

// ErrIdentityRequired is returned when profiling is restricted to some users
// but no IdentityService is given.
var ErrIdentityRequired = errors.New(
	"webprof: restricted profiling requires an identity service")

// ErrRootResultsPath is returned when the results are mounted at the root,
// which would leave no request to profile.
var ErrRootResultsPath = errors.New(
	"webprof: results path must not be the root")

// A list of hook positions raised by the middleware. Item is the
// *tracestore.Record.
var (
	// HookPosTraceStored fires after a record is stored.
	HookPosTraceStored = &profiling.HookPos{Name: "TraceStored"}

	// HookPosStoreFailed fires when a record cannot be stored. Detail is the
	// error.
	HookPosStoreFailed = &profiling.HookPos{Name: "StoreFailed"}
)

type requestIDKey struct{}

// RequestIDFromContext returns the ID of the profiled request that ctx
// belongs to.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// Middleware profiles requests.
type Middleware struct {
	*profiling.HookableBase

	profiler       *profiling.Profiler
	store          tracestore.Store
	ids            idgen.Generator
	identity       IdentityService
	resultsPath    string
	skippedPaths   []string
	urlPatterns    []*regexp.Regexp
	privilegedOnly bool
	identities     map[string]bool
	logger         *slog.Logger
}

// ShouldProfile tells if the request is to be profiled.
func (m *Middleware) ShouldProfile(r *http.Request) bool {
	path := r.URL.Path

	if underPath(path, m.resultsPath) {
		return false
	}

	for _, skipped := range m.skippedPaths {
		if underPath(path, skipped) {
			return false
		}
	}

	if len(m.urlPatterns) > 0 && !m.matchesURL(path) {
		return false
	}

	if !m.restricted() {
		return true
	}

	if !m.identity.IsAuthenticated(r) {
		return false
	}

	if m.privilegedOnly {
		return m.identity.IsPrivileged(r)
	}

	return m.identities[m.identity.Identity(r)]
}

// underPath tells if path is prefix itself or lies below it. The prefix ends
// with a slash.
func underPath(path, prefix string) bool {
	return path == strings.TrimSuffix(prefix, "/") ||
		strings.HasPrefix(path, prefix)
}

// normalizePrefix gives the path a leading and a trailing slash.
func normalizePrefix(path string) string {
	path = strings.TrimSpace(path)

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	return path
}

func (m *Middleware) restricted() bool {
	return m.privilegedOnly || len(m.identities) > 0
}

func (m *Middleware) matchesURL(path string) bool {
	for _, p := range m.urlPatterns {
		if p.MatchString(path) {
			return true
		}
	}

	return false
}

// Wrap returns a handler that profiles the requests served by next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.ShouldProfile(r) {
			next.ServeHTTP(w, r)
			return
		}

		r, trace, id, ok := m.begin(w, r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		defer m.finish(r, trace, id)

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) begin(
	w http.ResponseWriter,
	r *http.Request,
) (*http.Request, *profiling.Trace, string, bool) {
	ctx, trace, err := m.profiler.StartNamed(
		r.Context(), r.Method+" "+r.URL.Path)
	if err != nil {
		m.logger.Warn("request already profiled",
			"url", requestURL(r),
			"error", err)

		return r, nil, "", false
	}

	id := m.ids.Generate()
	w.Header().Set(RequestIDHeader, id)
	ctx = context.WithValue(ctx, requestIDKey{}, id)

	return r.WithContext(ctx), trace, id, true
}

// finish stops the trace and stores it. It runs deferred, so a panic of the
// handler keeps unwinding after the record is stored.
func (m *Middleware) finish(r *http.Request, trace *profiling.Trace, id string) {
	root, err := trace.Stop()
	if err != nil {
		m.logger.Debug("trace stopped by the handler",
			"request_id", id,
			"error", err)

		root = trace.Root()
	}

	rec := &tracestore.Record{
		RequestID: id,
		URL:       requestURL(r),
		Timestamp: trace.Begin(),
		Root:      root,
	}

	ctx := context.WithoutCancel(r.Context())

	if err := m.store.Put(ctx, tracestore.Key(id), rec); err != nil {
		m.logger.Warn("failed to store trace",
			"request_id", id,
			"url", rec.URL,
			"error", err)
		m.invokeHook(HookPosStoreFailed, rec, err)

		return
	}

	m.logger.Debug("trace stored",
		"request_id", id,
		"url", rec.URL,
		"duration", root.Duration())
	m.invokeHook(HookPosTraceStored, rec, nil)
}

func (m *Middleware) invokeHook(pos *profiling.HookPos, item, detail any) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(profiling.HookCtx{
		Domain: m,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}

func requestURL(r *http.Request) string {
	url := r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	return url
}

// Builder can build middlewares.
type Builder struct {
	profiler       *profiling.Profiler
	store          tracestore.Store
	ids            idgen.Generator
	identity       IdentityService
	resultsPath    string
	skippedPaths   []string
	urlPatterns    []string
	privilegedOnly bool
	identities     []string
	logger         *slog.Logger
}

// MakeBuilder creates a builder with sequential request IDs.
func MakeBuilder() Builder {
	return Builder{
		ids:         idgen.NewSequential(),
		resultsPath: DefaultResultsPath,
	}
}

// WithProfiler sets the profiler that creates the traces.
func (b Builder) WithProfiler(p *profiling.Profiler) Builder {
	b.profiler = p
	return b
}

// WithStore sets where the finished traces go.
func (b Builder) WithStore(s tracestore.Store) Builder {
	b.store = s
	return b
}

// WithIDGenerator sets the generator of request IDs.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.ids = g
	return b
}

// WithIdentityService sets the service that identifies the senders.
func (b Builder) WithIdentityService(s IdentityService) Builder {
	b.identity = s
	return b
}

// WithResultsPath sets the path prefix that is never profiled.
func (b Builder) WithResultsPath(path string) Builder {
	b.resultsPath = path
	return b
}

// WithSkippedPaths sets more path prefixes that are never profiled, such as
// the metrics endpoint.
func (b Builder) WithSkippedPaths(paths ...string) Builder {
	b.skippedPaths = append([]string(nil), paths...)
	return b
}

// WithURLPatterns limits profiling to the paths that match any of the
// regular expressions.
func (b Builder) WithURLPatterns(patterns ...string) Builder {
	b.urlPatterns = append([]string(nil), patterns...)
	return b
}

// WithPrivilegedOnly limits profiling to privileged senders.
func (b Builder) WithPrivilegedOnly(privilegedOnly bool) Builder {
	b.privilegedOnly = privilegedOnly
	return b
}

// WithAllowedIdentities limits profiling to the senders with the given
// identities.
func (b Builder) WithAllowedIdentities(identities ...string) Builder {
	b.identities = append([]string(nil), identities...)
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.profiler == nil {
		panic("profiler is not given")
	}

	if b.store == nil {
		panic("store is not given")
	}

	if b.ids == nil {
		panic("id generator is not given")
	}
}

// Build creates the middleware. It fails if a URL pattern does not compile,
// if the results path or a skipped path is the root, or if profiling is
// restricted without an IdentityService.
func (b Builder) Build() (*Middleware, error) {
	b.parametersMustBeValid()

	m := &Middleware{
		HookableBase:   profiling.NewHookableBase(),
		profiler:       b.profiler,
		store:          b.store,
		ids:            b.ids,
		identity:       b.identity,
		resultsPath:    b.resultsPath,
		privilegedOnly: b.privilegedOnly,
		identities:     make(map[string]bool),
		logger:         b.logger,
	}

	if strings.TrimSpace(m.resultsPath) == "" {
		m.resultsPath = DefaultResultsPath
	}

	m.resultsPath = normalizePrefix(m.resultsPath)
	if m.resultsPath == "/" {
		return nil, ErrRootResultsPath
	}

	for _, p := range b.skippedPaths {
		if strings.TrimSpace(p) == "" {
			continue
		}

		p = normalizePrefix(p)
		if p == "/" {
			return nil, fmt.Errorf("skipped path %q covers every request", p)
		}

		m.skippedPaths = append(m.skippedPaths, p)
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}

	m.logger = m.logger.With("component", "webprof")

	for _, p := range b.urlPatterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile url pattern %q: %w", p, err)
		}

		m.urlPatterns = append(m.urlPatterns, re)
	}

	for _, id := range b.identities {
		id = strings.TrimSpace(id)
		if id != "" {
			m.identities[id] = true
		}
	}

	if m.restricted() && m.identity == nil {
		return nil, ErrIdentityRequired
	}

	return m, nil
}
