// Package monitoring serves the stored traces over HTTP, along with the
// resource usage of the process and its metrics.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sarchlab/miniprof/tracestore"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

const maxProfileDuration = 30 * time.Second

// MetricsPath is where the metrics are served when a gatherer is given.
const MetricsPath = "/metrics"

// Server serves the results of profiled requests.
type Server struct {
	store    tracestore.Store
	basePath string
	gatherer prometheus.Gatherer
	config   any
	logger   *slog.Logger
	wrap     func(http.Handler) http.Handler

	httpServer *http.Server
}

// NewServer creates a Server that reads from the store.
func NewServer(store tracestore.Store) *Server {
	return &Server{
		store:    store,
		basePath: "/miniprof/",
		logger:   slog.Default(),
	}
}

// WithBasePath sets the path prefix of the results endpoints.
func (s *Server) WithBasePath(path string) *Server {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	s.basePath = path

	return s
}

// WithMetrics exposes the gathered metrics under MetricsPath.
func (s *Server) WithMetrics(g prometheus.Gatherer) *Server {
	s.gatherer = g
	return s
}

// WithConfig exposes the running configuration. v should be a pointer.
func (s *Server) WithConfig(v any) *Server {
	s.config = v
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.logger = logger
	return s
}

// Mount sets a function that wraps the routes of the server when it starts.
// It lets an application share the listener of the results.
func (s *Server) Mount(wrap func(routes http.Handler) http.Handler) *Server {
	s.wrap = wrap
	return s
}

// BasePath returns the path prefix of the results endpoints.
func (s *Server) BasePath() string {
	return s.basePath
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc(s.basePath+"results", s.results).Methods(http.MethodGet)
	r.HandleFunc(s.basePath+"api/resource", s.listResources).
		Methods(http.MethodGet)
	r.HandleFunc(s.basePath+"api/profile", s.collectProfile).
		Methods(http.MethodGet)
	r.HandleFunc(s.basePath+"api/config", s.showConfig).
		Methods(http.MethodGet)

	if s.gatherer != nil {
		r.Handle(MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Start listens on addr and serves in the background. It returns the URL of
// the results endpoint.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}

	handler := s.Handler()
	if s.wrap != nil {
		handler = s.wrap(handler)
	}

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d%s",
		listener.Addr().(*net.TCPAddr).Port, s.basePath)

	s.logger.Info("serving profiling results", "url", url)

	go func() {
		err := s.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("results server stopped", "error", err)
		}
	}()

	return url, nil
}

// Shutdown stops a started server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) results(w http.ResponseWriter, r *http.Request) {
	ids := ParseIDs(r.URL.Query().Get("ids"))

	results, err := FetchResults(r.Context(), s.store, ids, s.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, results)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (s *Server) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.fail(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		s.fail(w, err)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

// collectProfile samples the CPU for the duration given by the "duration"
// query parameter, one second by default.
func (s *Server) collectProfile(w http.ResponseWriter, r *http.Request) {
	d := time.Second

	if v := r.URL.Query().Get("duration"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 || parsed > maxProfileDuration {
			http.Error(w, "invalid duration "+v, http.StatusBadRequest)
			return
		}

		d = parsed
	}

	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	select {
	case <-time.After(d):
	case <-r.Context().Done():
	}

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, prof)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if s.config == nil {
		http.NotFound(w, r)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(s.config)
	serializer.SetMaxDepth(4)

	w.Header().Set("Content-Type", "application/json")

	if err := serializer.Serialize(w); err != nil {
		s.logger.Warn("failed to serialize config", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Warn("monitoring request failed", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
