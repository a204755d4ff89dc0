package webprof

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/miniprof/profiling"
	"github.com/sarchlab/miniprof/tracestore"
	"go.uber.org/mock/gomock"
)

type recordingHook struct {
	ctxs []profiling.HookCtx
}

func (h *recordingHook) Func(ctx profiling.HookCtx) {
	h.ctxs = append(h.ctxs, ctx)
}

func dbHandler(seenID *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seenID != nil {
			*seenID, _ = RequestIDFromContext(r.Context())
		}

		step := profiling.StartStep(r.Context(), "db", "select users")
		Expect(step.Close()).To(Succeed())

		w.WriteHeader(http.StatusOK)
	})
}

var _ = Describe("Middleware", func() {
	var (
		ctx      context.Context
		profiler *profiling.Profiler
		store    *tracestore.MemoryStore
		builder  Builder
	)

	BeforeEach(func() {
		ctx = context.Background()
		profiler = profiling.MakeBuilder().Build()
		store = tracestore.NewMemoryStore(0)
		builder = MakeBuilder().WithProfiler(profiler).WithStore(store)
	})

	serve := func(h http.Handler, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		return rec
	}

	It("should profile a request and store its trace", func() {
		m, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())

		var seenID string
		res := serve(m.Wrap(dbHandler(&seenID)), "/users?page=2")

		Expect(res.Code).To(Equal(http.StatusOK))
		Expect(res.Header().Get(RequestIDHeader)).To(Equal("1"))
		Expect(seenID).To(Equal("1"))

		rec, err := store.Get(ctx, tracestore.Key("1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.RequestID).To(Equal("1"))
		Expect(rec.URL).To(Equal("/users?page=2"))
		Expect(rec.Timestamp).NotTo(BeZero())
		Expect(rec.Root.Description()).To(Equal("GET /users"))
		Expect(rec.Root.Children()).To(HaveLen(1))
		Expect(rec.Root.Children()[0].Tag()).To(Equal("db"))
	})

	It("should give every request its own id", func() {
		m, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())
		h := m.Wrap(dbHandler(nil))

		Expect(serve(h, "/a").Header().Get(RequestIDHeader)).To(Equal("1"))
		Expect(serve(h, "/b").Header().Get(RequestIDHeader)).To(Equal("2"))
		Expect(store.Len()).To(Equal(2))
	})

	It("should not profile the results path", func() {
		m, err := builder.WithResultsPath("/results/").Build()
		Expect(err).NotTo(HaveOccurred())

		res := serve(m.Wrap(dbHandler(nil)), "/results/results?ids=1")

		Expect(res.Header().Get(RequestIDHeader)).To(BeEmpty())
		Expect(store.Len()).To(BeZero())
	})

	It("should treat the results path as a whole segment", func() {
		m, err := builder.WithResultsPath("miniprof").Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(m.ShouldProfile(httptest.NewRequest("GET", "/miniprof", nil))).
			To(BeFalse())
		Expect(m.ShouldProfile(httptest.NewRequest("GET", "/miniprof/results", nil))).
			To(BeFalse())
		Expect(m.ShouldProfile(httptest.NewRequest("GET", "/miniprofile", nil))).
			To(BeTrue())
	})

	It("should refuse to mount the results at the root", func() {
		_, err := builder.WithResultsPath("/").Build()

		Expect(err).To(MatchError(ErrRootResultsPath))
	})

	It("should not profile the skipped paths", func() {
		m, err := builder.WithSkippedPaths("/metrics", " ").Build()
		Expect(err).NotTo(HaveOccurred())

		res := serve(m.Wrap(dbHandler(nil)), "/metrics")

		Expect(res.Header().Get(RequestIDHeader)).To(BeEmpty())
		Expect(store.Len()).To(BeZero())
		Expect(m.ShouldProfile(httptest.NewRequest("GET", "/metricsx", nil))).
			To(BeTrue())
	})

	It("should refuse to skip the root", func() {
		_, err := builder.WithSkippedPaths("/").Build()

		Expect(err).To(HaveOccurred())
	})

	It("should only profile the matching urls", func() {
		m, err := builder.WithURLPatterns(`^/api/`, ` `, `\.json$`).Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(m.ShouldProfile(httptest.NewRequest("GET", "/api/users", nil))).
			To(BeTrue())
		Expect(m.ShouldProfile(httptest.NewRequest("GET", "/data.json", nil))).
			To(BeTrue())
		Expect(m.ShouldProfile(httptest.NewRequest("GET", "/home", nil))).
			To(BeFalse())
	})

	It("should reject an invalid url pattern", func() {
		_, err := builder.WithURLPatterns(`([`).Build()

		Expect(err).To(HaveOccurred())
	})

	It("should require an identity service when restricted", func() {
		_, err := builder.WithPrivilegedOnly(true).Build()
		Expect(err).To(MatchError(ErrIdentityRequired))

		_, err = builder.WithAllowedIdentities("a@example.com").Build()
		Expect(err).To(MatchError(ErrIdentityRequired))
	})

	It("should panic without a store", func() {
		Expect(func() {
			_, _ = MakeBuilder().WithProfiler(profiler).Build()
		}).To(Panic())
	})

	It("should keep storing the trace when the handler panics", func() {
		m, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())

		h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profiling.StartStep(r.Context(), "db", "never closed")
			panic("boom")
		}))

		Expect(func() { serve(h, "/crash") }).To(PanicWith("boom"))

		rec, err := store.Get(ctx, tracestore.Key("1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Root.Children()).To(HaveLen(1))
		Expect(rec.Root.Children()[0].IsClosed()).To(BeTrue())
	})

	It("should store what the handler stopped itself", func() {
		m, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())

		h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := profiling.FromContext(r.Context()).Stop()
			Expect(err).NotTo(HaveOccurred())
		}))
		serve(h, "/self")

		rec, err := store.Get(ctx, tracestore.Key("1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Root.IsClosed()).To(BeTrue())
	})

	It("should profile once when wrapped twice", func() {
		m, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())

		res := serve(m.Wrap(m.Wrap(dbHandler(nil))), "/twice")

		Expect(res.Header().Get(RequestIDHeader)).To(Equal("1"))
		Expect(store.Len()).To(Equal(1))
	})

	It("should invoke the stored hook", func() {
		m, err := builder.Build()
		Expect(err).NotTo(HaveOccurred())

		hook := &recordingHook{}
		m.AcceptHook(hook)

		serve(m.Wrap(dbHandler(nil)), "/hooked")

		Expect(hook.ctxs).To(HaveLen(1))
		Expect(hook.ctxs[0].Pos).To(BeIdenticalTo(HookPosTraceStored))
		Expect(hook.ctxs[0].Item.(*tracestore.Record).RequestID).To(Equal("1"))
	})

	Context("with an identity service", func() {
		var (
			mockCtrl *gomock.Controller
			identity *MockIdentityService
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			identity = NewMockIdentityService(mockCtrl)
			builder = builder.WithIdentityService(identity)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should not profile anonymous senders", func() {
			m, err := builder.WithPrivilegedOnly(true).Build()
			Expect(err).NotTo(HaveOccurred())

			identity.EXPECT().IsAuthenticated(gomock.Any()).Return(false)

			Expect(m.ShouldProfile(httptest.NewRequest("GET", "/", nil))).
				To(BeFalse())
		})

		It("should only profile privileged senders", func() {
			m, err := builder.WithPrivilegedOnly(true).Build()
			Expect(err).NotTo(HaveOccurred())

			identity.EXPECT().IsAuthenticated(gomock.Any()).Return(true).Times(2)
			identity.EXPECT().IsPrivileged(gomock.Any()).Return(false)
			identity.EXPECT().IsPrivileged(gomock.Any()).Return(true)

			req := httptest.NewRequest("GET", "/", nil)
			Expect(m.ShouldProfile(req)).To(BeFalse())
			Expect(m.ShouldProfile(req)).To(BeTrue())
		})

		It("should only profile the allowed identities", func() {
			m, err := builder.
				WithAllowedIdentities("a@example.com", " b@example.com ", "").
				Build()
			Expect(err).NotTo(HaveOccurred())

			identity.EXPECT().IsAuthenticated(gomock.Any()).Return(true).Times(3)
			identity.EXPECT().Identity(gomock.Any()).Return("b@example.com")
			identity.EXPECT().Identity(gomock.Any()).Return("c@example.com")
			identity.EXPECT().Identity(gomock.Any()).Return("")

			req := httptest.NewRequest("GET", "/", nil)
			Expect(m.ShouldProfile(req)).To(BeTrue())
			Expect(m.ShouldProfile(req)).To(BeFalse())
			Expect(m.ShouldProfile(req)).To(BeFalse())
		})
	})

	Context("with a failing store", func() {
		var (
			mockCtrl  *gomock.Controller
			failStore *MockStore
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			failStore = NewMockStore(mockCtrl)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should serve the request and report the failure", func() {
			storeErr := errors.New("disk full")
			failStore.EXPECT().
				Put(gomock.Any(), tracestore.Key("1"), gomock.Any()).
				Return(storeErr)

			m, err := builder.WithStore(failStore).Build()
			Expect(err).NotTo(HaveOccurred())

			hook := &recordingHook{}
			m.AcceptHook(hook)

			res := serve(m.Wrap(dbHandler(nil)), "/users")

			Expect(res.Code).To(Equal(http.StatusOK))
			Expect(hook.ctxs).To(HaveLen(1))
			Expect(hook.ctxs[0].Pos).To(BeIdenticalTo(HookPosStoreFailed))
			Expect(hook.ctxs[0].Detail).To(MatchError(storeErr))
		})
	})
})

var _ = Describe("Gin", func() {
	It("should profile gin routes", func() {
		gin.SetMode(gin.TestMode)

		store := tracestore.NewMemoryStore(0)
		m, err := MakeBuilder().
			WithProfiler(profiling.MakeBuilder().Build()).
			WithStore(store).
			Build()
		Expect(err).NotTo(HaveOccurred())

		engine := gin.New()
		engine.Use(m.Gin())
		engine.GET("/ping", func(c *gin.Context) {
			step := profiling.StartStep(c.Request.Context(), "cache", "lookup")
			Expect(step.Close()).To(Succeed())
			c.String(http.StatusOK, "pong")
		})
		engine.GET("/miniprof/results", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		res := httptest.NewRecorder()
		engine.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/ping", nil))

		Expect(res.Body.String()).To(Equal("pong"))
		Expect(res.Header().Get(RequestIDHeader)).To(Equal("1"))

		rec, err := store.Get(context.Background(), tracestore.Key("1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Root.Children()[0].Tag()).To(Equal("cache"))

		res = httptest.NewRecorder()
		engine.ServeHTTP(res,
			httptest.NewRequest(http.MethodGet, "/miniprof/results", nil))

		Expect(res.Code).To(Equal(http.StatusNoContent))
		Expect(res.Header().Get(RequestIDHeader)).To(BeEmpty())
	})
})
