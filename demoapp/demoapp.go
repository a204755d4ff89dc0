// Package demoapp is a small gin application whose handlers open profiling
// steps. It shows how an application is instrumented and gives the command
// line tool something to profile.
package demoapp

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sarchlab/miniprof/profiling"
	"github.com/sarchlab/miniprof/webprof"
)

// The tags used by the handlers.
const (
	TagDB     = "db"
	TagNet    = "net"
	TagRender = "render"
)

// Work simulates an operation that takes d.
type Work func(ctx context.Context, d time.Duration)

// Sleep is the Work that waits for d or for ctx to be done.
func Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// App serves the demo routes.
type App struct {
	work  Work
	scale time.Duration
}

// Builder can build apps.
type Builder struct {
	work  Work
	scale time.Duration
}

// MakeBuilder creates a builder whose app sleeps one millisecond per unit of
// work.
func MakeBuilder() Builder {
	return Builder{
		work:  Sleep,
		scale: time.Millisecond,
	}
}

// WithWork sets how the app simulates work.
func (b Builder) WithWork(work Work) Builder {
	b.work = work
	return b
}

// WithScale sets the duration of one unit of work.
func (b Builder) WithScale(scale time.Duration) Builder {
	b.scale = scale
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.work == nil {
		panic("work must not be nil")
	}

	if b.scale < 0 {
		panic("scale must not be negative")
	}
}

// Build creates the app.
func (b Builder) Build() *App {
	b.parametersMustBeValid()

	return &App{
		work:  b.work,
		scale: b.scale,
	}
}

// Router returns a gin engine that profiles its requests with mw. Requests
// that match no demo route are passed to fallback, which may be nil.
func (a *App) Router(mw *webprof.Middleware, fallback http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if mw != nil {
		r.Use(mw.Gin())
	}

	r.GET("/users/:id", a.getUser)
	r.GET("/report", a.getReport)
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	if fallback != nil {
		r.NoRoute(gin.WrapH(fallback))
	}

	return r
}

// Paths lists requests that exercise every demo route.
func Paths() []string {
	return []string{"/users/1", "/users/2", "/report?period=week"}
}

func (a *App) step(ctx context.Context, tag, desc string, units int) {
	s := profiling.StartStep(ctx, tag, desc)
	defer s.Close()

	a.work(ctx, time.Duration(units)*a.scale)
}

func (a *App) getUser(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	a.step(ctx, TagDB, "select user "+id, 5)
	a.step(ctx, TagDB, "select roles of user "+id, 2)
	a.step(ctx, TagRender, "user profile", 1)

	c.JSON(http.StatusOK, gin.H{
		"user":    id,
		"profile": profileID(ctx),
	})
}

// getReport nests a database call inside a network call.
func (a *App) getReport(c *gin.Context) {
	ctx := c.Request.Context()
	period := c.DefaultQuery("period", "day")

	upstream := profiling.StartStep(ctx, TagNet, "fetch "+period+" figures")
	a.work(ctx, 3*a.scale)
	a.step(ctx, TagDB, "cache "+period+" figures", 5)
	upstream.Close()

	a.step(ctx, TagRender, "report", 2)

	c.JSON(http.StatusOK, gin.H{
		"period":  period,
		"profile": profileID(ctx),
	})
}

func profileID(ctx context.Context) string {
	id, _ := webprof.RequestIDFromContext(ctx)
	return id
}
