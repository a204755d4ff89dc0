package webprof

import "github.com/gin-gonic/gin"

// Gin returns the middleware as a gin handler. Handlers find the trace in
// c.Request.Context().
func (m *Middleware) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.ShouldProfile(c.Request) {
			c.Next()
			return
		}

		r, trace, id, ok := m.begin(c.Writer, c.Request)
		if !ok {
			c.Next()
			return
		}

		c.Request = r

		defer m.finish(r, trace, id)

		c.Next()
	}
}
