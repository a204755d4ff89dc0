package webprof

import "net/http"

// IdentityService tells who sent a request. It is only needed when profiling
// is restricted to some users.
type IdentityService interface {
	// IsAuthenticated tells if the sender of the request is logged in.
	IsAuthenticated(r *http.Request) bool

	// IsPrivileged tells if the sender is an administrator.
	IsPrivileged(r *http.Request) bool

	// Identity returns the label of the sender, such as an email address.
	Identity(r *http.Request) string
}
