package demoapp

import (
	"net/http"
	"strconv"
)

// Headers read by HeaderIdentity.
const (
	UserHeader  = "X-Demo-User"
	AdminHeader = "X-Demo-Admin"
)

// HeaderIdentity trusts the identity stated in the request headers. It only
// suits demonstrations.
type HeaderIdentity struct{}

// IsAuthenticated tells if the request names a user.
func (HeaderIdentity) IsAuthenticated(r *http.Request) bool {
	return r.Header.Get(UserHeader) != ""
}

// IsPrivileged tells if the request claims to come from an administrator.
func (HeaderIdentity) IsPrivileged(r *http.Request) bool {
	admin, err := strconv.ParseBool(r.Header.Get(AdminHeader))
	return err == nil && admin
}

// Identity returns the user named by the request.
func (HeaderIdentity) Identity(r *http.Request) string {
	return r.Header.Get(UserHeader)
}
