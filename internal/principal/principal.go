// Package principal carries the caller identity KuberDock trusts from an
// upstream authentication collaborator. Session management, OIDC, and RBAC
// enforcement happen outside this module; principal only reads the headers
// that upstream is expected to set after it has done that work.
package principal

import (
	"context"
	"net/http"
	"strconv"
)

// Principal is the identity and entitlement facts a handler needs to make
// ownership and permission decisions.
type Principal struct {
	UserID     string
	Username   string
	IsAdmin    bool
	IsInternal bool
	FixedPrice bool
}

// APIVersion is the parsed `kuberdock-api-version` request header.
type APIVersion string

const (
	APIVersionV1 APIVersion = "1"
	APIVersionV2 APIVersion = "2"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	apiVersionKey
)

const (
	headerUserID     = "X-KD-User-Id"
	headerUsername   = "X-KD-Username"
	headerIsAdmin    = "X-KD-Is-Admin"
	headerIsInternal = "X-KD-Is-Internal"
	headerFixedPrice = "X-KD-Fixed-Price"
	headerAPIVersion = "kuberdock-api-version"
)

// Middleware reads the trusted upstream identity headers and the API
// version header, storing both in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := Principal{
			UserID:     r.Header.Get(headerUserID),
			Username:   r.Header.Get(headerUsername),
			IsAdmin:    boolHeader(r, headerIsAdmin),
			IsInternal: boolHeader(r, headerIsInternal),
			FixedPrice: boolHeader(r, headerFixedPrice),
		}

		ver := APIVersionV2
		if v := r.Header.Get(headerAPIVersion); v == string(APIVersionV1) {
			ver = APIVersionV1
		}

		ctx := context.WithValue(r.Context(), principalKey, &p)
		ctx = context.WithValue(ctx, apiVersionKey, ver)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func boolHeader(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.Header.Get(name))
	return b
}

// FromContext returns the Principal stored by Middleware, or the zero value
// (anonymous, unprivileged) if none is present.
func FromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey).(*Principal); ok {
		return p
	}
	return &Principal{}
}

// APIVersionFromContext returns the parsed API version, defaulting to v2.
func APIVersionFromContext(ctx context.Context) APIVersion {
	if v, ok := ctx.Value(apiVersionKey).(APIVersion); ok {
		return v
	}
	return APIVersionV2
}

// Owns reports whether the principal owns a resource belonging to ownerID,
// or is an admin (who may act on any resource).
func (p *Principal) Owns(ownerID string) bool {
	return p.IsAdmin || p.UserID == ownerID
}
