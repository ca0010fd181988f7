package router

import (
	"net/http"
	"strings"
)

const (
	corsMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
	corsMaxAge  = "86400"
)

// corsPolicy is CORS_ALLOW_ORIGIN parsed once: "*" or a comma separated
// list of exact origins.
type corsPolicy struct {
	any         bool
	origins     map[string]struct{}
	credentials bool
}

func newCORSPolicy(allowOrigin string, allowCredentials bool) corsPolicy {
	p := corsPolicy{origins: map[string]struct{}{}, credentials: allowCredentials}
	for _, o := range strings.Split(allowOrigin, ",") {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[o] = struct{}{}
		}
	}
	if len(p.origins) == 0 {
		p.any = true
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for a request
// origin ("" for none) and whether the answer depends on that origin.
func (p corsPolicy) allowOrigin(origin string) (string, bool) {
	if p.any {
		// browsers reject "*" on credentialed requests
		if p.credentials && origin != "" {
			return origin, true
		}
		return "*", false
	}
	if _, ok := p.origins[origin]; ok {
		return origin, true
	}
	return "", true
}

// withCORS adds CORS headers and answers preflight requests.
func withCORS(allowOrigin string, allowCredentials bool) func(http.Handler) http.Handler {
	policy := newCORSPolicy(allowOrigin, allowCredentials)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			value, vary := policy.allowOrigin(r.Header.Get("Origin"))
			if value != "" {
				h.Set("Access-Control-Allow-Origin", value)
			}
			if vary {
				h.Add("Vary", "Origin")
			}
			if policy.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
