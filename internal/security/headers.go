package security

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/cors"
)

// apiHeaders are set on every response. The API only serves JSON, so the
// content policy forbids everything.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

// Headers adds hardening headers. Strict-Transport-Security is only sent
// over TLS (directly or behind a proxy) and when HSTSMaxAge is set.
type Headers struct {
	HSTSMaxAge     time.Duration
	HSTSSubdomains bool
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	hsts := ""
	if h.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d", int64(h.HSTSMaxAge/time.Second))
		if h.HSTSSubdomains {
			hsts += "; includeSubDomains"
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		for _, kv := range apiHeaders {
			hdr.Set(kv[0], kv[1])
		}
		if hsts != "" && isHTTPS(r) {
			hdr.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// CORS builds the storefront policy. The checkout widget is embedded on
// partner sites, so an empty list or "*" allows any origin without
// credentials.
func CORS(allowed []string) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(allowed))
	for _, origin := range allowed {
		if o := strings.TrimSpace(origin); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	})
}
