package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestHeadersOnPlainHTTP(t *testing.T) {
	rr := httptest.NewRecorder()
	Headers{HSTSMaxAge: time.Hour}.Middleware(noContent).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://tours.local/api/v1/tours/t1", nil))

	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	require.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'none'")
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersHSTS(t *testing.T) {
	mw := Headers{HSTSMaxAge: 10 * time.Minute, HSTSSubdomains: true}.Middleware(noContent)

	direct := httptest.NewRequest(http.MethodPost, "https://tours.example/api/v1/checkout", nil)
	direct.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, direct)
	require.Equal(t, "max-age=600; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))

	proxied := httptest.NewRequest(http.MethodPost, "http://tours.internal/api/v1/checkout", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	rr = httptest.NewRecorder()
	mw.ServeHTTP(rr, proxied)
	require.Equal(t, "max-age=600; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))

	rr = httptest.NewRecorder()
	Headers{}.Middleware(noContent).ServeHTTP(rr, direct)
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))
}

func preflight(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "http://localhost/api/v1/checkout", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	return req
}

func TestCORSAllowList(t *testing.T) {
	handler := CORS([]string{" https://shop.example ", ""})(noContent)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, preflight("https://shop.example"))
	require.Equal(t, "https://shop.example", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, preflight("https://malicious.example"))
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDefaultsToAnyOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost/api/v1/tours/t1", nil)
	req.Header.Set("Origin", "https://partner.example")
	rr := httptest.NewRecorder()
	CORS(nil)(noContent).ServeHTTP(rr, req)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}
