package obs

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Pprof serves the runtime profiler. With a user set, every request needs
// matching basic auth credentials.
func Pprof(user, pass string) http.Handler {
	h := middleware.Profiler()
	user = strings.TrimSpace(user)
	if user == "" {
		return h
	}
	return middleware.BasicAuth("pprof", map[string]string{user: strings.TrimSpace(pass)})(h)
}
