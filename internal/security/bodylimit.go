package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/noah-isme/backend-tours/internal/common"
)

// CodePayloadTooLarge is returned for bodies over the configured limit.
const CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"

var errTooLarge = errors.New("body exceeds limit")

// BodyLimit caps request bodies at Max bytes and replaces r.Body with an
// in-memory copy, so webhook verification can read the raw payload after
// the limit was enforced. Max <= 0 disables the check.
type BodyLimit struct {
	Max int64
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		payload, err := b.read(w, r)
		switch {
		case errors.Is(err, errTooLarge):
			common.Fail(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large", map[string]any{"limit_bytes": b.Max})
			return
		case err != nil:
			common.Fail(w, http.StatusBadRequest, common.CodeBadRequest, "invalid request body", nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(payload))
		r.ContentLength = int64(len(payload))
		next.ServeHTTP(w, r)
	})
}

// read trusts a declared Content-Length for early rejection and otherwise
// relies on MaxBytesReader for chunked bodies.
func (b BodyLimit) read(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.ContentLength > b.Max {
		return nil, errTooLarge
	}
	defer r.Body.Close()
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, b.Max))
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return nil, errTooLarge
	}
	return payload, err
}
