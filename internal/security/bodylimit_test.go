package security

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tours/internal/common"
)

func echoBody(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, _ = w.Write(data)
	})
}

func TestBodyLimit(t *testing.T) {
	cases := []struct {
		name          string
		max           int64
		body          string
		contentLength int64
		wantStatus    int
	}{
		{name: "within limit", max: 16, body: `{"items":[]}`, contentLength: 12, wantStatus: http.StatusOK},
		{name: "exactly at limit", max: 5, body: "hello", contentLength: 5, wantStatus: http.StatusOK},
		{name: "declared length over limit", max: 5, body: "tiny", contentLength: 4096, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "chunked body over limit", max: 5, body: "a webhook payload", contentLength: -1, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "disabled", max: 0, body: strings.Repeat("x", 64), contentLength: 64, wantStatus: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(tc.body))
			req.ContentLength = tc.contentLength
			rr := httptest.NewRecorder()
			BodyLimit{Max: tc.max}.Middleware(echoBody(t)).ServeHTTP(rr, req)

			require.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				require.Equal(t, tc.body, rr.Body.String())
				return
			}
			var body common.FailureBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, CodePayloadTooLarge, body.Code)
		})
	}
}

func TestBodyLimitRewindsForDownstreamReaders(t *testing.T) {
	var lengths []int64
	handler := BodyLimit{Max: 64}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lengths = append(lengths, r.ContentLength)
		first, _ := io.ReadAll(r.Body)
		require.Equal(t, "evt_1", string(first))
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("evt_1"))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, []int64{5}, lengths)
}
