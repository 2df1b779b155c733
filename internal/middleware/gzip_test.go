package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type bidRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func gzipBytes(t *testing.T, p []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(p)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func gunzip(t *testing.T, p []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(p))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

func newGzipRouter(t *testing.T) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(GzipMiddleware)

	r.Post("/api/campaigns/{id}/bids", func(w http.ResponseWriter, r *http.Request) {
		var req bidRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		data, _ := json.Marshal(map[string]string{
			"campaign_id": chi.URLParam(r, "id"),
			"amount":      req.Amount,
			"currency":    req.Currency,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(testEnvelope{Success: true, Message: "bid placed", Data: data})
	})
	r.Get("/api/silent", func(http.ResponseWriter, *http.Request) {})
	r.Delete("/api/notifications", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(gzipBytes(t, []byte("campaign_ledger_bids_total 3\n")))
	})
	return r
}

func TestGzipMiddleware_JSONEnvelope(t *testing.T) {
	router := newGzipRouter(t)
	payload := []byte(`{"amount":"12.50","currency":"AC"}`)

	tests := []struct {
		name           string
		gzipRequest    bool
		acceptGzip     bool
		wantCompressed bool
	}{
		{name: "plain request, plain response", gzipRequest: false, acceptGzip: false, wantCompressed: false},
		{name: "gzipped request, plain response", gzipRequest: true, acceptGzip: false, wantCompressed: false},
		{name: "plain request, gzipped response", gzipRequest: false, acceptGzip: true, wantCompressed: true},
		{name: "gzipped request, gzipped response", gzipRequest: true, acceptGzip: true, wantCompressed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := payload
			if tt.gzipRequest {
				body = gzipBytes(t, payload)
			}
			req := httptest.NewRequest(http.MethodPost, "/api/campaigns/7/bids", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip, deflate")
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusCreated, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			raw := w.Body.Bytes()
			if tt.wantCompressed {
				assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
				assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))
				raw = gunzip(t, raw)
			} else {
				assert.Empty(t, w.Header().Get("Content-Encoding"))
			}

			var env testEnvelope
			require.NoError(t, json.Unmarshal(raw, &env))
			assert.True(t, env.Success)
			assert.Equal(t, "bid placed", env.Message)
			assert.JSONEq(t, `{"campaign_id":"7","amount":"12.50","currency":"AC"}`, string(env.Data))
		})
	}
}

func TestGzipMiddleware_InvalidGzipBody(t *testing.T) {
	router := newGzipRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/7/bids", bytes.NewBufferString(`{"amount":"1.00"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var env testEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "Bad Request", env.Error)
}

func TestGzipMiddleware_EmptyResponses(t *testing.T) {
	router := newGzipRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "handler writes nothing", method: http.MethodGet, path: "/api/silent", wantStatus: http.StatusOK},
		{name: "no content", method: http.MethodDelete, path: "/api/notifications", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Accept-Encoding", "gzip")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Empty(t, w.Header().Get("Content-Encoding"))
			assert.Zero(t, w.Body.Len(), "unexpected body bytes: %x", w.Body.Bytes())
		})
	}
}

func TestGzipMiddleware_KeepsHandlerEncoding(t *testing.T) {
	router := newGzipRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "campaign_ledger_bids_total 3\n", string(gunzip(t, w.Body.Bytes())))
}

func TestGzipMiddleware_ReusesPooledWriters(t *testing.T) {
	router := newGzipRouter(t)

	for i := 0; i < 3; i++ {
		silent := httptest.NewRequest(http.MethodGet, "/api/silent", nil)
		silent.Header.Set("Accept-Encoding", "gzip")
		router.ServeHTTP(httptest.NewRecorder(), silent)

		req := httptest.NewRequest(http.MethodPost, "/api/campaigns/9/bids", bytes.NewBufferString(`{"amount":"3.00","currency":"AC"}`))
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var env testEnvelope
		require.NoError(t, json.Unmarshal(gunzip(t, w.Body.Bytes()), &env))
		assert.True(t, env.Success)
	}
}
