package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authTestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		path       string
		authHeader string
		wantStatus int
	}{
		{
			name:       "valid key",
			keys:       []string{"secret-key"},
			path:       "/api/v1/search",
			authHeader: "Bearer secret-key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			keys:       []string{"secret-key"},
			path:       "/api/v1/search",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			keys:       []string{"secret-key"},
			path:       "/api/v1/search",
			authHeader: "Basic secret-key",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid key",
			keys:       []string{"secret-key"},
			path:       "/api/v1/search",
			authHeader: "Bearer wrong-key",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "health exempt",
			keys:       []string{"secret-key"},
			path:       "/health",
			wantStatus: http.StatusOK,
		},
		{
			name:       "metrics exempt",
			keys:       []string{"secret-key"},
			path:       "/metrics",
			wantStatus: http.StatusOK,
		},
		{
			name:       "auth disabled",
			keys:       nil,
			path:       "/api/v1/search",
			wantStatus: http.StatusOK,
		},
		{
			name:       "blank keys treated as disabled",
			keys:       []string{"", ""},
			path:       "/api/v1/search",
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := BearerAuthMiddleware(tc.keys)(authTestHandler())

			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestBearerAuthMiddleware_MultipleKeys(t *testing.T) {
	handler := BearerAuthMiddleware([]string{"key-a", "key-b"})(authTestHandler())

	for _, key := range []string{"key-a", "key-b"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
		req.Header.Set("Authorization", "Bearer "+key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("key %q: status = %d", key, rec.Code)
		}
	}
}
