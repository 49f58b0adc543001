package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsRequest(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/api/contacts", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	handler := NewCORSMiddleware("http://localhost:3000, https://chat.example.com/")(okHandler())

	for _, origin := range []string{"http://localhost:3000", "https://chat.example.com"} {
		t.Run(origin, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, corsRequest(http.MethodGet, origin))

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			want := map[string]string{
				"Access-Control-Allow-Origin":      origin,
				"Access-Control-Allow-Credentials": "true",
				"Access-Control-Allow-Methods":     "GET, POST, PATCH, DELETE, OPTIONS",
				"Access-Control-Allow-Headers":     "Content-Type, X-CSRF-Token",
				"Vary":                             "Origin",
			}
			for k, v := range want {
				if got := w.Header().Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestCORSMiddleware_UnknownOrMissingOrigin(t *testing.T) {
	handler := NewCORSMiddleware("http://localhost:3000")(okHandler())

	for _, origin := range []string{"", "https://evil.example.com"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, corsRequest(http.MethodGet, origin))

		if w.Code != http.StatusOK {
			t.Errorf("origin %q: status = %d, want 200", origin, w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("origin %q: Allow-Origin = %q, want empty", origin, got)
		}
	}
}

func TestCORSMiddleware_Preflight_Returns204WithoutCallingNext(t *testing.T) {
	handler := NewCORSMiddleware("http://localhost:3000")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for preflight")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, corsRequest(http.MethodOptions, "http://localhost:3000"))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("Max-Age = %q", got)
	}
}

func TestParseOrigins(t *testing.T) {
	got := parseOrigins(" a , ,b/,")
	if len(got) != 2 {
		t.Fatalf("parseOrigins = %v, want 2 entries", got)
	}
	for _, o := range []string{"a", "b"} {
		if _, ok := got[o]; !ok {
			t.Errorf("missing %q", o)
		}
	}
}
