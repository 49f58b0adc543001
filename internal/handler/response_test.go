package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/messenger/internal/model"
)

func TestHandleServiceError_WrappedAPIError(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.Join(errors.New("context"), model.NewPeerNotFoundError("p")))

	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodePeerNotFound)
}

func TestHandleServiceError_PlainError_Returns500WithoutDetails(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: connection refused"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Error("internal error details must not leak to the client")
	}
}

func TestDecodeJSON_InvalidBody_Returns400(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))

	var v struct{}
	if decodeJSON(w, req, &v) {
		t.Fatal("expected decode to fail")
	}
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidRequest)
}

func TestDecodeJSON_OversizedBody_Returns400(t *testing.T) {
	w := httptest.NewRecorder()
	big := `{"content":"` + strings.Repeat("a", maxRequestBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))

	var v sendMessageRequest
	if decodeJSON(w, req, &v) {
		t.Fatal("expected decode to fail for oversized body")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

type stubChecker struct{ err error }

func (s stubChecker) PingContext(_ context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name    string
		checker HealthChecker
		want    int
	}{
		{"no checker", nil, http.StatusOK},
		{"db up", stubChecker{}, http.StatusOK},
		{"db down", stubChecker{err: errors.New("down")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.checker)(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
