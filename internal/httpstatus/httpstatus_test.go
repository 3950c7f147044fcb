package httpstatus

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthzHandlerOK(t *testing.T) {
	h := healthzHandler(func() error { return nil })
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHealthzHandlerUnavailable(t *testing.T) {
	h := healthzHandler(func() error { return errors.New("libvirt connection lost") })
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestStartWithEmptyAddrIsNoop(t *testing.T) {
	s, err := Start("", nil)
	if err != nil || s != nil {
		t.Fatalf("expected nil server and nil error for empty addr, got %v %v", s, err)
	}
}
