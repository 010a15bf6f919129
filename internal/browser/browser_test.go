package browser

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/json/version" {
			w.Write([]byte(`{"Browser":"Chrome/120.0"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if !IsReachable(srv.URL, time.Second) {
		t.Fatalf("expected %s to be reachable", srv.URL)
	}
}

func TestIsReachableDown(t *testing.T) {
	if IsReachable("http://127.0.0.1:1", 200*time.Millisecond) {
		t.Fatal("expected unreachable endpoint to report false")
	}
}
