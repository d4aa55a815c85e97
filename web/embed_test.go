package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func TestSPA(t *testing.T) {
	h := newSPA(fstest.MapFS{
		"index.html": {Data: []byte("<html>desk</html>")},
		"app.css":    {Data: []byte("body{}")},
	})

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/", http.StatusOK, "desk"},
		{"/admin", http.StatusOK, "desk"},
		{"/submission-success", http.StatusOK, "desk"},
		{"/app.css", http.StatusOK, "body{}"},
		{"/nope", http.StatusNotFound, ""},
		{"/api/typo", http.StatusNotFound, ""},
		{"/ws/other", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			if tt.body != "" && !strings.Contains(w.Body.String(), tt.body) {
				t.Errorf("body = %q, want it to contain %q", w.Body.String(), tt.body)
			}
		})
	}
}

func TestEmbeddedIndexPresent(t *testing.T) {
	w := httptest.NewRecorder()
	SPAHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pricing", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
}
