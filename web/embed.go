// Package web embeds the front desk page (dist/) and serves it with
// client-side routing.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// Routes are the client-side paths the page renders itself. Anything else
// that is not an embedded asset is a 404.
var Routes = []string{"/", "/submit", "/pricing", "/admin", "/login", "/submission-success"}

// SPAHandler serves embedded assets and answers every client route with
// index.html. Paths under /api/ and /ws/ are never rewritten.
func SPAHandler() http.Handler {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: embedded dist missing: " + err.Error())
	}
	return newSPA(sub)
}

func newSPA(assets fs.FS) http.Handler {
	files := http.FileServer(http.FS(assets))
	routes := make(map[string]bool, len(Routes))
	for _, r := range Routes {
		routes[r] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/ws/") {
			http.NotFound(w, r)
			return
		}

		if routes[p] {
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeFileFS(w, r, assets, "index.html")
			return
		}

		if info, err := fs.Stat(assets, strings.TrimPrefix(p, "/")); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}
