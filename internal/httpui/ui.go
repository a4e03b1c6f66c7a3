// Package httpui serves the embedded approval page.
package httpui

import (
	"embed"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
)

//go:embed dist/**
var embedded embed.FS

// Handler serves the embedded dist folder.
// - Serves real files.
// - Falls back to index.html for page routes such as /approve.
func Handler() (http.Handler, error) {
	sub, err := fs.Sub(embedded, "dist")
	if err != nil {
		return nil, err
	}

	// Ensure common types are known (some systems miss .js/.mjs/etc)
	_ = mime.AddExtensionType(".js", "application/javascript; charset=utf-8")
	_ = mime.AddExtensionType(".css", "text/css; charset=utf-8")
	_ = mime.AddExtensionType(".svg", "image/svg+xml")

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		p := path.Clean("/" + r.URL.Path)

		// API routes never fall through to the page
		if strings.HasPrefix(p, "/api/") ||
			strings.HasPrefix(p, "/relay/") ||
			p == "/pair" ||
			p == "/healthz" {
			http.NotFound(w, r)
			return
		}

		try := strings.TrimPrefix(p, "/")
		if try != "" && exists(sub, try) {
			setHeaders(w, try)
			fileServer.ServeHTTP(w, r)
			return
		}

		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		setHeaders(w, "index.html")
		fileServer.ServeHTTP(w, r2)
	}), nil
}

func exists(fsys fs.FS, name string) bool {
	f, err := fsys.Open(name)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func setHeaders(w http.ResponseWriter, name string) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".js", ".css", ".png", ".svg", ".ico":
		w.Header().Set("Cache-Control", "public, max-age=3600")
	default:
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:; style-src 'self'; script-src 'self'; connect-src 'self'; frame-ancestors 'none'")
}
