// Package static serves the browser front end.
package static

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

//go:embed public/*
var assets embed.FS

var mimeTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// Dir serves files from dir when it exists, otherwise the built-in page.
func Dir(dir string) http.Handler {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return Handler(os.DirFS(dir))
	}
	return Default()
}

// Default serves the built-in page.
func Default() http.Handler {
	public, _ := fs.Sub(assets, "public")
	return Handler(public)
}

// Handler serves fsys and falls back to index.html for paths that do not
// name a file, so client-side routes load the front end.
func Handler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqPath := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if reqPath == "" {
			reqPath = "index.html"
		}

		if info, err := fs.Stat(fsys, reqPath); err != nil || info.IsDir() {
			if _, err := fs.Stat(fsys, "index.html"); err != nil {
				http.NotFound(w, r)
				return
			}
			r.URL.Path = "/"
			reqPath = "index.html"
		}

		if mime, ok := mimeTypes[path.Ext(reqPath)]; ok {
			w.Header().Set("Content-Type", mime)
		}

		fileServer.ServeHTTP(w, r)
	})
}
