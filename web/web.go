package web

import (
	"embed"
	"fmt"
	"html"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed dist
var content embed.FS

// NonceFunc returns the per-request CSP nonce from the request context.
// When nil, no nonce meta tag is injected into the HTML.
type NonceFunc func(r *http.Request) string

// Gate wraps the SPA shell. It decides, per request, whether index.html is
// served or the browser is redirected elsewhere.
type Gate func(http.Handler) http.Handler

// Handler returns an http.Handler that serves the embedded SPA.
//
// Files that exist under dist are served as-is. Every other path is an SPA
// route: it passes through gate (when non-nil) before index.html is served,
// so a deep link to a page the session may not see is redirected server-side.
//
// When nonceFunc is provided, HTML responses have a
// <meta name="csp-nonce" content="..."> tag injected before </head>.
func Handler(nonceFunc NonceFunc, gate Gate) (http.Handler, error) {
	fsys, err := fs.Sub(content, "dist")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}

	indexBytes, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		return nil, fmt.Errorf("reading embedded index.html: %w", err)
	}
	indexTemplate := string(indexBytes)

	static := http.FileServer(http.FS(fsys))

	var shell http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if nonceFunc != nil {
			if nonce := nonceFunc(r); nonce != "" {
				nonceTag := `<meta name="csp-nonce" content="` + html.EscapeString(nonce) + `">`
				w.Write([]byte(strings.Replace(indexTemplate, "</head>", nonceTag+"\n  </head>", 1)))
				return
			}
		}
		w.Write(indexBytes)
	})
	if gate != nil {
		shell = gate(shell)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if cleanPath != "." && cleanPath != "index.html" {
			if info, err := fs.Stat(fsys, cleanPath); err == nil && !info.IsDir() {
				static.ServeHTTP(w, r)
				return
			}
		}

		// BrowserRouter deep-link fallback.
		shell.ServeHTTP(w, r)
	}), nil
}
