package main

import (
	"bytes"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// attachStatic registers static asset middleware for the built web client:
//  1. Intercepts GET/HEAD requests not under /api
//  2. If a file in the dist directory matches, serve it directly and Abort
//  3. If no match and the path looks like a client-side route, serve index.html
//  4. otherwise pass through
//
// When no built client is found on disk the middleware is not installed and
// the backend runs API-only.
func attachStatic(engine *gin.Engine) {
	distFS := resolveWebDistFS()
	if distFS == nil {
		return
	}

	fileServer := http.FileServer(http.FS(distFS))

	serveIndex := func(c *gin.Context) {
		b, err := fs.ReadFile(distFS, "index.html")
		if err != nil || len(b) == 0 {
			return
		}
		modTime := time.Now()
		if fi, statErr := fs.Stat(distFS, "index.html"); statErr == nil {
			modTime = fi.ModTime()
		}
		c.Header("Cache-Control", "no-cache")
		c.Header("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(c.Writer, c.Request, "index.html", modTime, bytes.NewReader(b))
		c.Abort()
	}

	engine.Use(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			return
		}
		p := c.Request.URL.Path
		// Let API + websocket routes fall through.
		if strings.HasPrefix(p, "/api") {
			return
		}
		if p == "/" {
			serveIndex(c)
			return
		}
		trimmed := strings.TrimPrefix(p, "/")
		if trimmed == "" {
			return
		}
		if f, err := distFS.Open(trimmed); err == nil {
			_ = f.Close()
			if fi, serr := fs.Stat(distFS, trimmed); serr == nil && fi.IsDir() {
				serveIndex(c)
				return
			}
			fileServer.ServeHTTP(c.Writer, c.Request)
			c.Abort()
			return
		}

		// SPA fallback: serve index.html for client-side routes.
		if !strings.Contains(trimmed, ".") && acceptHTML(c.Request.Header.Get("Accept")) {
			serveIndex(c)
		}
	})
}

// resolveWebDistFS finds a built web client on disk, if any.
func resolveWebDistFS() fs.FS {
	wd, err := os.Getwd()
	if err != nil {
		return nil
	}
	candidates := []string{
		filepath.Join(wd, "web", "dist"),
		filepath.Join(wd, "web"),
	}
	if dir := os.Getenv("PRISMCHAT_WEB_DIR"); dir != "" {
		candidates = append([]string{dir}, candidates...)
	}
	for _, dir := range candidates {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			dfs := os.DirFS(dir)
			if _, err := fs.Stat(dfs, "index.html"); err == nil {
				return dfs
			}
		}
	}
	return nil
}

// acceptHTML determines if the given accept header string indicates
// that the client accepts HTML content.
func acceptHTML(accept string) bool {
	// Treat missing Accept as HTML navigation.
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		p := strings.TrimSpace(strings.ToLower(part))
		if strings.HasPrefix(p, "text/html") || strings.HasPrefix(p, "application/xhtml+xml") {
			return true
		}
	}
	return false
}
