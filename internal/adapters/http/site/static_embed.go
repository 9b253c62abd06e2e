package site

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// podiumFS exposes the embedded site rooted at static/.
var podiumFS fs.FS = func() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// Should never happen for a correctly embedded tree.
		return staticFS
	}
	return sub
}()

// FS returns an http.FileSystem for the embedded podium site.
func FS() http.FileSystem {
	return http.FS(podiumFS)
}
