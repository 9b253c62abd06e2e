// Package site serves the embedded podium page.
package site

import (
	"context"
	"net/http"
)

// Register attaches the podium routes to mux. The page is served both at
// the root and under /podium.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	// Serve the embedded podium site at root /
	files := http.FileServer(FS())
	mux.Handle("/", files)
	mux.HandleFunc("/podium", NewPodiumHandler().HandlePodium)
}

// PodiumHandler serves the podium page by name.
type PodiumHandler struct{}

// NewPodiumHandler creates a new podium handler.
func NewPodiumHandler() *PodiumHandler {
	return &PodiumHandler{}
}

// HandlePodium handles GET /podium requests.
func (h *PodiumHandler) HandlePodium(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, podiumFS, "index.html")
}
