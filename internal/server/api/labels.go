package api

import (
	"net/http"

	"github.com/ayusman/seglo/internal/labels"
)

// LabelsHandler serves the label map.
type LabelsHandler struct {
	path string
}

// NewLabelsHandler returns a handler reading the label map at path on every request.
func NewLabelsHandler(path string) *LabelsHandler {
	return &LabelsHandler{path: path}
}

type labelResponse struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

type listLabelsResponse struct {
	Labels []labelResponse `json:"labels"`
}

// ServeHTTP handles GET /api/labels.
func (h *LabelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m, err := labels.Load(h.path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load label map")
		return
	}

	response := listLabelsResponse{Labels: make([]labelResponse, 0, len(m))}
	for _, name := range m.Names() {
		response.Labels = append(response.Labels, labelResponse{Name: name, Index: m[name]})
	}
	writeJSON(w, http.StatusOK, response)
}
