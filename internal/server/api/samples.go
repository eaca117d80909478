package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/logging"
)

// SamplesHandler lists and deletes class directories of the dataset.
type SamplesHandler struct {
	data   *dataset.Store
	logger *zap.Logger
}

// NewSamplesHandler creates a SamplesHandler over data.
func NewSamplesHandler(data *dataset.Store, logger *zap.Logger) *SamplesHandler {
	return &SamplesHandler{data: data, logger: logging.OrNop(logger)}
}

type listSamplesResponse struct {
	Classes []dataset.ClassCount `json:"classes"`
	Total   int                  `json:"total"`
}

type deleteSamplesResponse struct {
	Deleted string `json:"deleted"`
}

// ServeHTTP handles GET /api/samples and DELETE /api/samples/{label}/{hand}.
func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/samples")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.delete(w, r, parts[0], parts[1])
}

// list handles GET /api/samples.
func (h *SamplesHandler) list(w http.ResponseWriter, r *http.Request) {
	counts, err := h.data.Counts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count samples")
		return
	}

	response := listSamplesResponse{Classes: make([]dataset.ClassCount, 0, len(counts))}
	for _, c := range counts {
		response.Classes = append(response.Classes, c)
		response.Total += c.Samples
	}
	writeJSON(w, http.StatusOK, response)
}

// delete handles DELETE /api/samples/{label}/{hand}.
func (h *SamplesHandler) delete(w http.ResponseWriter, r *http.Request, label, hand string) {
	label = labels.Normalize(label)
	if label == "" {
		writeError(w, http.StatusBadRequest, "Label is required")
		return
	}
	parsed, err := dataset.ParseHand(hand)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Hand must be left, right or both")
		return
	}

	dir, err := h.data.DeleteClass(label, parsed)
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Class not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete class")
		return
	}

	h.logger.Info("deleted class directory", zap.String("dir", dir))
	writeJSON(w, http.StatusOK, deleteSamplesResponse{Deleted: dir})
}
