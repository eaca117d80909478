package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/seglo/internal/recognizer"
	"github.com/ayusman/seglo/internal/vector"
)

// PredictHandler classifies landmark vectors posted by clients.
type PredictHandler struct {
	classifier *recognizer.Classifier
}

// NewPredictHandler returns a handler for c. A nil classifier answers 503.
func NewPredictHandler(c *recognizer.Classifier) *PredictHandler {
	return &PredictHandler{classifier: c}
}

type predictRequest struct {
	Vector []float32 `json:"vector"`
}

// ServeHTTP handles POST /api/predict.
func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.classifier == nil {
		writeError(w, http.StatusServiceUnavailable, "No model loaded")
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	p, err := h.classifier.ClassifyVector(req.Vector)
	if err != nil {
		if errors.Is(err, vector.ErrDimensionMismatch) || errors.Is(err, vector.ErrNoHands) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Prediction failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
