package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/seglo/internal/store"
)

// RunsHandler serves training run history.
type RunsHandler struct {
	store *store.Store
}

// NewRunsHandler creates a RunsHandler with the given store.
func NewRunsHandler(s *store.Store) *RunsHandler {
	return &RunsHandler{store: s}
}

type runResponse struct {
	*store.Run
	Evaluations []*store.Evaluation `json:"evaluations"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

// ServeHTTP handles GET /api/runs and GET /api/runs/{id}.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs"), "/")
	if id == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, id)
}

// list handles GET /api/runs?limit=n.
func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.store.Runs().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{Runs: make([]runResponse, 0, len(runs))}
	for _, run := range runs {
		evals, err := h.evaluations(run.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list evaluations")
			return
		}
		response.Runs = append(response.Runs, runResponse{Run: run, Evaluations: evals})
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/runs/{id}.
func (h *RunsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	evals, err := h.evaluations(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list evaluations")
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Evaluations: evals})
}

func (h *RunsHandler) evaluations(runID string) ([]*store.Evaluation, error) {
	evals, err := h.store.Evaluations().ListByRun(runID)
	if err != nil {
		return nil, err
	}
	if evals == nil {
		evals = []*store.Evaluation{}
	}
	return evals, nil
}
