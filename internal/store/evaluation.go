package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Evaluation holds the held-out metrics of one model.
type Evaluation struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id,omitempty"`
	ModelPath  string          `json:"model_path"`
	Samples    int             `json:"samples"`
	Accuracy   float64         `json:"accuracy"`
	MacroF1    float64         `json:"macro_f1"`
	WeightedF1 float64         `json:"weighted_f1"`
	Report     json.RawMessage `json:"report"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EvaluationRepository provides access to evaluations.
type EvaluationRepository struct {
	db *sql.DB
}

// Evaluations returns the evaluation repository for this store.
func (s *Store) Evaluations() *EvaluationRepository {
	return &EvaluationRepository{db: s.db}
}

// Create inserts e. An empty RunID is stored as NULL.
func (r *EvaluationRepository) Create(e *Evaluation) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if len(e.Report) == 0 {
		e.Report = json.RawMessage("{}")
	}

	var runID sql.NullString
	if e.RunID != "" {
		runID = sql.NullString{String: e.RunID, Valid: true}
	}

	_, err := r.db.Exec(
		`INSERT INTO evaluations (id, run_id, model_path, samples, accuracy, macro_f1, weighted_f1, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, runID, e.ModelPath, e.Samples, e.Accuracy, e.MacroF1, e.WeightedF1, string(e.Report), e.CreatedAt,
	)
	return err
}

// ListByRun returns the evaluations of a run, newest first.
func (r *EvaluationRepository) ListByRun(runID string) ([]*Evaluation, error) {
	return r.query(`WHERE run_id = ? ORDER BY created_at DESC, rowid DESC`, runID)
}

// List returns every evaluation, newest first.
func (r *EvaluationRepository) List() ([]*Evaluation, error) {
	return r.query(`ORDER BY created_at DESC, rowid DESC`)
}

func (r *EvaluationRepository) query(clause string, args ...any) ([]*Evaluation, error) {
	rows, err := r.db.Query(
		`SELECT id, run_id, model_path, samples, accuracy, macro_f1, weighted_f1, report, created_at
		 FROM evaluations `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evals []*Evaluation
	for rows.Next() {
		e := &Evaluation{}
		var runID sql.NullString
		var report string
		if err := rows.Scan(&e.ID, &runID, &e.ModelPath, &e.Samples, &e.Accuracy, &e.MacroF1, &e.WeightedF1, &report, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RunID = runID.String
		e.Report = json.RawMessage(report)
		evals = append(evals, e)
	}
	return evals, rows.Err()
}
