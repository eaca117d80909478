package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a training run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one training invocation.
type Run struct {
	ID               string          `json:"id"`
	Status           RunStatus       `json:"status"`
	Classes          int             `json:"classes"`
	Samples          int             `json:"samples"`
	TrainSamples     int             `json:"train_samples"`
	TestSamples      int             `json:"test_samples"`
	Epochs           int             `json:"epochs"`
	BestEpoch        int             `json:"best_epoch"`
	BestValAccuracy  float64         `json:"best_val_accuracy"`
	FinalValAccuracy float64         `json:"final_val_accuracy"`
	FinalLoss        float64         `json:"final_loss"`
	ModelPath        string          `json:"model_path"`
	Config           json.RawMessage `json:"config"`
	Error            string          `json:"error,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
}

// RunRepository provides access to training runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the training run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

const runColumns = `id, status, classes, samples, train_samples, test_samples, epochs,
	best_epoch, best_val_accuracy, final_val_accuracy, final_loss, model_path, config, error,
	started_at, finished_at`

// Create inserts r, assigning an ID and start time when unset.
func (r *RunRepository) Create(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	if len(run.Config) == 0 {
		run.Config = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO training_runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.Classes, run.Samples, run.TrainSamples, run.TestSamples, run.Epochs,
		run.BestEpoch, run.BestValAccuracy, run.FinalValAccuracy, run.FinalLoss, run.ModelPath, string(run.Config), run.Error,
		run.StartedAt, nullTime(run.FinishedAt),
	)
	return err
}

// Update writes every mutable field of run.
func (r *RunRepository) Update(run *Run) error {
	res, err := r.db.Exec(
		`UPDATE training_runs SET status = ?, classes = ?, samples = ?, train_samples = ?, test_samples = ?,
		 epochs = ?, best_epoch = ?, best_val_accuracy = ?, final_val_accuracy = ?, final_loss = ?,
		 model_path = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), run.Classes, run.Samples, run.TrainSamples, run.TestSamples,
		run.Epochs, run.BestEpoch, run.BestValAccuracy, run.FinalValAccuracy, run.FinalLoss,
		run.ModelPath, run.Error, nullTime(run.FinishedAt), run.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// Finish marks run as ended with status and persists it.
func (r *RunRepository) Finish(run *Run, status RunStatus, runErr error) error {
	now := time.Now()
	run.Status = status
	run.FinishedAt = &now
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return r.Update(run)
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	return scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM training_runs WHERE id = ?`, id))
}

// Latest returns the most recently started run.
func (r *RunRepository) Latest() (*Run, error) {
	return scanRun(r.db.QueryRow(`SELECT ` + runColumns + ` FROM training_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`))
}

// LatestCompleted returns the most recent run that finished successfully.
func (r *RunRepository) LatestCompleted() (*Run, error) {
	return scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM training_runs WHERE status = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, string(RunCompleted)))
}

// List returns runs, newest first. limit <= 0 returns all.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Delete removes a run and its evaluations.
func (r *RunRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM training_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var status, config string
	var finished sql.NullTime

	err := row.Scan(&run.ID, &status, &run.Classes, &run.Samples, &run.TrainSamples, &run.TestSamples, &run.Epochs,
		&run.BestEpoch, &run.BestValAccuracy, &run.FinalValAccuracy, &run.FinalLoss, &run.ModelPath, &config, &run.Error,
		&run.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	run.Status = RunStatus(status)
	run.Config = json.RawMessage(config)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
