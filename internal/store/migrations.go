package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per train invocation
		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed', 'cancelled')),
			classes INTEGER NOT NULL DEFAULT 0,
			samples INTEGER NOT NULL DEFAULT 0,
			train_samples INTEGER NOT NULL DEFAULT 0,
			test_samples INTEGER NOT NULL DEFAULT 0,
			epochs INTEGER NOT NULL DEFAULT 0,
			best_epoch INTEGER NOT NULL DEFAULT 0,
			best_val_accuracy REAL NOT NULL DEFAULT 0,
			final_val_accuracy REAL NOT NULL DEFAULT 0,
			final_loss REAL NOT NULL DEFAULT 0,
			model_path TEXT NOT NULL DEFAULT '',
			config TEXT NOT NULL DEFAULT '{}',
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,

		// Metrics of a model on the held-out split
		`CREATE TABLE IF NOT EXISTS evaluations (
			id TEXT PRIMARY KEY,
			run_id TEXT REFERENCES training_runs(id) ON DELETE CASCADE,
			model_path TEXT NOT NULL,
			samples INTEGER NOT NULL,
			accuracy REAL NOT NULL,
			macro_f1 REAL NOT NULL,
			weighted_f1 REAL NOT NULL,
			report TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		)`,

		// One row per collect invocation
		`CREATE TABLE IF NOT EXISTS collection_sessions (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			hand TEXT NOT NULL CHECK(hand IN ('left', 'right', 'both')),
			label_index INTEGER NOT NULL,
			existing INTEGER NOT NULL DEFAULT 0,
			saved INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_training_runs_started_at ON training_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_run_id ON evaluations(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_collection_sessions_label ON collection_sessions(label, hand)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
