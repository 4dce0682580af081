package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - calibration overrides as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Transitions table - every lit/unlit change of the candle
		`CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			from_state TEXT NOT NULL CHECK(from_state IN ('lit', 'unlit')),
			to_state TEXT NOT NULL CHECK(to_state IN ('lit', 'unlit')),
			at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_at ON transitions(at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
