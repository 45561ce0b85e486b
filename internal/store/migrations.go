package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per controller run.
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			camera_index INTEGER NOT NULL DEFAULT 0,
			sink TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}'
		)`,

		// One row per dispatched volume command, successful or not.
		`CREATE TABLE IF NOT EXISTS volume_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			distance REAL NOT NULL,
			raw REAL NOT NULL,
			volume INTEGER NOT NULL CHECK(volume BETWEEN 0 AND 100),
			ok INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_volume_events_session_id ON volume_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
