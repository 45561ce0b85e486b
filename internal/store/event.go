package store

import (
	"database/sql"
	"time"
)

// Event is one dispatched volume command.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	Distance  float64   `json:"distance"`
	Raw       float64   `json:"raw"`
	Volume    int       `json:"volume"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventRepository provides operations on volume events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Record inserts e and sets its ID. A zero CreatedAt is set to now.
func (r *EventRepository) Record(e *Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO volume_events (session_id, seq, distance, raw, volume, ok, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, int64(e.Seq), e.Distance, e.Raw, e.Volume, e.OK, e.Error, e.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListBySession returns a session's events in dispatch order.
func (r *EventRepository) ListBySession(sessionID string) ([]*Event, error) {
	return r.query(
		`SELECT id, session_id, seq, distance, raw, volume, ok, error, created_at
		 FROM volume_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
}

// Recent returns the latest limit events across all sessions, newest first.
func (r *EventRepository) Recent(limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(
		`SELECT id, session_id, seq, distance, raw, volume, ok, error, created_at
		 FROM volume_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
}

func (r *EventRepository) query(q string, args ...any) ([]*Event, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var seq int64
		if err := rows.Scan(&e.ID, &e.SessionID, &seq, &e.Distance, &e.Raw, &e.Volume, &e.OK, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Recorder journals events for one session.
type Recorder struct {
	events    *EventRepository
	sessionID string
}

// Recorder returns a Recorder bound to sessionID.
func (s *Store) Recorder(sessionID string) *Recorder {
	return &Recorder{events: s.Events(), sessionID: sessionID}
}

// Record stamps e with the session ID and inserts it.
func (r *Recorder) Record(e *Event) error {
	e.SessionID = r.sessionID
	return r.events.Record(e)
}

// SessionID returns the bound session.
func (r *Recorder) SessionID() string {
	return r.sessionID
}
