package store

import (
	"database/sql"
	"time"

	"github.com/ayusman/candlelight/internal/candle"
)

// DefaultHistoryLimit caps Recent when no limit is given.
const DefaultHistoryLimit = 50

// TransitionRecord is a stored candle transition.
type TransitionRecord struct {
	ID      int64        `json:"id"`
	Session string       `json:"session"`
	From    candle.State `json:"from"`
	To      candle.State `json:"to"`
	At      time.Time    `json:"at"`
}

// HistoryRepository records candle transitions.
type HistoryRepository struct {
	db *sql.DB
}

// History returns the transition history repository for this store.
func (s *Store) History() *HistoryRepository {
	return &HistoryRepository{db: s.db}
}

// Record inserts tr for session.
func (r *HistoryRepository) Record(session string, tr candle.Transition) error {
	_, err := r.db.Exec(
		`INSERT INTO transitions (session, from_state, to_state, at) VALUES (?, ?, ?, ?)`,
		session, string(tr.From), string(tr.To), tr.At.UTC(),
	)
	return err
}

// Recent returns up to limit transitions of all sessions, newest first.
func (r *HistoryRepository) Recent(limit int) ([]*TransitionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return r.query(
		`SELECT id, session, from_state, to_state, at FROM transitions ORDER BY at DESC, id DESC LIMIT ?`,
		limit,
	)
}

// RecentForSession returns up to limit transitions of session, newest first.
func (r *HistoryRepository) RecentForSession(session string, limit int) ([]*TransitionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return r.query(
		`SELECT id, session, from_state, to_state, at FROM transitions WHERE session = ? ORDER BY at DESC, id DESC LIMIT ?`,
		session, limit,
	)
}

func (r *HistoryRepository) query(q string, args ...interface{}) ([]*TransitionRecord, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*TransitionRecord
	for rows.Next() {
		rec := &TransitionRecord{}
		var from, to string
		if err := rows.Scan(&rec.ID, &rec.Session, &from, &to, &rec.At); err != nil {
			return nil, err
		}
		rec.From = candle.State(from)
		rec.To = candle.State(to)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountExtinguished returns how many times the candle was blown out in session.
func (r *HistoryRepository) CountExtinguished(session string) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM transitions WHERE session = ? AND to_state = ?`,
		session, string(candle.Unlit),
	).Scan(&n)
	return n, err
}
