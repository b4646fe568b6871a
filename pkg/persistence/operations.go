package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inquest/pkg/proto"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// UpsertSession inserts or refreshes a session row.
func (s *Store) UpsertSession(rec SessionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, incident_id, title, status, rounds, consensus, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			incident_id = excluded.incident_id,
			title       = excluded.title,
			status      = excluded.status,
			rounds      = excluded.rounds,
			consensus   = excluded.consensus,
			updated_at  = excluded.updated_at`,
		rec.ID, rec.IncidentID, rec.Title, rec.Status, rec.Rounds, rec.Consensus, rec.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateSessionStatus updates the lifecycle fields of an existing session.
func (s *Store) UpdateSessionStatus(sessionID string, status proto.SessionStatus, rounds int, consensus bool) error {
	res, err := s.db.Exec(`
		UPDATE sessions SET status = ?, rounds = ?, consensus = ?, updated_at = ?
		WHERE id = ?`,
		string(status), rounds, consensus, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("update session %s status: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update session %s status: %w", sessionID, ErrNotFound)
	}
	return nil
}

// GetSession returns one session row.
func (s *Store) GetSession(sessionID string) (SessionRecord, error) {
	var rec SessionRecord
	err := s.db.QueryRow(`
		SELECT id, incident_id, title, status, rounds, consensus, created_at, updated_at
		FROM sessions WHERE id = ?`, sessionID).
		Scan(&rec.ID, &rec.IncidentID, &rec.Title, &rec.Status, &rec.Rounds,
			&rec.Consensus, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return rec, nil
}

// InsertCheckpoint appends one round checkpoint.
func (s *Store) InsertCheckpoint(cp Checkpoint) error {
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO checkpoints (session_id, round, loop_round, phase, worker, confidence, summary, conclusion, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.SessionID, cp.Round, cp.LoopRound, cp.Phase, cp.Worker,
		cp.Confidence, cp.Summary, cp.Conclusion, cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert checkpoint for %s/%s: %w", cp.SessionID, cp.Worker, err)
	}
	return nil
}

// Checkpoints returns every checkpoint for a session in insertion order.
func (s *Store) Checkpoints(sessionID string) ([]Checkpoint, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, round, loop_round, phase, worker, confidence, summary, conclusion, created_at
		FROM checkpoints WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints for %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		if err := rows.Scan(&cp.ID, &cp.SessionID, &cp.Round, &cp.LoopRound, &cp.Phase,
			&cp.Worker, &cp.Confidence, &cp.Summary, &cp.Conclusion, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

// SaveVerdict stores the final verdict as a JSON payload. A re-run of the
// same session replaces the previous verdict.
func (s *Store) SaveVerdict(sessionID string, verdict proto.FinalVerdict) error {
	payload, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict for %s: %w", sessionID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO verdicts (session_id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			payload    = excluded.payload,
			created_at = excluded.created_at`,
		sessionID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save verdict for %s: %w", sessionID, err)
	}
	return nil
}

// GetVerdict reads a stored verdict back.
func (s *Store) GetVerdict(sessionID string) (proto.FinalVerdict, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM verdicts WHERE session_id = ?`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return proto.FinalVerdict{}, fmt.Errorf("verdict for %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return proto.FinalVerdict{}, fmt.Errorf("get verdict for %s: %w", sessionID, err)
	}
	var verdict proto.FinalVerdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return proto.FinalVerdict{}, fmt.Errorf("unmarshal verdict for %s: %w", sessionID, err)
	}
	return verdict, nil
}
