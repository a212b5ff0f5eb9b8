package repository

import (
	"database/sql"
	"time"

	"github.com/collinvine/talk-to-oura/internal/domain"
	"github.com/collinvine/talk-to-oura/internal/oura"
	"github.com/google/uuid"
)

// SessionRepository handles session, token and message persistence
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// EnsureSession creates the session row if it doesn't exist yet and
// returns its id (minting one when empty).
func (r *SessionRepository) EnsureSession(id string) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	_, err := r.db.Exec(`
		INSERT INTO sessions (id) VALUES (?)
		ON CONFLICT (id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
	`, id)
	return id, err
}

// SaveToken stores the session's Oura credential, replacing any prior one
func (r *SessionRepository) SaveToken(sessionID string, token oura.Token) error {
	if _, err := r.EnsureSession(sessionID); err != nil {
		return err
	}
	_, err := r.db.Exec(`
		INSERT INTO oura_tokens (session_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, sessionID, token.AccessToken, token.RefreshToken, token.ExpiresAt, time.Now())
	return err
}

// GetToken retrieves the session's Oura credential, nil when the session
// has never connected.
func (r *SessionRepository) GetToken(sessionID string) (*oura.Token, error) {
	token := &oura.Token{}
	var expiresAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT access_token, refresh_token, expires_at
		FROM oura_tokens WHERE session_id = ?
	`, sessionID).Scan(&token.AccessToken, &token.RefreshToken, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		token.ExpiresAt = expiresAt.Time
	}
	return token, nil
}

// DeleteToken disconnects the session from Oura
func (r *SessionRepository) DeleteToken(sessionID string) error {
	_, err := r.db.Exec(`DELETE FROM oura_tokens WHERE session_id = ?`, sessionID)
	return err
}

// SaveMessage appends a conversation turn for the session
func (r *SessionRepository) SaveMessage(sessionID, role, content string) error {
	_, err := r.db.Exec(`
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), sessionID, role, content, time.Now())
	return err
}

// RecentMessages returns up to limit turns for the session, oldest first
func (r *SessionRepository) RecentMessages(sessionID string, limit int) ([]domain.ChatTurn, error) {
	rows, err := r.db.Query(`
		SELECT role, content FROM (
			SELECT role, content, created_at FROM messages
			WHERE session_id = ?
			ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.ChatTurn
	for rows.Next() {
		var turn domain.ChatTurn
		if err := rows.Scan(&turn.Role, &turn.Content); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}
