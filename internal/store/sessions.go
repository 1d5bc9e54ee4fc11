// ABOUTME: Session start records for continuity across agent runs
// ABOUTME: Append-only log; only the most recent entry is ever read back

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StartSession records a session start for the caller's agent.
// Project is free-form and may be empty.
func (s *SQLiteStore) StartSession(ctx context.Context, caller Identity, project string) (*Session, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (agent_id, project, started_at) VALUES (?, ?, ?)`,
		caller.AgentID, nullString(project), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting session id: %w", err)
	}

	s.logger.Debug("started session", "session_id", id, "agent_id", caller.AgentID)
	return &Session{ID: id, AgentID: caller.AgentID, Project: project, StartedAt: now}, nil
}

// LastSession returns the caller's agent's most recent session, or
// ErrNotFound when the agent has never started one.
func (s *SQLiteStore) LastSession(ctx context.Context, caller Identity) (*Session, error) {
	var session Session
	var project sql.NullString
	var startedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, agent_id, project, started_at
		FROM sessions WHERE agent_id = ?
		ORDER BY session_id DESC LIMIT 1
	`, caller.AgentID).Scan(&session.ID, &session.AgentID, &project, &startedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying last session: %w", err)
	}

	session.Project = project.String
	if session.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	return &session, nil
}
