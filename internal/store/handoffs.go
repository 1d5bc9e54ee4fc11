// ABOUTME: Single-consumption handoff notes between sessions of an agent
// ABOUTME: Pickup is one conditional update, so exactly one caller ever wins

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateHandoff leaves a note for a later session of an agent. The
// target defaults to the caller's own agent; any agent of the same user
// may delegate to another, cross-user targets are invisible.
func (s *SQLiteStore) CreateHandoff(ctx context.Context, caller Identity, targetAgentID int64, title, prompt string) (*Handoff, error) {
	if title == "" {
		return nil, validationf("title is required")
	}
	if prompt == "" {
		return nil, validationf("prompt is required")
	}

	if targetAgentID == 0 {
		targetAgentID = caller.AgentID
	}
	if targetAgentID != caller.AgentID {
		userID, err := s.agentUserID(ctx, s.db, targetAgentID)
		if err != nil {
			return nil, err
		}
		if userID != caller.UserID {
			return nil, ErrNotFound
		}
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO handoffs (agent_id, title, prompt, created_at)
		VALUES (?, ?, ?, ?)
	`, targetAgentID, title, prompt, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("inserting handoff: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting handoff id: %w", err)
	}

	s.logger.Debug("created handoff", "handoff_id", id, "agent_id", targetAgentID)
	return &Handoff{
		ID:        id,
		AgentID:   targetAgentID,
		Title:     title,
		Prompt:    prompt,
		CreatedAt: now,
	}, nil
}

// ListPendingHandoffs returns the caller's agent's unconsumed handoffs,
// oldest first. Only the target agent sees its own queue.
func (s *SQLiteStore) ListPendingHandoffs(ctx context.Context, caller Identity) ([]*Handoff, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT handoff_id, agent_id, title, prompt, created_at, picked_up_at
		FROM handoffs
		WHERE agent_id = ? AND picked_up_at IS NULL
		ORDER BY created_at, handoff_id
	`, caller.AgentID)
	if err != nil {
		return nil, fmt.Errorf("querying pending handoffs: %w", err)
	}
	defer rows.Close()

	var handoffs []*Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		handoffs = append(handoffs, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating handoff rows: %w", err)
	}
	return handoffs, nil
}

// PickupHandoff consumes a handoff for the caller's agent. The state
// transition is a single conditional update, so when sessions race for
// the same handoff exactly one succeeds and the rest get
// ErrAlreadyPickedUp. Only the target agent may pick up; other agents
// of the same user can read but get ErrUnauthorized here.
func (s *SQLiteStore) PickupHandoff(ctx context.Context, caller Identity, handoffID int64) (*Handoff, error) {
	pickedUp := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE handoffs SET picked_up_at = ?
		WHERE handoff_id = ? AND agent_id = ? AND picked_up_at IS NULL
	`, formatTime(pickedUp), handoffID, caller.AgentID)
	if err != nil {
		return nil, fmt.Errorf("picking up handoff: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 1 {
		handoff, err := s.getHandoffRow(ctx, handoffID)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("picked up handoff", "handoff_id", handoffID, "agent_id", caller.AgentID)
		return handoff, nil
	}

	// The update matched nothing: classify why without leaking
	// cross-user existence.
	handoff, err := s.getHandoffRow(ctx, handoffID)
	if err != nil {
		return nil, err
	}
	ownerUserID, err := s.agentUserID(ctx, s.db, handoff.AgentID)
	if err != nil {
		return nil, err
	}
	if ownerUserID != caller.UserID {
		return nil, ErrNotFound
	}
	if handoff.AgentID != caller.AgentID {
		return nil, ErrUnauthorized
	}
	return nil, ErrAlreadyPickedUp
}

// GetHandoff retrieves a handoff readable by the caller: any agent of
// the target agent's user may inspect it, consumed or not.
func (s *SQLiteStore) GetHandoff(ctx context.Context, caller Identity, handoffID int64) (*Handoff, error) {
	handoff, err := s.getHandoffRow(ctx, handoffID)
	if err != nil {
		return nil, err
	}

	ownerUserID, err := s.agentUserID(ctx, s.db, handoff.AgentID)
	if err != nil {
		return nil, err
	}
	if ownerUserID != caller.UserID {
		return nil, ErrNotFound
	}
	return handoff, nil
}

// DeleteHandoff removes a handoff. Only the target agent may delete,
// consumed or not.
func (s *SQLiteStore) DeleteHandoff(ctx context.Context, caller Identity, handoffID int64) error {
	handoff, err := s.getHandoffRow(ctx, handoffID)
	if err != nil {
		return err
	}

	ownerUserID, err := s.agentUserID(ctx, s.db, handoff.AgentID)
	if err != nil {
		return err
	}
	if ownerUserID != caller.UserID {
		return ErrNotFound
	}
	if handoff.AgentID != caller.AgentID {
		return ErrUnauthorized
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM handoffs WHERE handoff_id = ?`, handoffID); err != nil {
		return fmt.Errorf("deleting handoff: %w", err)
	}

	s.logger.Debug("deleted handoff", "handoff_id", handoffID)
	return nil
}

// getHandoffRow fetches a handoff without scope checks.
func (s *SQLiteStore) getHandoffRow(ctx context.Context, handoffID int64) (*Handoff, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT handoff_id, agent_id, title, prompt, created_at, picked_up_at
		FROM handoffs WHERE handoff_id = ?
	`, handoffID)

	h, err := scanHandoff(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying handoff: %w", err)
	}
	return h, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHandoff(row rowScanner) (*Handoff, error) {
	var h Handoff
	var createdAt string
	var pickedUpAt sql.NullString

	if err := row.Scan(&h.ID, &h.AgentID, &h.Title, &h.Prompt, &createdAt, &pickedUpAt); err != nil {
		return nil, err
	}

	var err error
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if pickedUpAt.Valid {
		t, err := parseTime(pickedUpAt.String)
		if err != nil {
			return nil, err
		}
		h.PickedUpAt = &t
	}
	return &h, nil
}
