// ABOUTME: Flat agent-owned memories with a user-approval gate on mutation
// ABOUTME: Approvals are recorded separately and consumed atomically by the change

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateMemory creates a memory owned by the caller's agent. Creation is
// ungated; only mutation and deletion require a recorded approval.
func (s *SQLiteStore) CreateMemory(ctx context.Context, caller Identity, title, description string) (*Memory, error) {
	if title == "" {
		return nil, validationf("title is required")
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (agent_id, title, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, caller.AgentID, title, nullString(description), formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("inserting memory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting memory id: %w", err)
	}

	s.logger.Debug("created memory", "memory_id", id, "agent_id", caller.AgentID)
	return &Memory{
		ID:          id,
		AgentID:     caller.AgentID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetMemory retrieves a memory readable by the caller: any agent of the
// owning user may read. Returns ErrNotFound outside that scope.
func (s *SQLiteStore) GetMemory(ctx context.Context, caller Identity, memoryID int64) (*Memory, error) {
	memory, ownerUserID, err := s.getMemoryRow(ctx, s.db, memoryID)
	if err != nil {
		return nil, err
	}

	caps, err := s.resolveScope(ctx, s.db, caller, itemScope{
		agentScoped:  true,
		ownerAgentID: memory.AgentID,
		ownerUserID:  ownerUserID,
	})
	if err != nil {
		return nil, err
	}
	if err := requireCapability(caps, CapRead); err != nil {
		return nil, err
	}
	return memory, nil
}

// ListMemories returns an agent's memories in creation order.
// ownerAgentID 0 means the caller's own agent; another agent's memories
// are readable when it belongs to the same user.
func (s *SQLiteStore) ListMemories(ctx context.Context, caller Identity, ownerAgentID int64) ([]*Memory, error) {
	if ownerAgentID == 0 {
		ownerAgentID = caller.AgentID
	}
	if ownerAgentID != caller.AgentID {
		userID, err := s.agentUserID(ctx, s.db, ownerAgentID)
		if err != nil {
			return nil, err
		}
		if userID != caller.UserID {
			return nil, ErrNotFound
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, agent_id, title, description, created_at, updated_at
		FROM memories WHERE agent_id = ?
		ORDER BY memory_id
	`, ownerAgentID)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	var memories []*Memory
	for rows.Next() {
		var m Memory
		var description sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Title, &description, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory row: %w", err)
		}
		m.Description = description.String
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		memories = append(memories, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memory rows: %w", err)
	}
	return memories, nil
}

// ApproveMemoryChange records the owning user's approval for one
// mutation or deletion of a memory. Any agent of the owning user may
// record it on the user's behalf. A later approval replaces an unused
// earlier one; each approval permits exactly one change.
func (s *SQLiteStore) ApproveMemoryChange(ctx context.Context, caller Identity, memoryID int64) error {
	_, ownerUserID, err := s.getMemoryRow(ctx, s.db, memoryID)
	if err != nil {
		return err
	}
	if ownerUserID != caller.UserID {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memory_approvals (memory_id, approved_by_user_id, approved_at)
		VALUES (?, ?, ?)
	`, memoryID, caller.UserID, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("recording approval: %w", err)
	}

	s.logger.Debug("approved memory change", "memory_id", memoryID, "user_id", caller.UserID)
	return nil
}

// UpdateMemory updates a memory's title and/or description. Only the
// owning agent may mutate, and the mutation consumes one recorded
// approval in the same transaction; without one it fails with
// ErrApprovalPending and changes nothing.
func (s *SQLiteStore) UpdateMemory(ctx context.Context, caller Identity, memoryID int64, update MemoryUpdate) (*Memory, error) {
	if update.Title == nil && update.Description == nil {
		return nil, validationf("no fields to update")
	}
	if update.Title != nil && *update.Title == "" {
		return nil, validationf("title cannot be empty")
	}

	var memory *Memory
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		var ownerUserID int64
		memory, ownerUserID, err = s.getMemoryRow(ctx, tx, memoryID)
		if err != nil {
			return err
		}
		if err := s.checkMemoryWrite(ctx, tx, caller, memory, ownerUserID); err != nil {
			return err
		}
		if err := s.consumeApproval(ctx, tx, memoryID); err != nil {
			return err
		}

		if update.Title != nil {
			memory.Title = *update.Title
		}
		if update.Description != nil {
			memory.Description = *update.Description
		}
		memory.UpdatedAt = time.Now().UTC()

		_, err = tx.ExecContext(ctx,
			`UPDATE memories SET title = ?, description = ?, updated_at = ? WHERE memory_id = ?`,
			memory.Title, nullString(memory.Description), formatTime(memory.UpdatedAt), memory.ID)
		if err != nil {
			return fmt.Errorf("updating memory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("updated memory", "memory_id", memoryID)
	return memory, nil
}

// DeleteMemory deletes a memory. Owning agent only; consumes one
// recorded approval like UpdateMemory.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, caller Identity, memoryID int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		memory, ownerUserID, err := s.getMemoryRow(ctx, tx, memoryID)
		if err != nil {
			return err
		}
		if err := s.checkMemoryWrite(ctx, tx, caller, memory, ownerUserID); err != nil {
			return err
		}
		if err := s.consumeApproval(ctx, tx, memoryID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE memory_id = ?`, memoryID); err != nil {
			return fmt.Errorf("deleting memory: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted memory", "memory_id", memoryID)
	return nil
}

// checkMemoryWrite enforces the agent-scoped write rule: same-user
// non-owner agents can see the memory but not change it.
func (s *SQLiteStore) checkMemoryWrite(ctx context.Context, q querier, caller Identity, memory *Memory, ownerUserID int64) error {
	caps, err := s.resolveScope(ctx, q, caller, itemScope{
		agentScoped:  true,
		ownerAgentID: memory.AgentID,
		ownerUserID:  ownerUserID,
	})
	if err != nil {
		return err
	}
	return requireCapability(caps, CapWrite)
}

// consumeApproval uses up one recorded approval, failing with
// ErrApprovalPending when none exists. The conditional delete makes the
// approval single-use even under concurrent mutations.
func (s *SQLiteStore) consumeApproval(ctx context.Context, tx *sql.Tx, memoryID int64) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM memory_approvals WHERE memory_id = ?`, memoryID)
	if err != nil {
		return fmt.Errorf("consuming approval: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrApprovalPending
	}
	return nil
}

// getMemoryRow fetches a memory and its owning user without scope checks.
func (s *SQLiteStore) getMemoryRow(ctx context.Context, q querier, memoryID int64) (*Memory, int64, error) {
	var m Memory
	var ownerUserID int64
	var description sql.NullString
	var createdAt, updatedAt string

	err := q.QueryRowContext(ctx, `
		SELECT m.memory_id, m.agent_id, a.user_id, m.title, m.description, m.created_at, m.updated_at
		FROM memories m
		JOIN agents a ON m.agent_id = a.agent_id
		WHERE m.memory_id = ?
	`, memoryID).Scan(&m.ID, &m.AgentID, &ownerUserID, &m.Title, &description, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("querying memory: %w", err)
	}

	m.Description = description.String
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, 0, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, 0, err
	}
	return &m, ownerUserID, nil
}
