// ABOUTME: User and agent provisioning plus API-key identity resolution
// ABOUTME: Principals are created out-of-band and never mutated by core operations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateUser creates a new user. Names are unique.
func (s *SQLiteStore) CreateUser(ctx context.Context, name string) (*User, error) {
	if name == "" {
		return nil, validationf("user name is required")
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, created_at) VALUES (?, ?)`,
		name, formatTime(now),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, validationf("user %q already exists", name)
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	s.logger.Info("created user", "user_id", id, "name", name)
	return &User{ID: id, Name: name, CreatedAt: now}, nil
}

// CreateAgent creates a new agent under a user and issues its API key.
// The key is a v4 UUID returned exactly once here; it is stored for
// lookup but never logged.
func (s *SQLiteStore) CreateAgent(ctx context.Context, userID int64, name string) (*Agent, error) {
	if name == "" {
		return nil, validationf("agent name is required")
	}

	var exists int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM users WHERE user_id = ?`, userID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	apiKey := uuid.New().String()
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (user_id, name, api_key, created_at) VALUES (?, ?, ?, ?)`,
		userID, name, apiKey, formatTime(now),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, validationf("agent %q already exists", name)
		}
		return nil, fmt.Errorf("inserting agent: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting agent id: %w", err)
	}

	s.logger.Info("created agent", "agent_id", id, "user_id", userID, "name", name)
	return &Agent{ID: id, UserID: userID, Name: name, APIKey: apiKey, CreatedAt: now}, nil
}

// GetUserByName retrieves a user by name.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUserByName(ctx context.Context, name string) (*User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, created_at FROM users WHERE name = ?`, name,
	).Scan(&u.ID, &u.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetAgentByName retrieves an agent by its unique name.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	var a Agent
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, user_id, name, api_key, created_at FROM agents WHERE name = ?`, name,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.APIKey, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}

	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// IdentityByAPIKey resolves an inbound credential to its (user, agent)
// identity pair in one indexed join. Returns ErrNotFound for unknown keys.
func (s *SQLiteStore) IdentityByAPIKey(ctx context.Context, apiKey string) (*Identity, error) {
	var id Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT a.agent_id, a.name, u.user_id, u.name
		FROM agents a
		JOIN users u ON a.user_id = u.user_id
		WHERE a.api_key = ?
	`, apiKey).Scan(&id.AgentID, &id.AgentName, &id.UserID, &id.UserName)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}
	return &id, nil
}

// ListUsers returns all users ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, name, created_at FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

// ListAgents returns the agents of one user, or of all users when
// userID is 0, ordered by id. API keys are included: this is a
// provisioning surface, not a caller-scoped operation.
func (s *SQLiteStore) ListAgents(ctx context.Context, userID int64) ([]*Agent, error) {
	query := `SELECT agent_id, user_id, name, api_key, created_at FROM agents ORDER BY agent_id`
	args := []any{}
	if userID != 0 {
		query = `SELECT agent_id, user_id, name, api_key, created_at FROM agents WHERE user_id = ? ORDER BY agent_id`
		args = append(args, userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		var createdAt string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.APIKey, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		agents = append(agents, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

// agentUserID returns the owning user of an agent using the given
// querier, so ownership checks can run inside transactions.
func (s *SQLiteStore) agentUserID(ctx context.Context, q querier, agentID int64) (int64, error) {
	var userID int64
	err := q.QueryRowContext(ctx, `SELECT user_id FROM agents WHERE agent_id = ?`, agentID).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying agent owner: %w", err)
	}
	return userID, nil
}
