// ABOUTME: User-scoped encrypted secret storage
// ABOUTME: Values are sealed before they reach the database and fail closed on retrieval

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PutSecret stores an encrypted secret under the caller's user. Storing
// an existing key replaces its value. The plaintext is sealed before it
// touches the database and never logged.
func (s *SQLiteStore) PutSecret(ctx context.Context, caller Identity, key, value string) error {
	if key == "" {
		return validationf("secret key is required")
	}

	blob, err := s.cipher.Encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("encrypting secret: %w", err)
	}

	now := formatTime(time.Now().UTC())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secrets (user_id, key, encrypted_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, key)
		DO UPDATE SET encrypted_value = excluded.encrypted_value, updated_at = excluded.updated_at
	`, caller.UserID, key, blob, now, now)
	if err != nil {
		return fmt.Errorf("upserting secret: %w", err)
	}

	s.logger.Debug("stored secret", "user_id", caller.UserID, "key", key)
	return nil
}

// GetSecret retrieves and decrypts a secret of the caller's user.
// Any agent of the user may read it. A value that fails authentication
// is never returned, not even partially.
func (s *SQLiteStore) GetSecret(ctx context.Context, caller Identity, key string) (string, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT encrypted_value FROM secrets WHERE user_id = ? AND key = ?`,
		caller.UserID, key,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying secret: %w", err)
	}

	plaintext, err := s.cipher.Decrypt(blob)
	if err != nil {
		return "", fmt.Errorf("decrypting secret %q: %w", key, err)
	}
	return string(plaintext), nil
}

// DeleteSecret removes a secret of the caller's user. Idempotent:
// deleting an absent key is a no-op.
func (s *SQLiteStore) DeleteSecret(ctx context.Context, caller Identity, key string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM secrets WHERE user_id = ? AND key = ?`,
		caller.UserID, key,
	)
	if err != nil {
		return fmt.Errorf("deleting secret: %w", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.logger.Debug("deleted secret", "user_id", caller.UserID, "key", key)
	}
	return nil
}

// ListSecretKeys returns the caller's user's secret keys and timestamps,
// never the values, ordered by key.
func (s *SQLiteStore) ListSecretKeys(ctx context.Context, caller Identity) ([]*SecretInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, created_at, updated_at FROM secrets
		WHERE user_id = ? ORDER BY key
	`, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("querying secret keys: %w", err)
	}
	defer rows.Close()

	var infos []*SecretInfo
	for rows.Next() {
		var info SecretInfo
		var createdAt, updatedAt string
		if err := rows.Scan(&info.Key, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning secret row: %w", err)
		}
		if info.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if info.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, &info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating secret rows: %w", err)
	}
	return infos, nil
}
