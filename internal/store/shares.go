// ABOUTME: Cross-user share grants over category roots
// ABOUTME: Atomic upsert on grant, idempotent revoke, inbound/outbound listings

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GrantShare shares a category root with another user at the given
// permission level. Only the owning user's agents may grant. Re-granting
// the same object to the same user updates the level instead of
// erroring: the upsert is a single statement against the uniqueness
// constraint, so concurrent grants cannot race into duplicates.
func (s *SQLiteStore) GrantShare(ctx context.Context, caller Identity, toUserID int64, object ObjectType, objectID int64, level int) (*Share, error) {
	if !object.valid() {
		return nil, validationf("object type must be project, hint, or wiki (got %q)", object)
	}
	if level < 1 || level > 3 {
		return nil, validationf("permission level must be 1, 2, or 3 (got %d)", level)
	}
	if toUserID == caller.UserID {
		return nil, validationf("cannot share to yourself")
	}

	var exists int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM users WHERE user_id = ?`, toUserID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying target user: %w", err)
	}

	// The object must be a category root of the matching kind, owned by
	// the caller's user. Grants held via sharing confer no right to
	// re-share.
	kind, ok := treeKindByObject(object)
	if !ok {
		return nil, validationf("object type %q is not shareable", object)
	}
	var ownerID, parentID int64
	err = s.db.QueryRowContext(ctx,
		`SELECT owner_id, parent_id FROM nodes WHERE kind = ? AND node_id = ?`,
		kind.name, objectID,
	).Scan(&ownerID, &parentID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying shared object: %w", err)
	}
	if ownerID != caller.UserID {
		return nil, ErrNotFound
	}
	if parentID != 0 {
		return nil, validationf("only a category root can be shared")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shares (from_user_id, to_user_id, object_type, object_id, permission_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (to_user_id, object_type, object_id)
		DO UPDATE SET permission_level = excluded.permission_level, from_user_id = excluded.from_user_id
	`, caller.UserID, toUserID, string(object), objectID, level, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("upserting share: %w", err)
	}

	share, err := s.getShare(ctx, toUserID, object, objectID)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("granted share", "from_user", caller.UserID, "to_user", toUserID,
		"object_type", object, "object_id", objectID, "level", level)
	return share, nil
}

// RevokeShare removes a grant made by the caller's user. Idempotent:
// revoking an absent grant is a no-op.
func (s *SQLiteStore) RevokeShare(ctx context.Context, caller Identity, toUserID int64, object ObjectType, objectID int64) error {
	if !object.valid() {
		return validationf("object type must be project, hint, or wiki (got %q)", object)
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM shares
		WHERE from_user_id = ? AND to_user_id = ? AND object_type = ? AND object_id = ?
	`, caller.UserID, toUserID, string(object), objectID)
	if err != nil {
		return fmt.Errorf("deleting share: %w", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.logger.Debug("revoked share", "from_user", caller.UserID, "to_user", toUserID,
			"object_type", object, "object_id", objectID)
	}
	return nil
}

// ListOutboundShares returns the grants made by the caller's user.
func (s *SQLiteStore) ListOutboundShares(ctx context.Context, caller Identity) ([]*Share, error) {
	return s.listShares(ctx, `
		SELECT s.share_id, s.from_user_id, fu.name, s.to_user_id, tu.name,
		       s.object_type, s.object_id, s.permission_level, s.created_at
		FROM shares s
		JOIN users fu ON s.from_user_id = fu.user_id
		JOIN users tu ON s.to_user_id = tu.user_id
		WHERE s.from_user_id = ?
		ORDER BY s.object_type, s.object_id
	`, caller.UserID)
}

// ListInboundShares returns the grants held by the caller's user.
func (s *SQLiteStore) ListInboundShares(ctx context.Context, caller Identity) ([]*Share, error) {
	return s.listShares(ctx, `
		SELECT s.share_id, s.from_user_id, fu.name, s.to_user_id, tu.name,
		       s.object_type, s.object_id, s.permission_level, s.created_at
		FROM shares s
		JOIN users fu ON s.from_user_id = fu.user_id
		JOIN users tu ON s.to_user_id = tu.user_id
		WHERE s.to_user_id = ?
		ORDER BY s.object_type, s.object_id
	`, caller.UserID)
}

func (s *SQLiteStore) getShare(ctx context.Context, toUserID int64, object ObjectType, objectID int64) (*Share, error) {
	var share Share
	var objectType, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT s.share_id, s.from_user_id, fu.name, s.to_user_id, tu.name,
		       s.object_type, s.object_id, s.permission_level, s.created_at
		FROM shares s
		JOIN users fu ON s.from_user_id = fu.user_id
		JOIN users tu ON s.to_user_id = tu.user_id
		WHERE s.to_user_id = ? AND s.object_type = ? AND s.object_id = ?
	`, toUserID, string(object), objectID).Scan(
		&share.ID, &share.FromUserID, &share.FromUserName, &share.ToUserID, &share.ToUserName,
		&objectType, &share.ObjectID, &share.PermissionLevel, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying share: %w", err)
	}

	share.ObjectType = ObjectType(objectType)
	if share.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &share, nil
}

func (s *SQLiteStore) listShares(ctx context.Context, query string, args ...any) ([]*Share, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying shares: %w", err)
	}
	defer rows.Close()

	var shares []*Share
	for rows.Next() {
		var share Share
		var objectType, createdAt string
		if err := rows.Scan(
			&share.ID, &share.FromUserID, &share.FromUserName, &share.ToUserID, &share.ToUserName,
			&objectType, &share.ObjectID, &share.PermissionLevel, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning share row: %w", err)
		}

		share.ObjectType = ObjectType(objectType)
		if share.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		shares = append(shares, &share)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating share rows: %w", err)
	}
	return shares, nil
}
