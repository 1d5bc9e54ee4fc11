// ABOUTME: Scope resolution combining static ownership rules with the sharing overlay
// ABOUTME: One enumerated policy evaluated identically for every item kind

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// itemScope describes the ownership of one item for capability
// resolution: which principal owns it, and — for shareable trees — the
// object type and category root a cross-user grant would be keyed on.
type itemScope struct {
	agentScoped  bool
	ownerAgentID int64 // set when agentScoped
	ownerUserID  int64
	object       ObjectType // empty when the item can never be shared
	categoryID   int64
}

// resolveScope computes the caller's capability set over an item.
//
// Static rules: the owning principal holds the full set; other agents of
// the owning user hold Read on agent-scoped items and the full set on
// user-scoped ones. When the owning user differs from the caller's, the
// only path is a share grant keyed by (caller user, object type,
// category root) — a single indexed lookup, never an ancestor walk.
// No rule and no grant yields the empty set.
func (s *SQLiteStore) resolveScope(ctx context.Context, q querier, caller Identity, item itemScope) (Capability, error) {
	if item.ownerUserID == caller.UserID {
		if !item.agentScoped || item.ownerAgentID == caller.AgentID {
			return capOwner, nil
		}
		return CapRead, nil
	}

	if item.object == "" || item.categoryID == 0 {
		return 0, nil
	}

	level, ok, err := s.shareLevel(ctx, q, caller.UserID, item.object, item.categoryID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return grantCapabilities(level), nil
}

// shareLevel looks up the grant held by toUser over a category root.
func (s *SQLiteStore) shareLevel(ctx context.Context, q querier, toUserID int64, object ObjectType, categoryID int64) (int, bool, error) {
	var level int
	err := q.QueryRowContext(ctx, `
		SELECT permission_level FROM shares
		WHERE to_user_id = ? AND object_type = ? AND object_id = ?
	`, toUserID, string(object), categoryID).Scan(&level)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying share grant: %w", err)
	}
	return level, true, nil
}

// nodeScope builds the itemScope for a tree node, resolving the owning
// user for agent-scoped kinds.
func (s *SQLiteStore) nodeScope(ctx context.Context, q querier, kind TreeKind, node *Node) (itemScope, error) {
	item := itemScope{
		agentScoped: kind.agentScoped,
		object:      kind.object,
		categoryID:  node.CategoryID,
	}
	if kind.agentScoped {
		userID, err := s.agentUserID(ctx, q, node.OwnerID)
		if err != nil {
			return itemScope{}, err
		}
		item.ownerAgentID = node.OwnerID
		item.ownerUserID = userID
	} else {
		item.ownerUserID = node.OwnerID
	}
	return item, nil
}

// requireCapability maps a resolved capability set to the error contract:
// an unreadable item is reported as ErrNotFound (existence must not
// leak), a readable item without the required capability as
// ErrUnauthorized.
func requireCapability(caps Capability, want Capability) error {
	if !caps.Has(CapRead) {
		return ErrNotFound
	}
	if !caps.Has(want) {
		return ErrUnauthorized
	}
	return nil
}
