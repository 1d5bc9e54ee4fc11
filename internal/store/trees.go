// ABOUTME: Generic tree storage for all hierarchical node kinds
// ABOUTME: Computes category ids at insert time and cascades deletes over subtrees

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateNode creates a tree node of the given kind.
//
// Root creates (parentID 0) start a new category owned by the caller's
// principal: the node's category id becomes its own id. Child creates
// resolve the parent within the same kind, require Append capability on
// it, and inherit the parent's owner and category id — the new node
// always belongs to the tree owner, even when appended through a share.
// Category assignment and the insert are one transaction, so a
// concurrently-deleted parent can never leave an orphaned category
// reference.
func (s *SQLiteStore) CreateNode(ctx context.Context, caller Identity, kind TreeKind, parentID int64, title, description string) (*Node, error) {
	if !kind.valid() {
		return nil, validationf("unknown tree kind %q", kind.name)
	}
	if title == "" {
		return nil, validationf("title is required")
	}
	if parentID < 0 {
		return nil, validationf("malformed parent id %d", parentID)
	}

	now := time.Now().UTC()
	node := &Node{
		Kind:        kind.name,
		ParentID:    parentID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if parentID == 0 {
			node.OwnerID = caller.UserID
			if kind.agentScoped {
				node.OwnerID = caller.AgentID
			}
		} else {
			parent, err := s.getNodeRow(ctx, tx, kind, parentID)
			if err != nil {
				return err
			}

			item, err := s.nodeScope(ctx, tx, kind, parent)
			if err != nil {
				return err
			}
			caps, err := s.resolveScope(ctx, tx, caller, item)
			if err != nil {
				return err
			}
			if err := requireCapability(caps, CapAppend); err != nil {
				return err
			}

			node.OwnerID = parent.OwnerID
			node.CategoryID = parent.CategoryID
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (kind, owner_id, parent_id, category_id, title, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, kind.name, node.OwnerID, node.ParentID, node.CategoryID, node.Title,
			nullString(node.Description), formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("inserting node: %w", err)
		}

		node.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting node id: %w", err)
		}

		// A root is its own category.
		if node.ParentID == 0 {
			node.CategoryID = node.ID
			if _, err := tx.ExecContext(ctx,
				`UPDATE nodes SET category_id = node_id WHERE node_id = ?`, node.ID); err != nil {
				return fmt.Errorf("assigning category id: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("created node", "kind", kind.name, "node_id", node.ID,
		"parent_id", node.ParentID, "category_id", node.CategoryID)
	return node, nil
}

// GetNode retrieves a node the caller can read.
// Returns ErrNotFound when the node doesn't exist or is outside the
// caller's visible scope.
func (s *SQLiteStore) GetNode(ctx context.Context, caller Identity, kind TreeKind, nodeID int64) (*Node, error) {
	if !kind.valid() {
		return nil, validationf("unknown tree kind %q", kind.name)
	}

	node, err := s.getNodeRow(ctx, s.db, kind, nodeID)
	if err != nil {
		return nil, err
	}

	item, err := s.nodeScope(ctx, s.db, kind, node)
	if err != nil {
		return nil, err
	}
	caps, err := s.resolveScope(ctx, s.db, caller, item)
	if err != nil {
		return nil, err
	}
	if err := requireCapability(caps, CapRead); err != nil {
		return nil, err
	}
	return node, nil
}

// ListChildren returns the direct children of parentID in creation
// order; it does not recurse.
//
// With parentID 0 it lists the caller's own tree roots: the caller's
// agent tree for agent-scoped kinds (or another same-user agent's via
// ownerAgentID), the caller's user trees otherwise. With a non-zero
// parentID the parent is resolved like GetNode, so children of shared
// categories are listable cross-user.
func (s *SQLiteStore) ListChildren(ctx context.Context, caller Identity, kind TreeKind, ownerAgentID, parentID int64) ([]*Node, error) {
	if !kind.valid() {
		return nil, validationf("unknown tree kind %q", kind.name)
	}

	if parentID != 0 {
		parent, err := s.GetNode(ctx, caller, kind, parentID)
		if err != nil {
			return nil, err
		}
		return s.listNodes(ctx,
			`SELECT node_id, kind, owner_id, parent_id, category_id, title, description, created_at, updated_at
			 FROM nodes WHERE kind = ? AND parent_id = ?
			 ORDER BY created_at, node_id`,
			kind.name, parent.ID)
	}

	ownerID := caller.UserID
	if kind.agentScoped {
		ownerID = caller.AgentID
		if ownerAgentID != 0 && ownerAgentID != caller.AgentID {
			userID, err := s.agentUserID(ctx, s.db, ownerAgentID)
			if err != nil {
				return nil, err
			}
			// Same-user agents may read each other's trees.
			if userID != caller.UserID {
				return nil, ErrNotFound
			}
			ownerID = ownerAgentID
		}
	}

	return s.listNodes(ctx,
		`SELECT node_id, kind, owner_id, parent_id, category_id, title, description, created_at, updated_at
		 FROM nodes WHERE kind = ? AND owner_id = ? AND parent_id = 0
		 ORDER BY created_at, node_id`,
		kind.name, ownerID)
}

// UpdateNode updates a node's title and/or description. Write capability
// is required; parent and category are immutable (no reparenting).
func (s *SQLiteStore) UpdateNode(ctx context.Context, caller Identity, kind TreeKind, nodeID int64, update NodeUpdate) (*Node, error) {
	if !kind.valid() {
		return nil, validationf("unknown tree kind %q", kind.name)
	}
	if update.Title == nil && update.Description == nil {
		return nil, validationf("no fields to update")
	}
	if update.Title != nil && *update.Title == "" {
		return nil, validationf("title cannot be empty")
	}

	var node *Node
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		node, err = s.getNodeRow(ctx, tx, kind, nodeID)
		if err != nil {
			return err
		}

		item, err := s.nodeScope(ctx, tx, kind, node)
		if err != nil {
			return err
		}
		caps, err := s.resolveScope(ctx, tx, caller, item)
		if err != nil {
			return err
		}
		if err := requireCapability(caps, CapWrite); err != nil {
			return err
		}

		if update.Title != nil {
			node.Title = *update.Title
		}
		if update.Description != nil {
			node.Description = *update.Description
		}
		node.UpdatedAt = time.Now().UTC()

		_, err = tx.ExecContext(ctx,
			`UPDATE nodes SET title = ?, description = ?, updated_at = ? WHERE node_id = ?`,
			node.Title, nullString(node.Description), formatTime(node.UpdatedAt), node.ID)
		if err != nil {
			return fmt.Errorf("updating node: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("updated node", "kind", kind.name, "node_id", node.ID)
	return node, nil
}

// DeleteNode deletes a node and every descendant in one transaction.
// Delete capability is required, so shared users can never delete.
// Deleting a shareable category root also removes every grant that
// references it; a grant must never dangle against a deleted object.
// Returns the number of nodes removed.
func (s *SQLiteStore) DeleteNode(ctx context.Context, caller Identity, kind TreeKind, nodeID int64) (int64, error) {
	if !kind.valid() {
		return 0, validationf("unknown tree kind %q", kind.name)
	}

	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		node, err := s.getNodeRow(ctx, tx, kind, nodeID)
		if err != nil {
			return err
		}

		item, err := s.nodeScope(ctx, tx, kind, node)
		if err != nil {
			return err
		}
		caps, err := s.resolveScope(ctx, tx, caller, item)
		if err != nil {
			return err
		}
		if err := requireCapability(caps, CapDelete); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			WITH RECURSIVE subtree(id) AS (
				SELECT node_id FROM nodes WHERE kind = ? AND node_id = ?
				UNION ALL
				SELECT n.node_id FROM nodes n
				INNER JOIN subtree s ON n.parent_id = s.id
				WHERE n.kind = ?
			)
			DELETE FROM nodes WHERE node_id IN (SELECT id FROM subtree)
		`, kind.name, node.ID, kind.name)
		if err != nil {
			return fmt.Errorf("deleting subtree: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}

		if node.ParentID == 0 && kind.Shareable() {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM shares WHERE object_type = ? AND object_id = ?`,
				string(kind.object), node.ID); err != nil {
				return fmt.Errorf("revoking grants on deleted root: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("deleted subtree", "kind", kind.name, "node_id", nodeID, "nodes", deleted)
	return deleted, nil
}

// getNodeRow fetches a node by kind and id without any scope check.
func (s *SQLiteStore) getNodeRow(ctx context.Context, q querier, kind TreeKind, nodeID int64) (*Node, error) {
	var node Node
	var description sql.NullString
	var createdAt, updatedAt string

	err := q.QueryRowContext(ctx, `
		SELECT node_id, kind, owner_id, parent_id, category_id, title, description, created_at, updated_at
		FROM nodes WHERE kind = ? AND node_id = ?
	`, kind.name, nodeID).Scan(
		&node.ID, &node.Kind, &node.OwnerID, &node.ParentID, &node.CategoryID,
		&node.Title, &description, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying node: %w", err)
	}

	node.Description = description.String
	if node.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if node.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &node, nil
}

// listNodes runs a node query and scans the result rows.
func (s *SQLiteStore) listNodes(ctx context.Context, query string, args ...any) ([]*Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		var node Node
		var description sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(
			&node.ID, &node.Kind, &node.OwnerID, &node.ParentID, &node.CategoryID,
			&node.Title, &description, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning node row: %w", err)
		}

		node.Description = description.String
		if node.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if node.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		nodes = append(nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating node rows: %w", err)
	}
	return nodes, nil
}
