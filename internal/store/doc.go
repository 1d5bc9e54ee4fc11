// ABOUTME: Package documentation for the lucycore persistence layer
// ABOUTME: Describes the scope model that every operation is checked against

// Package store implements the shared context store: principals,
// hierarchical trees, memories, shares, secrets, handoffs, and
// sessions, all backed by a single SQLite database.
//
// Every operation takes the caller's resolved Identity and checks it
// against one enumerated scope policy before touching data. Ownership
// is static (an item belongs to an agent or a user), sharing is an
// overlay of per-category grants, and anything the policy doesn't
// grant is denied. Unreadable items are reported as ErrNotFound so
// their existence never leaks; readable items missing a capability
// yield ErrUnauthorized.
//
// Trees store their category root id on every node, so permission
// resolution is a constant number of indexed lookups regardless of
// depth. Secrets are sealed by the vault cipher before storage and
// fail closed on retrieval. Handoffs are consumed by a conditional
// update, giving exactly-once pickup under concurrent sessions.
package store
