// ABOUTME: Domain types, errors, and the capability model for lucycore persistence
// ABOUTME: Defines tree kinds, grant levels, and the enumerated scope policy constants

package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist within
// the caller's visible scope. It is deliberately indistinguishable from
// "exists but forbidden to read" so that item existence never leaks.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized is returned when the caller can see an item but lacks
// the capability the operation requires.
var ErrUnauthorized = errors.New("insufficient permission")

// ErrApprovalPending is returned when a memory mutation or deletion is
// attempted without a recorded user approval.
var ErrApprovalPending = errors.New("memory change awaiting user approval")

// ErrAlreadyPickedUp is returned when a handoff has already been consumed.
var ErrAlreadyPickedUp = errors.New("handoff already picked up")

// ValidationError reports malformed input: a bad permission level, a
// self-share, an empty title, or an attempt to reparent across trees.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Identity is the resolved (user, agent) principal attached to every
// operation. It is always passed explicitly; the store holds no ambient
// caller state.
type Identity struct {
	UserID    int64
	UserName  string
	AgentID   int64
	AgentName string
}

// Capability is a bitmask of the actions a resolved permission check
// grants on an item.
type Capability uint8

const (
	CapRead Capability = 1 << iota
	CapAppend
	CapWrite
	CapDelete
)

// capOwner is the full capability set held by an item's owner.
const capOwner = CapRead | CapAppend | CapWrite | CapDelete

// Has reports whether every capability in want is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// ObjectType identifies a shareable tree kind in share grants.
type ObjectType string

const (
	ObjectProject ObjectType = "project"
	ObjectHint    ObjectType = "hint"
	ObjectWiki    ObjectType = "wiki"
)

func (o ObjectType) valid() bool {
	switch o {
	case ObjectProject, ObjectHint, ObjectWiki:
		return true
	}
	return false
}

// grantCapabilities maps a share permission level to the fixed capability
// table: 1=read, 2=read+append, 3=read+write. A grant never confers
// delete, and the resolver never widens beyond this table.
func grantCapabilities(level int) Capability {
	switch level {
	case 1:
		return CapRead
	case 2:
		return CapRead | CapAppend
	case 3:
		return CapRead | CapAppend | CapWrite
	}
	return 0
}

// TreeKind identifies one of the hierarchical node collections. All kinds
// share one storage layout; they differ only in which principal owns a
// tree (agent or user) and whether roots can be shared cross-user.
type TreeKind struct {
	name        string
	agentScoped bool
	object      ObjectType // empty when the kind is never shared
}

var (
	// TreeAlwaysLoad holds per-agent context loaded at session start.
	TreeAlwaysLoad = TreeKind{name: "always_load", agentScoped: true}
	// TreePreferences holds per-agent preference categories.
	TreePreferences = TreeKind{name: "preferences", agentScoped: true}
	// TreeHints holds user-scoped hint trees; roots are shareable.
	TreeHints = TreeKind{name: "hints", object: ObjectHint}
	// TreeProjects holds user-scoped project outlines; a root node is the
	// project header, descendants are its sections.
	TreeProjects = TreeKind{name: "projects", object: ObjectProject}
	// TreeWikis holds user-scoped wiki outlines; roots are shareable.
	TreeWikis = TreeKind{name: "wikis", object: ObjectWiki}
)

var treeKinds = []TreeKind{TreeAlwaysLoad, TreePreferences, TreeHints, TreeProjects, TreeWikis}

// Name returns the kind's stable storage name.
func (k TreeKind) Name() string { return k.name }

// AgentScoped reports whether trees of this kind are owned by an agent
// rather than a user.
func (k TreeKind) AgentScoped() bool { return k.agentScoped }

// Shareable reports whether category roots of this kind can be granted
// to other users.
func (k TreeKind) Shareable() bool { return k.object != "" }

func (k TreeKind) valid() bool {
	for _, known := range treeKinds {
		if known.name == k.name {
			return true
		}
	}
	return false
}

// treeKindByObject returns the tree kind backing a share object type.
func treeKindByObject(o ObjectType) (TreeKind, bool) {
	for _, k := range treeKinds {
		if k.object == o {
			return k, true
		}
	}
	return TreeKind{}, false
}

// User is an identity root. Users are created by provisioning and never
// mutated by core operations.
type User struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Agent belongs to exactly one user and carries a unique API key.
type Agent struct {
	ID        int64
	UserID    int64
	Name      string
	APIKey    string
	CreatedAt time.Time
}

// Node is one entry in a hierarchical, owner-scoped tree. ParentID 0 is
// the root sentinel. CategoryID equals the id of the node's unique root
// ancestor (its own id for roots) and never changes, so permission and
// sharing checks cost one indexed lookup instead of an ancestor walk.
type Node struct {
	ID          int64
	Kind        string
	OwnerID     int64 // agent id or user id, per the kind's scope
	ParentID    int64
	CategoryID  int64
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NodeUpdate holds the mutable node fields. Nil means leave unchanged;
// parent and category are never updatable (no reparenting).
type NodeUpdate struct {
	Title       *string
	Description *string
}

// Memory is a flat agent-owned item. Creation is free; mutation and
// deletion require a recorded user approval.
type Memory struct {
	ID          int64
	AgentID     int64
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MemoryUpdate holds the mutable memory fields. Nil means leave unchanged.
type MemoryUpdate struct {
	Title       *string
	Description *string
}

// Share is a cross-user grant over a whole category tree. ObjectID is
// always a category root id, so one grant covers every descendant.
type Share struct {
	ID              int64
	FromUserID      int64
	FromUserName    string
	ToUserID        int64
	ToUserName      string
	ObjectType      ObjectType
	ObjectID        int64
	PermissionLevel int
	CreatedAt       time.Time
}

// SecretInfo describes a stored secret without exposing its value.
type SecretInfo struct {
	Key       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Handoff is a single-consumption note left for a (possibly later)
// session of the owning agent. PickedUpAt transitions from nil to a
// timestamp exactly once and is never reset.
type Handoff struct {
	ID         int64
	AgentID    int64
	Title      string
	Prompt     string
	CreatedAt  time.Time
	PickedUpAt *time.Time
}

// Session records a session start for continuity across agent runs.
type Session struct {
	ID        int64
	AgentID   int64
	Project   string
	StartedAt time.Time
}
