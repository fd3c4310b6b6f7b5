package rbac

import (
	"context"
	"errors"
	"fmt"

	"lineage/api/internal/store"
)

type Role string

const (
	RoleNone   Role = ""
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	// RoleOwner is implied by tree ownership and never stored as a grant.
	RoleOwner Role = "owner"
)

func (r Role) rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	case RoleOwner:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return r.rank() > 0 && r.rank() >= min.rank()
}

// Grantable reports whether the role can be stored as an explicit permission.
func (r Role) Grantable() bool {
	return r == RoleViewer || r == RoleEditor || r == RoleAdmin
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin, RoleOwner:
		return Role(role)
	default:
		return RoleNone
	}
}

type permissionReader interface {
	GetTree(ctx context.Context, treeID int64) (store.Tree, error)
	GetPermission(ctx context.Context, treeID, userID int64) (string, error)
}

// Gate resolves a user's effective role on a tree. It reads the store on
// every call so revoked grants take effect immediately.
type Gate struct {
	store permissionReader
}

func NewGate(store permissionReader) *Gate {
	return &Gate{store: store}
}

func (g *Gate) RoleFor(ctx context.Context, treeID, userID int64) (Role, error) {
	tree, err := g.store.GetTree(ctx, treeID)
	if err != nil {
		return RoleNone, err
	}
	if tree.OwnerID == userID {
		return RoleOwner, nil
	}
	granted, err := g.store.GetPermission(ctx, treeID, userID)
	if err != nil {
		return RoleNone, fmt.Errorf("read permission: %w", err)
	}
	role := Normalize(granted)
	if role == RoleNone && tree.IsPublic {
		return RoleViewer, nil
	}
	return role, nil
}

// HasAccess reports whether userID holds at least min on treeID. A missing
// tree is reported as no access rather than an error.
func (g *Gate) HasAccess(ctx context.Context, treeID, userID int64, min Role) (bool, error) {
	role, err := g.RoleFor(ctx, treeID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role.AtLeast(min), nil
}
