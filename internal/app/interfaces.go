package app

import (
	"context"

	"lineage/api/internal/archive"
	"lineage/api/internal/notify"
	"lineage/api/internal/rbac"
	"lineage/api/internal/search"
	"lineage/api/internal/store"
)

// AccessGate answers whether a user holds at least a role on a tree.
type AccessGate interface {
	HasAccess(ctx context.Context, treeID, userID int64, min rbac.Role) (bool, error)
}

// NotificationSink tells a tree owner that a draft was submitted.
type NotificationSink interface {
	NotifyOwner(ctx context.Context, notice notify.OwnerNotice) error
}

// SearchIndex is refreshed after a draft is applied and queried by the
// search endpoint.
type SearchIndex interface {
	IndexTree(doc search.TreeDocument)
	Search(ctx context.Context, q search.Query) search.Response
}

// ChangeArchive keeps a record of every applied change set.
type ChangeArchive interface {
	Put(ctx context.Context, changeSet archive.ChangeSet) error
}

// CanonicalTreeReader reads the live tree a draft was forked from.
type CanonicalTreeReader interface {
	GetTree(ctx context.Context, treeID int64) (store.Tree, error)
	ListTreeMemorials(ctx context.Context, treeID int64) ([]store.Memorial, error)
	ListTreeRelations(ctx context.Context, treeID int64) ([]store.Relation, error)
}

// CanonicalTreeWriter changes tree metadata and membership.
type CanonicalTreeWriter interface {
	SaveTree(ctx context.Context, tree store.Tree) error
	AttachMemorial(ctx context.Context, treeID, memorialID, actorID int64) error
	DetachMemorial(ctx context.Context, treeID, memorialID, actorID int64) error
}

type EdgeRepository interface {
	CreateRelation(ctx context.Context, relation store.Relation) (store.Relation, error)
	DeleteRelation(ctx context.Context, relationID int64) error
}

type NodeRepository interface {
	GetMemorial(ctx context.Context, memorialID int64) (store.Memorial, error)
}

// applyRepository is everything the merge engine touches inside the apply
// transaction.
type applyRepository interface {
	CanonicalTreeReader
	CanonicalTreeWriter
	EdgeRepository
	NodeRepository
}

var _ applyRepository = store.Repository(nil)
