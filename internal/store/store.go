package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness rule, such
	// as a second active draft for the same tree and editor.
	ErrConflict = errors.New("conflict")
)

// DraftPayloadError reports a draft whose stored snapshot payload could not be
// encoded or decoded. It unwraps to the codec error.
type DraftPayloadError struct {
	DraftID int64
	TreeID  int64
	Part    string
	Err     error
}

func (e *DraftPayloadError) Error() string {
	return fmt.Sprintf("draft %d (tree %d) %s: %v", e.DraftID, e.TreeID, e.Part, e.Err)
}

func (e *DraftPayloadError) Unwrap() error {
	return e.Err
}

// Repository is the set of reads and writes available both directly and
// inside a transaction.
type Repository interface {
	GetUser(ctx context.Context, userID int64) (User, error)

	GetTree(ctx context.Context, treeID int64) (Tree, error)
	SaveTree(ctx context.Context, tree Tree) error
	ListTreeMemorials(ctx context.Context, treeID int64) ([]Memorial, error)
	ListTreeRelations(ctx context.Context, treeID int64) ([]Relation, error)
	AttachMemorial(ctx context.Context, treeID, memorialID, actorID int64) error
	DetachMemorial(ctx context.Context, treeID, memorialID, actorID int64) error
	GetMemorial(ctx context.Context, memorialID int64) (Memorial, error)
	CreateRelation(ctx context.Context, relation Relation) (Relation, error)
	DeleteRelation(ctx context.Context, relationID int64) error

	GetPermission(ctx context.Context, treeID, userID int64) (string, error)
	UpsertPermission(ctx context.Context, permission Permission) error
	DeletePermission(ctx context.Context, treeID, userID int64) error

	GetDraft(ctx context.Context, draftID int64) (Draft, error)
	// LockDraft reads a draft and holds it for the rest of the transaction.
	LockDraft(ctx context.Context, draftID int64) (Draft, error)
	FindActiveDraft(ctx context.Context, treeID, editorID int64) (Draft, error)
	ListDraftsByEditor(ctx context.Context, editorID int64) ([]Draft, error)
	InsertDraft(ctx context.Context, draft Draft) (Draft, error)
	UpdateDraft(ctx context.Context, draft Draft) error

	InsertSubmission(ctx context.Context, submission Submission) (Submission, error)
	GetSubmission(ctx context.Context, submissionID int64) (Submission, error)
	ResolvePendingSubmissions(ctx context.Context, draftID int64, outcome ReviewOutcome, message string, reviewedAt time.Time) error
	ListSubmissionsByOwner(ctx context.Context, ownerID int64, pendingOnly bool) ([]Submission, error)
	ListSubmissionsByEditor(ctx context.Context, editorID int64) ([]Submission, error)
}

// Store is a Repository that can also run a group of calls atomically.
type Store interface {
	Repository
	// Atomic runs fn in one transaction. Nothing fn wrote survives if it
	// returns an error.
	Atomic(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
}
