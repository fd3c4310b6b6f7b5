package store

import (
	"time"

	"lineage/api/internal/snapshot"
)

type User struct {
	ID          int64
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

type Tree struct {
	ID          int64
	OwnerID     int64
	Name        string
	Description string
	IsPublic    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Memorial is a person record. TreeID is nil while it belongs to no tree.
type Memorial struct {
	ID          int64
	TreeID      *int64
	DisplayName string
	BirthDate   *time.Time
	DeathDate   *time.Time
	Biography   string
	PhotoRef    string
	IsPublic    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Relation struct {
	ID        int64
	TreeID    int64
	SourceID  int64
	TargetID  int64
	Type      snapshot.RelationType
	CreatedAt time.Time
}

type Permission struct {
	TreeID    int64
	UserID    int64
	Role      string
	GrantedBy int64
	GrantedAt time.Time
}

type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "DRAFT"
	DraftStatusSubmitted DraftStatus = "SUBMITTED"
	DraftStatusApproved  DraftStatus = "APPROVED"
	DraftStatusRejected  DraftStatus = "REJECTED"
	DraftStatusApplied   DraftStatus = "APPLIED"
)

// Active reports whether the editor can resume the draft.
func (s DraftStatus) Active() bool {
	return s == DraftStatusDraft || s == DraftStatusRejected
}

type Draft struct {
	ID       int64
	TreeID   int64
	EditorID int64
	Status   DraftStatus
	Working  snapshot.Snapshot
	Original snapshot.Snapshot
	// HasWorkingCopy is false for rows whose node/edge payloads were never written.
	HasWorkingCopy  bool
	Message         string
	ReviewMessage   string
	ReviewedBy      *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastSubmittedAt *time.Time
	ReviewedAt      *time.Time
}

type ReviewOutcome string

const (
	ReviewPending  ReviewOutcome = "PENDING"
	ReviewApproved ReviewOutcome = "APPROVED"
	ReviewRejected ReviewOutcome = "REJECTED"
)

// Submission is one submit event. TreeID, TreeName, EditorID and OwnerID are
// joined from the draft and tree when read.
type Submission struct {
	ID            int64
	DraftID       int64
	TreeID        int64
	TreeName      string
	EditorID      int64
	OwnerID       int64
	Message       string
	SubmittedAt   time.Time
	Outcome       ReviewOutcome
	ReviewMessage string
	ReviewedAt    *time.Time
}
