package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lineage/api/internal/lock"
	"lineage/api/internal/notify"
	"lineage/api/internal/rbac"
	"lineage/api/internal/snapshot"
	"lineage/api/internal/store"
)

// lockWait bounds how long a request queues behind another one holding the
// same draft or tree.
const lockWait = 10 * time.Second

type DraftMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

type RelationInput struct {
	SourceID     int64  `json:"sourceId"`
	TargetID     int64  `json:"targetId"`
	RelationType string `json:"relationType"`
}

// DraftView is what an editor or reviewer sees of a draft: the working copy
// and how it differs from the baseline.
type DraftView struct {
	Draft   store.Draft
	Working snapshot.Snapshot
	Changes snapshot.Changes
	// Canonical is true when the draft has no stored working copy yet and
	// Working was read from the live tree.
	Canonical bool
}

type Dependencies struct {
	Store    store.Store
	Gate     AccessGate
	Locker   lock.Locker
	Notifier NotificationSink
	Search   SearchIndex
	Archive  ChangeArchive
	Now      func() time.Time
}

type Service struct {
	store    store.Store
	gate     AccessGate
	locks    lock.Locker
	notifier NotificationSink
	search   SearchIndex
	archive  ChangeArchive
	now      func() time.Time
}

// New builds the service. Only Store is required; Search and Archive stay
// disabled when nil.
func New(deps Dependencies) *Service {
	service := &Service{
		store:    deps.Store,
		gate:     deps.Gate,
		locks:    deps.Locker,
		notifier: deps.Notifier,
		search:   deps.Search,
		archive:  deps.Archive,
		now:      deps.Now,
	}
	if service.gate == nil {
		service.gate = rbac.NewGate(deps.Store)
	}
	if service.locks == nil {
		service.locks = lock.NewLocalLocker()
	}
	if service.notifier == nil {
		service.notifier = notify.LogSink{}
	}
	if service.now == nil {
		service.now = func() time.Time { return time.Now().UTC() }
	}
	return service
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Readiness pings the store and, when it can be pinged, the lock backend.
// A nil entry means the dependency answered.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.store.Ping(ctx)}
	if locks, ok := s.locks.(pinger); ok {
		checks["locks"] = locks.Ping(ctx)
	}
	return checks
}

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	release, err := s.locks.Acquire(acquireCtx, key)
	if errors.Is(err, lock.ErrNotAcquired) {
		return &DomainError{Status: ErrLockContention.Status, Code: ErrLockContention.Code, Message: ErrLockContention.Message, Cause: err}
	}
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer release()
	return fn()
}

func (s *Service) requireRole(ctx context.Context, treeID, userID int64, min rbac.Role) error {
	ok, err := s.gate.HasAccess(ctx, treeID, userID, min)
	if err != nil {
		return fmt.Errorf("check access to tree %d: %w", treeID, err)
	}
	if !ok {
		return forbidden("user %d lacks %s access to tree %d", userID, min, treeID)
	}
	return nil
}

// GetOrCreateActiveDraft returns the editor's resumable draft for the tree,
// creating one from the live tree when none exists. A rejected draft is reset
// to its baseline before it is returned.
func (s *Service) GetOrCreateActiveDraft(ctx context.Context, treeID, editorID int64) (store.Draft, error) {
	if _, err := s.store.GetTree(ctx, treeID); err != nil {
		return store.Draft{}, translateStoreError(err, "tree")
	}
	if err := s.requireRole(ctx, treeID, editorID, rbac.RoleEditor); err != nil {
		return store.Draft{}, err
	}

	var draft store.Draft
	err := s.withLock(ctx, lock.EditorKey(treeID, editorID), func() error {
		var err error
		draft, err = s.resolveActiveDraft(ctx, treeID, editorID)
		if errors.Is(err, store.ErrConflict) {
			// Created concurrently by another process; read it back.
			draft, err = s.resolveActiveDraft(ctx, treeID, editorID)
		}
		return err
	})
	if err != nil {
		return store.Draft{}, translateStoreError(err, "draft")
	}
	return draft, nil
}

func (s *Service) resolveActiveDraft(ctx context.Context, treeID, editorID int64) (store.Draft, error) {
	var draft store.Draft
	err := s.store.Atomic(ctx, func(repo store.Repository) error {
		existing, err := repo.FindActiveDraft(ctx, treeID, editorID)
		if err == nil {
			if existing.Status == store.DraftStatusRejected {
				resetDraft(&existing, s.now())
				if err := repo.UpdateDraft(ctx, existing); err != nil {
					return err
				}
			}
			draft = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		base, _, err := canonicalSnapshot(ctx, repo, treeID)
		if err != nil {
			return err
		}
		draft, err = repo.InsertDraft(ctx, store.Draft{
			TreeID:         treeID,
			EditorID:       editorID,
			Status:         store.DraftStatusDraft,
			Working:        base.Clone(),
			Original:       base,
			HasWorkingCopy: true,
		})
		return err
	})
	return draft, err
}

// resetDraft discards the working copy of a rejected draft and reopens it.
func resetDraft(draft *store.Draft, now time.Time) {
	draft.Status = store.DraftStatusDraft
	draft.Working = draft.Original.Clone()
	draft.ReviewMessage = ""
	draft.ReviewedBy = nil
	draft.ReviewedAt = nil
	draft.LastSubmittedAt = nil
	draft.UpdatedAt = now
}

// mutateDraft loads the draft under its lock, re-checks that editorID may
// still edit the tree and persists whatever fn does to the working copy.
// Nothing is written when fn fails.
func (s *Service) mutateDraft(ctx context.Context, draftID, editorID int64, fn func(repo store.Repository, draft *store.Draft) error) (store.Draft, error) {
	current, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return store.Draft{}, translateStoreError(err, "draft")
	}
	if current.EditorID != editorID {
		return store.Draft{}, forbidden("draft %d belongs to another editor", draftID)
	}
	if err := s.requireRole(ctx, current.TreeID, editorID, rbac.RoleEditor); err != nil {
		return store.Draft{}, err
	}

	var updated store.Draft
	err = s.withLock(ctx, lock.DraftKey(draftID), func() error {
		return s.store.Atomic(ctx, func(repo store.Repository) error {
			draft, err := repo.LockDraft(ctx, draftID)
			if err != nil {
				return err
			}
			if draft.Status != store.DraftStatusDraft {
				return invalidState("draft %d is %s", draftID, draft.Status)
			}
			if !draft.HasWorkingCopy {
				base, _, err := canonicalSnapshot(ctx, repo, draft.TreeID)
				if err != nil {
					return err
				}
				draft.Working, draft.Original, draft.HasWorkingCopy = base.Clone(), base, true
			}
			if err := fn(repo, &draft); err != nil {
				return err
			}
			draft.UpdatedAt = s.now()
			if err := repo.UpdateDraft(ctx, draft); err != nil {
				return err
			}
			updated = draft
			return nil
		})
	})
	if err != nil {
		return store.Draft{}, translateStoreError(err, "draft")
	}
	return updated, nil
}

func (s *Service) UpdateDraft(ctx context.Context, draftID, editorID int64, input DraftMetadata) (store.Draft, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Draft{}, validation("name is required")
	}
	return s.mutateDraft(ctx, draftID, editorID, func(_ store.Repository, draft *store.Draft) error {
		draft.Working.Meta = snapshot.Meta{
			Name:        name,
			Description: strings.TrimSpace(input.Description),
			IsPublic:    input.IsPublic,
		}
		return nil
	})
}

func (s *Service) AddMemorialToDraft(ctx context.Context, treeID, memorialID, editorID int64) (store.Draft, error) {
	active, err := s.GetOrCreateActiveDraft(ctx, treeID, editorID)
	if err != nil {
		return store.Draft{}, err
	}
	return s.mutateDraft(ctx, active.ID, editorID, func(repo store.Repository, draft *store.Draft) error {
		memorial, err := repo.GetMemorial(ctx, memorialID)
		if err != nil {
			return translateStoreError(err, "memorial")
		}
		if memorial.TreeID != nil && *memorial.TreeID != treeID {
			return invalidState("memorial %d belongs to another tree", memorialID)
		}
		err = draft.Working.AddNode(nodeFromMemorial(memorial))
		if errors.Is(err, snapshot.ErrNodeExists) {
			return alreadyExists("memorial %d is already in the draft", memorialID)
		}
		return err
	})
}

func (s *Service) RemoveMemorialFromDraft(ctx context.Context, treeID, memorialID, editorID int64) (store.Draft, error) {
	active, err := s.GetOrCreateActiveDraft(ctx, treeID, editorID)
	if err != nil {
		return store.Draft{}, err
	}
	return s.mutateDraft(ctx, active.ID, editorID, func(repo store.Repository, draft *store.Draft) error {
		if _, err := repo.GetMemorial(ctx, memorialID); err != nil {
			return translateStoreError(err, "memorial")
		}
		_, err := draft.Working.RemoveNode(memorialID)
		if errors.Is(err, snapshot.ErrNodeMissing) {
			return notFound("memorial %d is not in the draft", memorialID)
		}
		return err
	})
}

// AddRelationToDraft proposes a new relation between two memorials of the
// draft. The returned ref identifies the proposal until it is applied.
func (s *Service) AddRelationToDraft(ctx context.Context, treeID, editorID int64, input RelationInput) (store.Draft, snapshot.EdgeRef, error) {
	relationType, err := snapshot.ParseRelationType(input.RelationType)
	if err != nil {
		return store.Draft{}, snapshot.EdgeRef{}, validation("relationType must be one of PARENT, CHILD, SPOUSE, SIBLING, GRANDPARENT, GRANDCHILD, UNCLE_AUNT, NEPHEW_NIECE")
	}
	if input.SourceID <= 0 || input.TargetID <= 0 {
		return store.Draft{}, snapshot.EdgeRef{}, validation("sourceId and targetId are required")
	}
	if input.SourceID == input.TargetID {
		return store.Draft{}, snapshot.EdgeRef{}, validation("a memorial cannot be related to itself")
	}

	active, err := s.GetOrCreateActiveDraft(ctx, treeID, editorID)
	if err != nil {
		return store.Draft{}, snapshot.EdgeRef{}, err
	}
	ref := snapshot.NewProposed()
	updated, err := s.mutateDraft(ctx, active.ID, editorID, func(repo store.Repository, draft *store.Draft) error {
		for _, endpoint := range []int64{input.SourceID, input.TargetID} {
			if _, err := repo.GetMemorial(ctx, endpoint); err != nil {
				return translateStoreError(err, fmt.Sprintf("memorial %d", endpoint))
			}
			if !draft.Working.HasNode(endpoint) {
				return notFound("memorial %d is not in the draft", endpoint)
			}
		}
		return draft.Working.AddEdge(snapshot.EdgeSummary{
			Ref:      ref,
			TreeID:   treeID,
			SourceID: input.SourceID,
			TargetID: input.TargetID,
			Type:     relationType,
		})
	})
	if err != nil {
		return store.Draft{}, snapshot.EdgeRef{}, err
	}
	return updated, ref, nil
}

func (s *Service) RemoveRelationFromDraft(ctx context.Context, treeID int64, ref snapshot.EdgeRef, editorID int64) (store.Draft, error) {
	active, err := s.GetOrCreateActiveDraft(ctx, treeID, editorID)
	if err != nil {
		return store.Draft{}, err
	}
	return s.mutateDraft(ctx, active.ID, editorID, func(_ store.Repository, draft *store.Draft) error {
		err := draft.Working.RemoveEdge(ref)
		if errors.Is(err, snapshot.ErrEdgeMissing) {
			return notFound("relation %s is not in the draft", ref)
		}
		return err
	})
}

// HasAnyChanges reports whether the working copy differs from the baseline.
func HasAnyChanges(draft store.Draft) bool {
	if !draft.HasWorkingCopy {
		return false
	}
	return !snapshot.Equal(draft.Working, draft.Original)
}

// DraftContents returns the draft's working copy, or the live tree when the
// draft has none stored yet. Only the draft's editor and the tree owner may
// read it.
func (s *Service) DraftContents(ctx context.Context, draftID, userID int64) (DraftView, error) {
	draft, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return DraftView{}, translateStoreError(err, "draft")
	}
	if draft.EditorID != userID {
		if err := s.requireRole(ctx, draft.TreeID, userID, rbac.RoleOwner); err != nil {
			return DraftView{}, err
		}
	}
	if !draft.HasWorkingCopy {
		base, _, err := canonicalSnapshot(ctx, s.store, draft.TreeID)
		if err != nil {
			return DraftView{}, translateStoreError(err, "tree")
		}
		return DraftView{Draft: draft, Working: base, Changes: snapshot.Diff(base, base), Canonical: true}, nil
	}
	return DraftView{Draft: draft, Working: draft.Working, Changes: snapshot.Diff(draft.Original, draft.Working)}, nil
}

func (s *Service) ListDrafts(ctx context.Context, editorID int64) ([]store.Draft, error) {
	drafts, err := s.store.ListDraftsByEditor(ctx, editorID)
	if err != nil {
		return nil, translateStoreError(err, "draft")
	}
	return drafts, nil
}

// SubmitDraft records a submission and notifies the tree owner. The draft
// stays in DRAFT so the editor can keep revising and submit again.
func (s *Service) SubmitDraft(ctx context.Context, draftID, editorID int64, message string) (store.Submission, error) {
	current, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return store.Submission{}, translateStoreError(err, "draft")
	}
	if current.EditorID != editorID {
		return store.Submission{}, forbidden("draft %d belongs to another editor", draftID)
	}
	if err := s.requireRole(ctx, current.TreeID, editorID, rbac.RoleEditor); err != nil {
		return store.Submission{}, err
	}

	message = strings.TrimSpace(message)
	var submission store.Submission
	err = s.withLock(ctx, lock.DraftKey(draftID), func() error {
		return s.store.Atomic(ctx, func(repo store.Repository) error {
			draft, err := repo.LockDraft(ctx, draftID)
			if err != nil {
				return err
			}
			if draft.Status != store.DraftStatusDraft {
				return invalidState("draft %d is %s", draftID, draft.Status)
			}
			if !HasAnyChanges(draft) {
				return ErrNoChanges
			}
			now := s.now()
			submission, err = repo.InsertSubmission(ctx, store.Submission{
				DraftID:     draftID,
				Message:     message,
				SubmittedAt: now,
				Outcome:     store.ReviewPending,
			})
			if err != nil {
				return err
			}
			draft.Message = message
			draft.LastSubmittedAt = &now
			return repo.UpdateDraft(ctx, draft)
		})
	})
	if err != nil {
		return store.Submission{}, translateStoreError(err, "draft")
	}

	notice := notify.OwnerNotice{
		OwnerID:      submission.OwnerID,
		EditorID:     submission.EditorID,
		TreeID:       submission.TreeID,
		TreeName:     submission.TreeName,
		DraftID:      submission.DraftID,
		SubmissionID: submission.ID,
		Message:      submission.Message,
		SubmittedAt:  submission.SubmittedAt,
	}
	if err := s.notifier.NotifyOwner(ctx, notice); err != nil {
		log.Printf("notify owner %d of submission %d: %v", notice.OwnerID, notice.SubmissionID, err)
	}
	return submission, nil
}

// ApproveDraft applies a submitted draft to the live tree. Only the tree owner
// may approve, and the draft must have been submitted at least once.
func (s *Service) ApproveDraft(ctx context.Context, draftID, reviewerID int64, reviewMessage string) (ApplyResult, error) {
	var result ApplyResult
	reviewed, err := s.review(ctx, draftID, reviewerID, store.ReviewApproved, reviewMessage, func(repo store.Repository, draft *store.Draft) error {
		applied, err := applyDraft(ctx, repo, *draft, reviewerID)
		if err != nil {
			return err
		}
		draft.Status = store.DraftStatusApplied
		result = applied
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	result.Draft = reviewed
	s.afterApply(ctx, result, reviewerID)
	return result, nil
}

// RejectDraft closes the review without touching the live tree. The editor's
// next GetOrCreateActiveDraft call resets the draft.
func (s *Service) RejectDraft(ctx context.Context, draftID, reviewerID int64, reviewMessage string) (store.Draft, error) {
	return s.review(ctx, draftID, reviewerID, store.ReviewRejected, reviewMessage, func(_ store.Repository, draft *store.Draft) error {
		draft.Status = store.DraftStatusRejected
		return nil
	})
}

// review runs decide on the locked draft, stamps the review fields and
// resolves every pending submission with outcome, all in one transaction.
func (s *Service) review(ctx context.Context, draftID, reviewerID int64, outcome store.ReviewOutcome, reviewMessage string, decide func(store.Repository, *store.Draft) error) (store.Draft, error) {
	current, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return store.Draft{}, translateStoreError(err, "draft")
	}
	reviewMessage = strings.TrimSpace(reviewMessage)

	var reviewed store.Draft
	err = s.withLock(ctx, lock.TreeKey(current.TreeID), func() error {
		return s.withLock(ctx, lock.DraftKey(draftID), func() error {
			return s.store.Atomic(ctx, func(repo store.Repository) error {
				draft, err := repo.LockDraft(ctx, draftID)
				if err != nil {
					return err
				}
				tree, err := repo.GetTree(ctx, draft.TreeID)
				if err != nil {
					return translateStoreError(err, "tree")
				}
				if tree.OwnerID != reviewerID {
					return forbidden("only the owner of tree %d may review its drafts", tree.ID)
				}
				if draft.Status != store.DraftStatusDraft || draft.LastSubmittedAt == nil {
					return invalidState("draft %d is not awaiting review", draftID)
				}
				if err := decide(repo, &draft); err != nil {
					return err
				}

				now := s.now()
				draft.ReviewMessage = reviewMessage
				draft.ReviewedBy = &reviewerID
				draft.ReviewedAt = &now
				draft.UpdatedAt = now
				if err := repo.UpdateDraft(ctx, draft); err != nil {
					return err
				}
				if err := repo.ResolvePendingSubmissions(ctx, draftID, outcome, reviewMessage, now); err != nil {
					return err
				}
				reviewed = draft
				return nil
			})
		})
	})
	if err != nil {
		return store.Draft{}, translateStoreError(err, "draft")
	}
	return reviewed, nil
}

// afterApply refreshes the search index and archives the change set. Both are
// best effort; the apply has already committed.
func (s *Service) afterApply(ctx context.Context, result ApplyResult, reviewerID int64) {
	draft := result.Draft
	if s.search != nil {
		doc, err := s.treeDocument(ctx, draft.TreeID, result.DetachedNodes)
		if err != nil {
			log.Printf("build search document for tree %d: %v", draft.TreeID, err)
		} else {
			s.search.IndexTree(doc)
		}
	}
	if s.archive != nil {
		changeSet := archiveChangeSet(result, reviewerID)
		if err := s.archive.Put(ctx, changeSet); err != nil {
			log.Printf("archive change set for draft %d: %v", draft.ID, err)
		}
	}
}

func (s *Service) GrantAccess(ctx context.Context, treeID, actorID, userID int64, role string) error {
	granted := rbac.Normalize(strings.ToLower(strings.TrimSpace(role)))
	if !granted.Grantable() {
		return validation("role must be one of viewer, editor, admin")
	}
	tree, err := s.store.GetTree(ctx, treeID)
	if err != nil {
		return translateStoreError(err, "tree")
	}
	if err := s.requireRole(ctx, treeID, actorID, rbac.RoleAdmin); err != nil {
		return err
	}
	if userID == tree.OwnerID {
		return validation("the tree owner already has full access")
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return translateStoreError(err, "user")
	}
	err = s.store.UpsertPermission(ctx, store.Permission{
		TreeID:    treeID,
		UserID:    userID,
		Role:      string(granted),
		GrantedBy: actorID,
		GrantedAt: s.now(),
	})
	return translateStoreError(err, "permission")
}

func (s *Service) RevokeAccess(ctx context.Context, treeID, actorID, userID int64) error {
	if _, err := s.store.GetTree(ctx, treeID); err != nil {
		return translateStoreError(err, "tree")
	}
	if err := s.requireRole(ctx, treeID, actorID, rbac.RoleAdmin); err != nil {
		return err
	}
	return translateStoreError(s.store.DeletePermission(ctx, treeID, userID), "permission")
}
