package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"lineage/api/internal/snapshot"
)

type fixture struct {
	owner    User
	editor   User
	tree     Tree
	memorial Memorial
}

func seedFixture(t *testing.T, ctx context.Context, s interface {
	InsertUser(context.Context, User) (User, error)
	InsertTree(context.Context, Tree) (Tree, error)
	InsertMemorial(context.Context, Memorial) (Memorial, error)
}) fixture {
	t.Helper()
	owner, err := s.InsertUser(ctx, User{DisplayName: "Owner", Email: "owner@example.com"})
	if err != nil {
		t.Fatalf("insert owner: %v", err)
	}
	editor, err := s.InsertUser(ctx, User{DisplayName: "Editor", Email: "editor@example.com"})
	if err != nil {
		t.Fatalf("insert editor: %v", err)
	}
	tree, err := s.InsertTree(ctx, Tree{OwnerID: owner.ID, Name: "Family"})
	if err != nil {
		t.Fatalf("insert tree: %v", err)
	}
	memorial, err := s.InsertMemorial(ctx, Memorial{TreeID: &tree.ID, DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("insert memorial: %v", err)
	}
	return fixture{owner: owner, editor: editor, tree: tree, memorial: memorial}
}

func sampleDraft(f fixture) Draft {
	node := snapshot.NodeSummary{ID: f.memorial.ID, DisplayName: f.memorial.DisplayName}
	working := snapshot.Snapshot{
		Meta:  snapshot.Meta{Name: "Family"},
		Nodes: []snapshot.NodeSummary{node},
		Edges: []snapshot.EdgeSummary{},
	}
	return Draft{
		TreeID:         f.tree.ID,
		EditorID:       f.editor.ID,
		Status:         DraftStatusDraft,
		Working:        working,
		Original:       working.Clone(),
		HasWorkingCopy: true,
	}
}

func TestMemoryStoreAtomicRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	f := seedFixture(t, ctx, s)

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(repo Repository) error {
		if err := repo.SaveTree(ctx, Tree{ID: f.tree.ID, Name: "Renamed"}); err != nil {
			return err
		}
		if err := repo.DetachMemorial(ctx, f.tree.ID, f.memorial.ID, f.owner.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	tree, err := s.GetTree(ctx, f.tree.ID)
	if err != nil {
		t.Fatalf("get tree: %v", err)
	}
	if tree.Name != "Family" {
		t.Fatalf("expected rollback of tree name, got %q", tree.Name)
	}
	memorials, err := s.ListTreeMemorials(ctx, f.tree.ID)
	if err != nil {
		t.Fatalf("list memorials: %v", err)
	}
	if len(memorials) != 1 {
		t.Fatalf("expected memorial to stay attached, got %d", len(memorials))
	}
}

func TestMemoryStoreAtomicCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	f := seedFixture(t, ctx, s)

	err := s.Atomic(ctx, func(repo Repository) error {
		return repo.SaveTree(ctx, Tree{ID: f.tree.ID, Name: "Renamed", IsPublic: true})
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}
	tree, _ := s.GetTree(ctx, f.tree.ID)
	if tree.Name != "Renamed" || !tree.IsPublic {
		t.Fatalf("unexpected tree after commit: %+v", tree)
	}
}

func TestMemoryStoreOneActiveDraftPerEditor(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	f := seedFixture(t, ctx, s)

	first, err := s.InsertDraft(ctx, sampleDraft(f))
	if err != nil {
		t.Fatalf("insert draft: %v", err)
	}
	if _, err := s.InsertDraft(ctx, sampleDraft(f)); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for second active draft, got %v", err)
	}

	first.Status = DraftStatusApplied
	if err := s.UpdateDraft(ctx, first); err != nil {
		t.Fatalf("update draft: %v", err)
	}
	if _, err := s.InsertDraft(ctx, sampleDraft(f)); err != nil {
		t.Fatalf("expected new draft once the previous one is applied, got %v", err)
	}
}

func TestMemoryStoreDraftPayloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	f := seedFixture(t, ctx, s)

	draft := sampleDraft(f)
	proposed := snapshot.Proposed("abc")
	other, _ := s.InsertMemorial(ctx, Memorial{DisplayName: "Grace"})
	draft.Working.Nodes = append(draft.Working.Nodes, snapshot.NodeSummary{ID: other.ID, DisplayName: "Grace"})
	draft.Working.Edges = append(draft.Working.Edges, snapshot.EdgeSummary{
		Ref:      proposed,
		TreeID:   f.tree.ID,
		SourceID: f.memorial.ID,
		TargetID: other.ID,
		Type:     snapshot.RelationSpouse,
	})

	inserted, err := s.InsertDraft(ctx, draft)
	if err != nil {
		t.Fatalf("insert draft: %v", err)
	}
	loaded, err := s.GetDraft(ctx, inserted.ID)
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if !loaded.HasWorkingCopy {
		t.Fatal("expected working copy")
	}
	if !snapshot.Equal(loaded.Working, draft.Working) {
		t.Fatalf("working copy changed across storage: %+v", loaded.Working)
	}
	if !snapshot.Equal(loaded.Original, draft.Original) {
		t.Fatalf("original changed across storage: %+v", loaded.Original)
	}
}

func TestMemoryStoreCorruptPayloadSurfacesCodecError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	f := seedFixture(t, ctx, s)

	draft, err := s.InsertDraft(ctx, sampleDraft(f))
	if err != nil {
		t.Fatalf("insert draft: %v", err)
	}
	if err := s.PutRawDraftPayload(draft.ID, []byte(`{"broken"`), []byte(`[]`)); err != nil {
		t.Fatalf("put payload: %v", err)
	}
	if _, err := s.GetDraft(ctx, draft.ID); !errors.Is(err, snapshot.ErrCodec) {
		t.Fatalf("expected codec error, got %v", err)
	}
}

func TestMemoryStoreAttachRejectsForeignMemorial(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	f := seedFixture(t, ctx, s)

	otherTree, err := s.InsertTree(ctx, Tree{OwnerID: f.owner.ID, Name: "Other"})
	if err != nil {
		t.Fatalf("insert tree: %v", err)
	}
	if err := s.AttachMemorial(ctx, otherTree.ID, f.memorial.ID, f.owner.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := s.AttachMemorial(ctx, f.tree.ID, f.memorial.ID, f.owner.ID); err != nil {
		t.Fatalf("re-attaching to the same tree should be a no-op: %v", err)
	}
}

func TestMemoryStoreDetachDropsTouchingRelations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	f := seedFixture(t, ctx, s)

	other, _ := s.InsertMemorial(ctx, Memorial{TreeID: &f.tree.ID, DisplayName: "Grace"})
	if _, err := s.CreateRelation(ctx, Relation{TreeID: f.tree.ID, SourceID: f.memorial.ID, TargetID: other.ID, Type: snapshot.RelationSibling}); err != nil {
		t.Fatalf("create relation: %v", err)
	}
	if err := s.DetachMemorial(ctx, f.tree.ID, f.memorial.ID, f.owner.ID); err != nil {
		t.Fatalf("detach: %v", err)
	}
	relations, _ := s.ListTreeRelations(ctx, f.tree.ID)
	if len(relations) != 0 {
		t.Fatalf("expected relations to be removed, got %d", len(relations))
	}
	if err := s.DetachMemorial(ctx, f.tree.ID, f.memorial.ID, f.owner.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second detach, got %v", err)
	}
}

func TestMemoryStoreSubmissionsJoinDraftAndTree(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	f := seedFixture(t, ctx, s)

	draft, _ := s.InsertDraft(ctx, sampleDraft(f))
	first, err := s.InsertSubmission(ctx, Submission{DraftID: draft.ID, Message: "first", SubmittedAt: base})
	if err != nil {
		t.Fatalf("insert submission: %v", err)
	}
	if first.OwnerID != f.owner.ID || first.EditorID != f.editor.ID || first.TreeName != "Family" {
		t.Fatalf("unexpected joined submission: %+v", first)
	}
	if first.Outcome != ReviewPending {
		t.Fatalf("expected pending outcome, got %s", first.Outcome)
	}
	second, _ := s.InsertSubmission(ctx, Submission{DraftID: draft.ID, Message: "second", SubmittedAt: base.Add(time.Minute)})

	listed, err := s.ListSubmissionsByOwner(ctx, f.owner.ID, true)
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", listed)
	}

	if err := s.ResolvePendingSubmissions(ctx, draft.ID, ReviewApproved, "ok", base.Add(time.Hour)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	pending, _ := s.ListSubmissionsByOwner(ctx, f.owner.ID, true)
	if len(pending) != 0 {
		t.Fatalf("expected no pending submissions, got %d", len(pending))
	}
	all, _ := s.ListSubmissionsByEditor(ctx, f.editor.ID)
	for _, item := range all {
		if item.Outcome != ReviewApproved || item.ReviewMessage != "ok" || item.ReviewedAt == nil {
			t.Fatalf("expected resolved submission, got %+v", item)
		}
	}
}
