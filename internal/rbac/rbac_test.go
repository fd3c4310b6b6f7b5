package rbac

import (
	"context"
	"errors"
	"testing"

	"lineage/api/internal/store"
)

func TestAtLeast(t *testing.T) {
	cases := []struct {
		name  string
		role  Role
		min   Role
		allow bool
	}{
		{name: "viewer read", role: RoleViewer, min: RoleViewer, allow: true},
		{name: "viewer edit", role: RoleViewer, min: RoleEditor, allow: false},
		{name: "editor edit", role: RoleEditor, min: RoleEditor, allow: true},
		{name: "editor admin", role: RoleEditor, min: RoleAdmin, allow: false},
		{name: "admin edit", role: RoleAdmin, min: RoleEditor, allow: true},
		{name: "admin owner", role: RoleAdmin, min: RoleOwner, allow: false},
		{name: "owner everything", role: RoleOwner, min: RoleAdmin, allow: true},
		{name: "none viewer", role: RoleNone, min: RoleViewer, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.role.AtLeast(tc.min); got != tc.allow {
				t.Fatalf("%q.AtLeast(%q) = %v, want %v", tc.role, tc.min, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("editor") != RoleEditor {
		t.Fatal("expected editor")
	}
	if Normalize("commenter") != RoleNone {
		t.Fatal("expected unknown roles to grant nothing")
	}
}

type fakeReader struct {
	trees map[int64]store.Tree
	perms map[[2]int64]string
	err   error
	calls int
}

func (f *fakeReader) GetTree(_ context.Context, treeID int64) (store.Tree, error) {
	f.calls++
	tree, ok := f.trees[treeID]
	if !ok {
		return store.Tree{}, store.ErrNotFound
	}
	return tree, nil
}

func (f *fakeReader) GetPermission(_ context.Context, treeID, userID int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.perms[[2]int64{treeID, userID}], nil
}

func TestGateHasAccess(t *testing.T) {
	reader := &fakeReader{
		trees: map[int64]store.Tree{
			1: {ID: 1, OwnerID: 10},
			2: {ID: 2, OwnerID: 10, IsPublic: true},
		},
		perms: map[[2]int64]string{
			{1, 20}: "editor",
			{1, 30}: "viewer",
		},
	}
	gate := NewGate(reader)
	ctx := context.Background()

	cases := []struct {
		name   string
		tree   int64
		user   int64
		min    Role
		expect bool
	}{
		{name: "owner may review", tree: 1, user: 10, min: RoleOwner, expect: true},
		{name: "editor may edit", tree: 1, user: 20, min: RoleEditor, expect: true},
		{name: "editor may not review", tree: 1, user: 20, min: RoleOwner, expect: false},
		{name: "viewer may not edit", tree: 1, user: 30, min: RoleEditor, expect: false},
		{name: "stranger on private tree", tree: 1, user: 99, min: RoleViewer, expect: false},
		{name: "stranger on public tree reads", tree: 2, user: 99, min: RoleViewer, expect: true},
		{name: "stranger on public tree edits", tree: 2, user: 99, min: RoleEditor, expect: false},
		{name: "missing tree", tree: 404, user: 10, min: RoleViewer, expect: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := gate.HasAccess(ctx, tc.tree, tc.user, tc.min)
			if err != nil {
				t.Fatalf("has access: %v", err)
			}
			if ok != tc.expect {
				t.Fatalf("HasAccess = %v, want %v", ok, tc.expect)
			}
		})
	}
}

func TestGateRereadsOnEveryCall(t *testing.T) {
	reader := &fakeReader{
		trees: map[int64]store.Tree{1: {ID: 1, OwnerID: 10}},
		perms: map[[2]int64]string{{1, 20}: "editor"},
	}
	gate := NewGate(reader)
	ctx := context.Background()

	if ok, _ := gate.HasAccess(ctx, 1, 20, RoleEditor); !ok {
		t.Fatal("expected access before revoke")
	}
	delete(reader.perms, [2]int64{1, 20})
	if ok, _ := gate.HasAccess(ctx, 1, 20, RoleEditor); ok {
		t.Fatal("expected revoke to take effect on the next call")
	}
	if reader.calls != 2 {
		t.Fatalf("expected two store reads, got %d", reader.calls)
	}
}

func TestGatePropagatesStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	reader := &fakeReader{trees: map[int64]store.Tree{1: {ID: 1, OwnerID: 10}}, err: boom}
	gate := NewGate(reader)
	if _, err := gate.HasAccess(context.Background(), 1, 20, RoleEditor); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
