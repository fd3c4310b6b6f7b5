package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps every table in process memory. Atomic works on a copy of
// the state and only publishes it when fn succeeds. Draft payloads go through
// the snapshot codec exactly as they do in Postgres.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memoryState{
		now:         func() time.Time { return time.Now().UTC() },
		users:       map[int64]User{},
		trees:       map[int64]Tree{},
		memorials:   map[int64]Memorial{},
		relations:   map[int64]Relation{},
		permissions: map[permissionKey]Permission{},
		drafts:      map[int64]storedDraft{},
		submissions: map[int64]storedSubmission{},
	}}
}

// SetClock replaces the time source used for stored timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.now = now
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func view[T any](s *MemoryStore, fn func(*memoryState) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func write[T any](s *MemoryStore, fn func(*memoryState) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	out, err := fn(next)
	if err != nil {
		var zero T
		return zero, err
	}
	s.state = next
	return out, nil
}

func writeErr(s *MemoryStore, fn func(*memoryState) error) error {
	_, err := write(s, func(st *memoryState) (struct{}, error) { return struct{}{}, fn(st) })
	return err
}

func (s *MemoryStore) InsertUser(ctx context.Context, user User) (User, error) {
	return write(s, func(st *memoryState) (User, error) { return st.InsertUser(ctx, user) })
}

func (s *MemoryStore) GetUser(ctx context.Context, userID int64) (User, error) {
	return view(s, func(st *memoryState) (User, error) { return st.GetUser(ctx, userID) })
}

func (s *MemoryStore) InsertTree(ctx context.Context, tree Tree) (Tree, error) {
	return write(s, func(st *memoryState) (Tree, error) { return st.InsertTree(ctx, tree) })
}

func (s *MemoryStore) GetTree(ctx context.Context, treeID int64) (Tree, error) {
	return view(s, func(st *memoryState) (Tree, error) { return st.GetTree(ctx, treeID) })
}

func (s *MemoryStore) SaveTree(ctx context.Context, tree Tree) error {
	return writeErr(s, func(st *memoryState) error { return st.SaveTree(ctx, tree) })
}

func (s *MemoryStore) InsertMemorial(ctx context.Context, memorial Memorial) (Memorial, error) {
	return write(s, func(st *memoryState) (Memorial, error) { return st.InsertMemorial(ctx, memorial) })
}

func (s *MemoryStore) GetMemorial(ctx context.Context, memorialID int64) (Memorial, error) {
	return view(s, func(st *memoryState) (Memorial, error) { return st.GetMemorial(ctx, memorialID) })
}

func (s *MemoryStore) ListTreeMemorials(ctx context.Context, treeID int64) ([]Memorial, error) {
	return view(s, func(st *memoryState) ([]Memorial, error) { return st.ListTreeMemorials(ctx, treeID) })
}

func (s *MemoryStore) ListTreeRelations(ctx context.Context, treeID int64) ([]Relation, error) {
	return view(s, func(st *memoryState) ([]Relation, error) { return st.ListTreeRelations(ctx, treeID) })
}

func (s *MemoryStore) AttachMemorial(ctx context.Context, treeID, memorialID, actorID int64) error {
	return writeErr(s, func(st *memoryState) error { return st.AttachMemorial(ctx, treeID, memorialID, actorID) })
}

func (s *MemoryStore) DetachMemorial(ctx context.Context, treeID, memorialID, actorID int64) error {
	return writeErr(s, func(st *memoryState) error { return st.DetachMemorial(ctx, treeID, memorialID, actorID) })
}

func (s *MemoryStore) CreateRelation(ctx context.Context, relation Relation) (Relation, error) {
	return write(s, func(st *memoryState) (Relation, error) { return st.CreateRelation(ctx, relation) })
}

func (s *MemoryStore) DeleteRelation(ctx context.Context, relationID int64) error {
	return writeErr(s, func(st *memoryState) error { return st.DeleteRelation(ctx, relationID) })
}

func (s *MemoryStore) GetPermission(ctx context.Context, treeID, userID int64) (string, error) {
	return view(s, func(st *memoryState) (string, error) { return st.GetPermission(ctx, treeID, userID) })
}

func (s *MemoryStore) UpsertPermission(ctx context.Context, permission Permission) error {
	return writeErr(s, func(st *memoryState) error { return st.UpsertPermission(ctx, permission) })
}

func (s *MemoryStore) DeletePermission(ctx context.Context, treeID, userID int64) error {
	return writeErr(s, func(st *memoryState) error { return st.DeletePermission(ctx, treeID, userID) })
}

func (s *MemoryStore) GetDraft(ctx context.Context, draftID int64) (Draft, error) {
	return view(s, func(st *memoryState) (Draft, error) { return st.GetDraft(ctx, draftID) })
}

func (s *MemoryStore) LockDraft(ctx context.Context, draftID int64) (Draft, error) {
	return s.GetDraft(ctx, draftID)
}

func (s *MemoryStore) FindActiveDraft(ctx context.Context, treeID, editorID int64) (Draft, error) {
	return view(s, func(st *memoryState) (Draft, error) { return st.FindActiveDraft(ctx, treeID, editorID) })
}

func (s *MemoryStore) ListDraftsByEditor(ctx context.Context, editorID int64) ([]Draft, error) {
	return view(s, func(st *memoryState) ([]Draft, error) { return st.ListDraftsByEditor(ctx, editorID) })
}

func (s *MemoryStore) InsertDraft(ctx context.Context, draft Draft) (Draft, error) {
	return write(s, func(st *memoryState) (Draft, error) { return st.InsertDraft(ctx, draft) })
}

func (s *MemoryStore) UpdateDraft(ctx context.Context, draft Draft) error {
	return writeErr(s, func(st *memoryState) error { return st.UpdateDraft(ctx, draft) })
}

// PutRawDraftPayload overwrites a draft's stored working-copy payloads without
// going through the codec. Tests use it to simulate corrupt or legacy rows.
func (s *MemoryStore) PutRawDraftPayload(draftID int64, nodes, edges []byte) error {
	return writeErr(s, func(st *memoryState) error {
		row, ok := st.drafts[draftID]
		if !ok {
			return fmt.Errorf("put draft payload: %w", ErrNotFound)
		}
		row.workingNodes = nodes
		row.workingEdges = edges
		st.drafts[draftID] = row
		return nil
	})
}

func (s *MemoryStore) InsertSubmission(ctx context.Context, submission Submission) (Submission, error) {
	return write(s, func(st *memoryState) (Submission, error) { return st.InsertSubmission(ctx, submission) })
}

func (s *MemoryStore) GetSubmission(ctx context.Context, submissionID int64) (Submission, error) {
	return view(s, func(st *memoryState) (Submission, error) { return st.GetSubmission(ctx, submissionID) })
}

func (s *MemoryStore) ResolvePendingSubmissions(ctx context.Context, draftID int64, outcome ReviewOutcome, message string, reviewedAt time.Time) error {
	return writeErr(s, func(st *memoryState) error {
		return st.ResolvePendingSubmissions(ctx, draftID, outcome, message, reviewedAt)
	})
}

func (s *MemoryStore) ListSubmissionsByOwner(ctx context.Context, ownerID int64, pendingOnly bool) ([]Submission, error) {
	return view(s, func(st *memoryState) ([]Submission, error) { return st.ListSubmissionsByOwner(ctx, ownerID, pendingOnly) })
}

func (s *MemoryStore) ListSubmissionsByEditor(ctx context.Context, editorID int64) ([]Submission, error) {
	return view(s, func(st *memoryState) ([]Submission, error) { return st.ListSubmissionsByEditor(ctx, editorID) })
}

type permissionKey struct {
	treeID int64
	userID int64
}

// storedDraft holds the draft row with its snapshot payloads in encoded form.
type storedDraft struct {
	row           Draft
	workingNodes  []byte
	workingEdges  []byte
	originalNodes []byte
	originalEdges []byte
}

type storedSubmission struct {
	ID            int64
	DraftID       int64
	Message       string
	SubmittedAt   time.Time
	Outcome       ReviewOutcome
	ReviewMessage string
	ReviewedAt    *time.Time
}

type memoryState struct {
	now         func() time.Time
	nextID      int64
	users       map[int64]User
	trees       map[int64]Tree
	memorials   map[int64]Memorial
	relations   map[int64]Relation
	permissions map[permissionKey]Permission
	drafts      map[int64]storedDraft
	submissions map[int64]storedSubmission
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// clone copies the maps. Values are never mutated in place, so sharing the
// structs and byte slices between generations is safe.
func (st *memoryState) clone() *memoryState {
	return &memoryState{
		now:         st.now,
		nextID:      st.nextID,
		users:       copyMap(st.users),
		trees:       copyMap(st.trees),
		memorials:   copyMap(st.memorials),
		relations:   copyMap(st.relations),
		permissions: copyMap(st.permissions),
		drafts:      copyMap(st.drafts),
		submissions: copyMap(st.submissions),
	}
}

func (st *memoryState) id() int64 {
	st.nextID++
	return st.nextID
}

func (st *memoryState) InsertUser(_ context.Context, user User) (User, error) {
	user.ID = st.id()
	user.CreatedAt = st.now()
	st.users[user.ID] = user
	return user, nil
}

func (st *memoryState) GetUser(_ context.Context, userID int64) (User, error) {
	user, ok := st.users[userID]
	if !ok {
		return User{}, fmt.Errorf("get user: %w", ErrNotFound)
	}
	return user, nil
}

func (st *memoryState) InsertTree(_ context.Context, tree Tree) (Tree, error) {
	if _, ok := st.users[tree.OwnerID]; !ok {
		return Tree{}, fmt.Errorf("insert tree owner: %w", ErrNotFound)
	}
	tree.ID = st.id()
	tree.CreatedAt = st.now()
	tree.UpdatedAt = tree.CreatedAt
	st.trees[tree.ID] = tree
	return tree, nil
}

func (st *memoryState) GetTree(_ context.Context, treeID int64) (Tree, error) {
	tree, ok := st.trees[treeID]
	if !ok {
		return Tree{}, fmt.Errorf("get tree: %w", ErrNotFound)
	}
	return tree, nil
}

func (st *memoryState) SaveTree(_ context.Context, tree Tree) error {
	current, ok := st.trees[tree.ID]
	if !ok {
		return fmt.Errorf("save tree: %w", ErrNotFound)
	}
	current.Name = tree.Name
	current.Description = tree.Description
	current.IsPublic = tree.IsPublic
	current.UpdatedAt = st.now()
	st.trees[tree.ID] = current
	return nil
}

func (st *memoryState) InsertMemorial(_ context.Context, memorial Memorial) (Memorial, error) {
	if memorial.TreeID != nil {
		if _, ok := st.trees[*memorial.TreeID]; !ok {
			return Memorial{}, fmt.Errorf("insert memorial tree: %w", ErrNotFound)
		}
	}
	memorial.ID = st.id()
	memorial.CreatedAt = st.now()
	memorial.UpdatedAt = memorial.CreatedAt
	st.memorials[memorial.ID] = memorial
	return memorial, nil
}

func (st *memoryState) GetMemorial(_ context.Context, memorialID int64) (Memorial, error) {
	memorial, ok := st.memorials[memorialID]
	if !ok {
		return Memorial{}, fmt.Errorf("get memorial: %w", ErrNotFound)
	}
	return memorial, nil
}

func (st *memoryState) ListTreeMemorials(_ context.Context, treeID int64) ([]Memorial, error) {
	items := make([]Memorial, 0)
	for _, memorial := range st.memorials {
		if memorial.TreeID != nil && *memorial.TreeID == treeID {
			items = append(items, memorial)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (st *memoryState) ListTreeRelations(_ context.Context, treeID int64) ([]Relation, error) {
	items := make([]Relation, 0)
	for _, relation := range st.relations {
		if relation.TreeID == treeID {
			items = append(items, relation)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (st *memoryState) AttachMemorial(_ context.Context, treeID, memorialID, _ int64) error {
	if _, ok := st.trees[treeID]; !ok {
		return fmt.Errorf("attach memorial tree: %w", ErrNotFound)
	}
	memorial, ok := st.memorials[memorialID]
	if !ok {
		return fmt.Errorf("attach memorial: %w", ErrNotFound)
	}
	if memorial.TreeID != nil {
		if *memorial.TreeID == treeID {
			return nil
		}
		return fmt.Errorf("attach memorial %d: belongs to another tree: %w", memorialID, ErrConflict)
	}
	id := treeID
	memorial.TreeID = &id
	memorial.UpdatedAt = st.now()
	st.memorials[memorialID] = memorial
	return nil
}

func (st *memoryState) DetachMemorial(_ context.Context, treeID, memorialID, _ int64) error {
	memorial, ok := st.memorials[memorialID]
	if !ok || memorial.TreeID == nil || *memorial.TreeID != treeID {
		return fmt.Errorf("detach memorial: %w", ErrNotFound)
	}
	for id, relation := range st.relations {
		if relation.TreeID == treeID && (relation.SourceID == memorialID || relation.TargetID == memorialID) {
			delete(st.relations, id)
		}
	}
	memorial.TreeID = nil
	memorial.UpdatedAt = st.now()
	st.memorials[memorialID] = memorial
	return nil
}

func (st *memoryState) CreateRelation(_ context.Context, relation Relation) (Relation, error) {
	if _, ok := st.trees[relation.TreeID]; !ok {
		return Relation{}, fmt.Errorf("create relation tree: %w", ErrNotFound)
	}
	for _, endpoint := range []int64{relation.SourceID, relation.TargetID} {
		if _, ok := st.memorials[endpoint]; !ok {
			return Relation{}, fmt.Errorf("create relation endpoint %d: %w", endpoint, ErrNotFound)
		}
	}
	relation.ID = st.id()
	relation.CreatedAt = st.now()
	st.relations[relation.ID] = relation
	return relation, nil
}

func (st *memoryState) DeleteRelation(_ context.Context, relationID int64) error {
	if _, ok := st.relations[relationID]; !ok {
		return fmt.Errorf("delete relation: %w", ErrNotFound)
	}
	delete(st.relations, relationID)
	return nil
}

func (st *memoryState) GetPermission(_ context.Context, treeID, userID int64) (string, error) {
	return st.permissions[permissionKey{treeID, userID}].Role, nil
}

func (st *memoryState) UpsertPermission(_ context.Context, permission Permission) error {
	if _, ok := st.trees[permission.TreeID]; !ok {
		return fmt.Errorf("upsert permission tree: %w", ErrNotFound)
	}
	permission.GrantedAt = st.now()
	st.permissions[permissionKey{permission.TreeID, permission.UserID}] = permission
	return nil
}

func (st *memoryState) DeletePermission(_ context.Context, treeID, userID int64) error {
	key := permissionKey{treeID, userID}
	if _, ok := st.permissions[key]; !ok {
		return fmt.Errorf("delete permission: %w", ErrNotFound)
	}
	delete(st.permissions, key)
	return nil
}

func (st *memoryState) decodeDraft(stored storedDraft) (Draft, error) {
	draft := stored.row
	var err error
	if stored.workingNodes != nil && stored.workingEdges != nil {
		if draft.Working.Nodes, draft.Working.Edges, err = decodePayload(draft, "working copy", stored.workingNodes, stored.workingEdges); err != nil {
			return Draft{}, err
		}
		draft.HasWorkingCopy = true
	}
	if stored.originalNodes != nil && stored.originalEdges != nil {
		if draft.Original.Nodes, draft.Original.Edges, err = decodePayload(draft, "original snapshot", stored.originalNodes, stored.originalEdges); err != nil {
			return Draft{}, err
		}
	}
	return draft, nil
}

func encodeStoredDraft(draft Draft) (storedDraft, error) {
	stored := storedDraft{row: draft}
	stored.row.Working.Nodes, stored.row.Working.Edges = nil, nil
	stored.row.Original.Nodes, stored.row.Original.Edges = nil, nil
	stored.row.HasWorkingCopy = false
	if !draft.HasWorkingCopy {
		return stored, nil
	}
	var err error
	if stored.workingNodes, stored.workingEdges, err = encodePayload(draft, "working copy", draft.Working); err != nil {
		return storedDraft{}, err
	}
	if stored.originalNodes, stored.originalEdges, err = encodePayload(draft, "original snapshot", draft.Original); err != nil {
		return storedDraft{}, err
	}
	return stored, nil
}

func (st *memoryState) GetDraft(_ context.Context, draftID int64) (Draft, error) {
	stored, ok := st.drafts[draftID]
	if !ok {
		return Draft{}, fmt.Errorf("get draft: %w", ErrNotFound)
	}
	return st.decodeDraft(stored)
}

func (st *memoryState) LockDraft(ctx context.Context, draftID int64) (Draft, error) {
	return st.GetDraft(ctx, draftID)
}

func (st *memoryState) activeDraftID(treeID, editorID int64) (int64, bool) {
	for id, stored := range st.drafts {
		if stored.row.TreeID == treeID && stored.row.EditorID == editorID && stored.row.Status.Active() {
			return id, true
		}
	}
	return 0, false
}

func (st *memoryState) FindActiveDraft(ctx context.Context, treeID, editorID int64) (Draft, error) {
	id, ok := st.activeDraftID(treeID, editorID)
	if !ok {
		return Draft{}, fmt.Errorf("find active draft: %w", ErrNotFound)
	}
	return st.GetDraft(ctx, id)
}

func (st *memoryState) ListDraftsByEditor(_ context.Context, editorID int64) ([]Draft, error) {
	items := make([]Draft, 0)
	for _, stored := range st.drafts {
		if stored.row.EditorID != editorID {
			continue
		}
		draft, err := st.decodeDraft(stored)
		if err != nil {
			return nil, err
		}
		items = append(items, draft)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (st *memoryState) InsertDraft(_ context.Context, draft Draft) (Draft, error) {
	if _, ok := st.trees[draft.TreeID]; !ok {
		return Draft{}, fmt.Errorf("insert draft tree: %w", ErrNotFound)
	}
	if draft.Status.Active() {
		if _, exists := st.activeDraftID(draft.TreeID, draft.EditorID); exists {
			return Draft{}, fmt.Errorf("insert draft: %w", ErrConflict)
		}
	}
	draft.ID = st.id()
	draft.CreatedAt = st.now()
	draft.UpdatedAt = draft.CreatedAt
	stored, err := encodeStoredDraft(draft)
	if err != nil {
		return Draft{}, err
	}
	st.drafts[draft.ID] = stored
	return draft, nil
}

func (st *memoryState) UpdateDraft(_ context.Context, draft Draft) error {
	current, ok := st.drafts[draft.ID]
	if !ok {
		return fmt.Errorf("update draft: %w", ErrNotFound)
	}
	if draft.Status.Active() {
		if id, exists := st.activeDraftID(draft.TreeID, draft.EditorID); exists && id != draft.ID {
			return fmt.Errorf("update draft: %w", ErrConflict)
		}
	}
	draft.TreeID = current.row.TreeID
	draft.EditorID = current.row.EditorID
	draft.CreatedAt = current.row.CreatedAt
	draft.UpdatedAt = st.now()
	stored, err := encodeStoredDraft(draft)
	if err != nil {
		return err
	}
	st.drafts[draft.ID] = stored
	return nil
}

func (st *memoryState) InsertSubmission(ctx context.Context, submission Submission) (Submission, error) {
	if _, ok := st.drafts[submission.DraftID]; !ok {
		return Submission{}, fmt.Errorf("insert submission draft: %w", ErrNotFound)
	}
	if submission.Outcome == "" {
		submission.Outcome = ReviewPending
	}
	row := storedSubmission{
		ID:          st.id(),
		DraftID:     submission.DraftID,
		Message:     submission.Message,
		SubmittedAt: submission.SubmittedAt,
		Outcome:     submission.Outcome,
	}
	st.submissions[row.ID] = row
	return st.GetSubmission(ctx, row.ID)
}

func (st *memoryState) joinSubmission(row storedSubmission) Submission {
	draft := st.drafts[row.DraftID].row
	tree := st.trees[draft.TreeID]
	return Submission{
		ID:            row.ID,
		DraftID:       row.DraftID,
		TreeID:        draft.TreeID,
		TreeName:      tree.Name,
		EditorID:      draft.EditorID,
		OwnerID:       tree.OwnerID,
		Message:       row.Message,
		SubmittedAt:   row.SubmittedAt,
		Outcome:       row.Outcome,
		ReviewMessage: row.ReviewMessage,
		ReviewedAt:    row.ReviewedAt,
	}
}

func (st *memoryState) GetSubmission(_ context.Context, submissionID int64) (Submission, error) {
	row, ok := st.submissions[submissionID]
	if !ok {
		return Submission{}, fmt.Errorf("get submission: %w", ErrNotFound)
	}
	return st.joinSubmission(row), nil
}

func (st *memoryState) ResolvePendingSubmissions(_ context.Context, draftID int64, outcome ReviewOutcome, message string, reviewedAt time.Time) error {
	for id, row := range st.submissions {
		if row.DraftID != draftID || row.Outcome != ReviewPending {
			continue
		}
		at := reviewedAt
		row.Outcome = outcome
		row.ReviewMessage = message
		row.ReviewedAt = &at
		st.submissions[id] = row
	}
	return nil
}

func (st *memoryState) listSubmissions(keep func(Submission) bool) []Submission {
	items := make([]Submission, 0)
	for _, row := range st.submissions {
		item := st.joinSubmission(row)
		if keep(item) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].SubmittedAt.Equal(items[j].SubmittedAt) {
			return items[i].SubmittedAt.After(items[j].SubmittedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items
}

func (st *memoryState) ListSubmissionsByOwner(_ context.Context, ownerID int64, pendingOnly bool) ([]Submission, error) {
	return st.listSubmissions(func(item Submission) bool {
		return item.OwnerID == ownerID && (!pendingOnly || item.Outcome == ReviewPending)
	}), nil
}

func (st *memoryState) ListSubmissionsByEditor(_ context.Context, editorID int64) ([]Submission, error) {
	return st.listSubmissions(func(item Submission) bool {
		return item.EditorID == editorID
	}), nil
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ Store      = (*PostgresStore)(nil)
	_ Repository = (*memoryState)(nil)
)
