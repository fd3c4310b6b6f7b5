package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lineage/api/internal/snapshot"

	"github.com/jackc/pgx/v5/pgconn"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db *sql.DB
	q  queryer
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Atomic runs fn against a transaction-bound copy of the store. Nested calls
// reuse the outer transaction.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(Repository) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return translatePgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *PostgresStore) InsertUser(ctx context.Context, user User) (User, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO users (display_name, email)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, user.DisplayName, user.Email).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.q.QueryRowContext(ctx, `
		SELECT id, display_name, email, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err != nil {
		return User{}, notFoundOr(err, "get user")
	}
	return user, nil
}

func (s *PostgresStore) InsertTree(ctx context.Context, tree Tree) (Tree, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO family_trees (owner_id, name, description, is_public)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, tree.OwnerID, tree.Name, tree.Description, tree.IsPublic).Scan(&tree.ID, &tree.CreatedAt, &tree.UpdatedAt)
	if err != nil {
		return Tree{}, fmt.Errorf("insert tree: %w", err)
	}
	return tree, nil
}

func (s *PostgresStore) GetTree(ctx context.Context, treeID int64) (Tree, error) {
	var tree Tree
	err := s.q.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, is_public, created_at, updated_at
		FROM family_trees
		WHERE id=$1
	`, treeID).Scan(&tree.ID, &tree.OwnerID, &tree.Name, &tree.Description, &tree.IsPublic, &tree.CreatedAt, &tree.UpdatedAt)
	if err != nil {
		return Tree{}, notFoundOr(err, "get tree")
	}
	return tree, nil
}

func (s *PostgresStore) SaveTree(ctx context.Context, tree Tree) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE family_trees
		SET name=$2, description=$3, is_public=$4, updated_at=NOW()
		WHERE id=$1
	`, tree.ID, tree.Name, tree.Description, tree.IsPublic)
	if err != nil {
		return fmt.Errorf("save tree: %w", err)
	}
	return requireAffected(result, "save tree")
}

func (s *PostgresStore) InsertMemorial(ctx context.Context, memorial Memorial) (Memorial, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO memorials (tree_id, display_name, birth_date, death_date, biography, photo_ref, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, memorial.TreeID, memorial.DisplayName, memorial.BirthDate, memorial.DeathDate, memorial.Biography, memorial.PhotoRef, memorial.IsPublic).
		Scan(&memorial.ID, &memorial.CreatedAt, &memorial.UpdatedAt)
	if err != nil {
		return Memorial{}, fmt.Errorf("insert memorial: %w", err)
	}
	return memorial, nil
}

const memorialColumns = `id, tree_id, display_name, birth_date, death_date, biography, photo_ref, is_public, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemorial(row rowScanner) (Memorial, error) {
	var (
		item      Memorial
		treeID    sql.NullInt64
		birthDate sql.NullTime
		deathDate sql.NullTime
	)
	if err := row.Scan(&item.ID, &treeID, &item.DisplayName, &birthDate, &deathDate, &item.Biography, &item.PhotoRef, &item.IsPublic, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Memorial{}, err
	}
	if treeID.Valid {
		item.TreeID = &treeID.Int64
	}
	if birthDate.Valid {
		item.BirthDate = &birthDate.Time
	}
	if deathDate.Valid {
		item.DeathDate = &deathDate.Time
	}
	return item, nil
}

func (s *PostgresStore) GetMemorial(ctx context.Context, memorialID int64) (Memorial, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+memorialColumns+` FROM memorials WHERE id=$1`, memorialID)
	item, err := scanMemorial(row)
	if err != nil {
		return Memorial{}, notFoundOr(err, "get memorial")
	}
	return item, nil
}

func (s *PostgresStore) ListTreeMemorials(ctx context.Context, treeID int64) ([]Memorial, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+memorialColumns+` FROM memorials WHERE tree_id=$1 ORDER BY id ASC`, treeID)
	if err != nil {
		return nil, fmt.Errorf("list memorials: %w", err)
	}
	defer rows.Close()

	items := make([]Memorial, 0)
	for rows.Next() {
		item, err := scanMemorial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memorial: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memorials: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AttachMemorial(ctx context.Context, treeID, memorialID, actorID int64) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE memorials
		SET tree_id=$1, updated_by=$3, updated_at=NOW()
		WHERE id=$2 AND (tree_id IS NULL OR tree_id=$1)
	`, treeID, memorialID, actorID)
	if err != nil {
		return fmt.Errorf("attach memorial: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach memorial rows: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.GetMemorial(ctx, memorialID); err != nil {
		return err
	}
	return fmt.Errorf("attach memorial %d: belongs to another tree: %w", memorialID, ErrConflict)
}

// DetachMemorial also removes the tree's relations that reference the memorial.
func (s *PostgresStore) DetachMemorial(ctx context.Context, treeID, memorialID, actorID int64) error {
	if _, err := s.q.ExecContext(ctx, `
		DELETE FROM relations
		WHERE tree_id=$1 AND (source_id=$2 OR target_id=$2)
	`, treeID, memorialID); err != nil {
		return fmt.Errorf("detach memorial relations: %w", err)
	}
	result, err := s.q.ExecContext(ctx, `
		UPDATE memorials
		SET tree_id=NULL, updated_by=$3, updated_at=NOW()
		WHERE id=$2 AND tree_id=$1
	`, treeID, memorialID, actorID)
	if err != nil {
		return fmt.Errorf("detach memorial: %w", err)
	}
	return requireAffected(result, "detach memorial")
}

func (s *PostgresStore) ListTreeRelations(ctx context.Context, treeID int64) ([]Relation, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tree_id, source_id, target_id, relation_type, created_at
		FROM relations
		WHERE tree_id=$1
		ORDER BY id ASC
	`, treeID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	items := make([]Relation, 0)
	for rows.Next() {
		var item Relation
		if err := rows.Scan(&item.ID, &item.TreeID, &item.SourceID, &item.TargetID, &item.Type, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateRelation(ctx context.Context, relation Relation) (Relation, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO relations (tree_id, source_id, target_id, relation_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, relation.TreeID, relation.SourceID, relation.TargetID, string(relation.Type)).Scan(&relation.ID, &relation.CreatedAt)
	if err != nil {
		return Relation{}, fmt.Errorf("create relation: %w", err)
	}
	return relation, nil
}

func (s *PostgresStore) DeleteRelation(ctx context.Context, relationID int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM relations WHERE id=$1`, relationID)
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	return requireAffected(result, "delete relation")
}

func (s *PostgresStore) GetPermission(ctx context.Context, treeID, userID int64) (string, error) {
	var role string
	err := s.q.QueryRowContext(ctx, `SELECT role FROM tree_permissions WHERE tree_id=$1 AND user_id=$2`, treeID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read permission: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) UpsertPermission(ctx context.Context, permission Permission) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tree_permissions (tree_id, user_id, role, granted_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tree_id, user_id) DO UPDATE SET role=EXCLUDED.role, granted_by=EXCLUDED.granted_by, granted_at=NOW()
	`, permission.TreeID, permission.UserID, permission.Role, permission.GrantedBy)
	if err != nil {
		return fmt.Errorf("upsert permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePermission(ctx context.Context, treeID, userID int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM tree_permissions WHERE tree_id=$1 AND user_id=$2`, treeID, userID)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	return requireAffected(result, "delete permission")
}

const draftColumns = `
	id, tree_id, editor_id, status,
	working_name, working_description, working_is_public, working_nodes_json, working_edges_json,
	original_name, original_description, original_is_public, original_nodes_json, original_edges_json,
	message, review_message, reviewed_by, created_at, updated_at, last_submitted_at, reviewed_at
`

func scanDraft(row rowScanner) (Draft, error) {
	var (
		item                        Draft
		workingNodes, workingEdges  []byte
		originalNodes, originalEdge []byte
		reviewedBy                  sql.NullInt64
		lastSubmitted, reviewedAt   sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.TreeID, &item.EditorID, &item.Status,
		&item.Working.Meta.Name, &item.Working.Meta.Description, &item.Working.Meta.IsPublic, &workingNodes, &workingEdges,
		&item.Original.Meta.Name, &item.Original.Meta.Description, &item.Original.Meta.IsPublic, &originalNodes, &originalEdge,
		&item.Message, &item.ReviewMessage, &reviewedBy, &item.CreatedAt, &item.UpdatedAt, &lastSubmitted, &reviewedAt,
	)
	if err != nil {
		return Draft{}, err
	}
	if reviewedBy.Valid {
		item.ReviewedBy = &reviewedBy.Int64
	}
	if lastSubmitted.Valid {
		item.LastSubmittedAt = &lastSubmitted.Time
	}
	if reviewedAt.Valid {
		item.ReviewedAt = &reviewedAt.Time
	}

	if workingNodes != nil && workingEdges != nil {
		if item.Working.Nodes, item.Working.Edges, err = decodePayload(item, "working copy", workingNodes, workingEdges); err != nil {
			return Draft{}, err
		}
		item.HasWorkingCopy = true
	}
	if originalNodes != nil && originalEdge != nil {
		if item.Original.Nodes, item.Original.Edges, err = decodePayload(item, "original snapshot", originalNodes, originalEdge); err != nil {
			return Draft{}, err
		}
	}
	return item, nil
}

func decodePayload(draft Draft, part string, nodesJSON, edgesJSON []byte) ([]snapshot.NodeSummary, []snapshot.EdgeSummary, error) {
	nodes, err := snapshot.DecodeNodes(nodesJSON)
	if err != nil {
		return nil, nil, &DraftPayloadError{DraftID: draft.ID, TreeID: draft.TreeID, Part: part, Err: err}
	}
	edges, err := snapshot.DecodeEdges(edgesJSON)
	if err != nil {
		return nil, nil, &DraftPayloadError{DraftID: draft.ID, TreeID: draft.TreeID, Part: part, Err: err}
	}
	return nodes, edges, nil
}

func encodePayload(draft Draft, part string, side snapshot.Snapshot) ([]byte, []byte, error) {
	nodes, err := snapshot.EncodeNodes(side.Nodes)
	if err != nil {
		return nil, nil, &DraftPayloadError{DraftID: draft.ID, TreeID: draft.TreeID, Part: part, Err: err}
	}
	edges, err := snapshot.EncodeEdges(side.Edges)
	if err != nil {
		return nil, nil, &DraftPayloadError{DraftID: draft.ID, TreeID: draft.TreeID, Part: part, Err: err}
	}
	return nodes, edges, nil
}

// encodedDraft holds the JSONB parameters for a draft row; all four are nil
// when the draft has no working copy.
type encodedDraft struct {
	workingNodes, workingEdges   any
	originalNodes, originalEdges any
}

func encodeDraft(draft Draft) (encodedDraft, error) {
	var out encodedDraft
	if !draft.HasWorkingCopy {
		return out, nil
	}
	workingNodes, workingEdges, err := encodePayload(draft, "working copy", draft.Working)
	if err != nil {
		return encodedDraft{}, err
	}
	originalNodes, originalEdges, err := encodePayload(draft, "original snapshot", draft.Original)
	if err != nil {
		return encodedDraft{}, err
	}
	out.workingNodes, out.workingEdges = string(workingNodes), string(workingEdges)
	out.originalNodes, out.originalEdges = string(originalNodes), string(originalEdges)
	return out, nil
}

func (s *PostgresStore) GetDraft(ctx context.Context, draftID int64) (Draft, error) {
	item, err := scanDraft(s.q.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM tree_drafts WHERE id=$1`, draftID))
	if err != nil {
		return Draft{}, notFoundOr(err, "get draft")
	}
	return item, nil
}

func (s *PostgresStore) LockDraft(ctx context.Context, draftID int64) (Draft, error) {
	item, err := scanDraft(s.q.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM tree_drafts WHERE id=$1 FOR UPDATE`, draftID))
	if err != nil {
		return Draft{}, notFoundOr(err, "lock draft")
	}
	return item, nil
}

func (s *PostgresStore) FindActiveDraft(ctx context.Context, treeID, editorID int64) (Draft, error) {
	item, err := scanDraft(s.q.QueryRowContext(ctx, `
		SELECT `+draftColumns+`
		FROM tree_drafts
		WHERE tree_id=$1 AND editor_id=$2 AND status IN ('DRAFT', 'REJECTED')
		FOR UPDATE
	`, treeID, editorID))
	if err != nil {
		return Draft{}, notFoundOr(err, "find active draft")
	}
	return item, nil
}

func (s *PostgresStore) ListDraftsByEditor(ctx context.Context, editorID int64) ([]Draft, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM tree_drafts
		WHERE editor_id=$1
		ORDER BY updated_at DESC, id DESC
	`, editorID)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	items := make([]Draft, 0)
	for rows.Next() {
		item, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertDraft(ctx context.Context, draft Draft) (Draft, error) {
	encoded, err := encodeDraft(draft)
	if err != nil {
		return Draft{}, err
	}
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO tree_drafts (
			tree_id, editor_id, status,
			working_name, working_description, working_is_public, working_nodes_json, working_edges_json,
			original_name, original_description, original_is_public, original_nodes_json, original_edges_json,
			message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11, $12::jsonb, $13::jsonb, $14)
		RETURNING id, created_at, updated_at
	`,
		draft.TreeID, draft.EditorID, string(draft.Status),
		draft.Working.Meta.Name, draft.Working.Meta.Description, draft.Working.Meta.IsPublic, encoded.workingNodes, encoded.workingEdges,
		draft.Original.Meta.Name, draft.Original.Meta.Description, draft.Original.Meta.IsPublic, encoded.originalNodes, encoded.originalEdges,
		draft.Message,
	).Scan(&draft.ID, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		return Draft{}, translatePgError(fmt.Errorf("insert draft: %w", err))
	}
	return draft, nil
}

func (s *PostgresStore) UpdateDraft(ctx context.Context, draft Draft) error {
	encoded, err := encodeDraft(draft)
	if err != nil {
		return err
	}
	result, err := s.q.ExecContext(ctx, `
		UPDATE tree_drafts
		SET status=$2,
			working_name=$3, working_description=$4, working_is_public=$5, working_nodes_json=$6::jsonb, working_edges_json=$7::jsonb,
			original_name=$8, original_description=$9, original_is_public=$10, original_nodes_json=$11::jsonb, original_edges_json=$12::jsonb,
			message=$13, review_message=$14, reviewed_by=$15, last_submitted_at=$16, reviewed_at=$17,
			updated_at=NOW()
		WHERE id=$1
	`,
		draft.ID, string(draft.Status),
		draft.Working.Meta.Name, draft.Working.Meta.Description, draft.Working.Meta.IsPublic, encoded.workingNodes, encoded.workingEdges,
		draft.Original.Meta.Name, draft.Original.Meta.Description, draft.Original.Meta.IsPublic, encoded.originalNodes, encoded.originalEdges,
		draft.Message, draft.ReviewMessage, draft.ReviewedBy, draft.LastSubmittedAt, draft.ReviewedAt,
	)
	if err != nil {
		return translatePgError(fmt.Errorf("update draft: %w", err))
	}
	return requireAffected(result, "update draft")
}

func (s *PostgresStore) InsertSubmission(ctx context.Context, submission Submission) (Submission, error) {
	if submission.Outcome == "" {
		submission.Outcome = ReviewPending
	}
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO draft_submissions (draft_id, message, submitted_at, outcome)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, submission.DraftID, submission.Message, submission.SubmittedAt, string(submission.Outcome)).Scan(&submission.ID)
	if err != nil {
		return Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	return s.GetSubmission(ctx, submission.ID)
}

const submissionSelect = `
	SELECT s.id, s.draft_id, d.tree_id, t.name, d.editor_id, t.owner_id,
		s.message, s.submitted_at, s.outcome, s.review_message, s.reviewed_at
	FROM draft_submissions s
	JOIN tree_drafts d ON d.id = s.draft_id
	JOIN family_trees t ON t.id = d.tree_id
`

func scanSubmission(row rowScanner) (Submission, error) {
	var (
		item       Submission
		reviewedAt sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.DraftID, &item.TreeID, &item.TreeName, &item.EditorID, &item.OwnerID,
		&item.Message, &item.SubmittedAt, &item.Outcome, &item.ReviewMessage, &reviewedAt); err != nil {
		return Submission{}, err
	}
	if reviewedAt.Valid {
		item.ReviewedAt = &reviewedAt.Time
	}
	return item, nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, submissionID int64) (Submission, error) {
	item, err := scanSubmission(s.q.QueryRowContext(ctx, submissionSelect+` WHERE s.id=$1`, submissionID))
	if err != nil {
		return Submission{}, notFoundOr(err, "get submission")
	}
	return item, nil
}

func (s *PostgresStore) ResolvePendingSubmissions(ctx context.Context, draftID int64, outcome ReviewOutcome, message string, reviewedAt time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE draft_submissions
		SET outcome=$2, review_message=$3, reviewed_at=$4
		WHERE draft_id=$1 AND outcome='PENDING'
	`, draftID, string(outcome), message, reviewedAt)
	if err != nil {
		return fmt.Errorf("resolve pending submissions: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSubmissionsByOwner(ctx context.Context, ownerID int64, pendingOnly bool) ([]Submission, error) {
	return s.listSubmissions(ctx, submissionSelect+`
		WHERE t.owner_id=$1 AND (NOT $2::boolean OR s.outcome='PENDING')
		ORDER BY s.submitted_at DESC, s.id DESC
	`, ownerID, pendingOnly)
}

func (s *PostgresStore) ListSubmissionsByEditor(ctx context.Context, editorID int64) ([]Submission, error) {
	return s.listSubmissions(ctx, submissionSelect+`
		WHERE d.editor_id=$1
		ORDER BY s.submitted_at DESC, s.id DESC
	`, editorID)
}

func (s *PostgresStore) listSubmissions(ctx context.Context, query string, args ...any) ([]Submission, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	items := make([]Submission, 0)
	for rows.Next() {
		item, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return items, nil
}

func requireAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", what, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
