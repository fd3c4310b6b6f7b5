package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lineage/api/internal/auth"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*testEnv, http.Handler) {
	t.Helper()
	env := newTestEnv(t)
	return env, NewHTTPServer(env.service, testSecret, "*").Handler()
}

func tokenFor(t *testing.T, userID int64) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), userID, "", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestHealthAndReadyNeedNoSession(t *testing.T) {
	_, handler := newTestServer(t)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("health: %d %v", rec.Code, body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("ready: %d %v", rec.Code, body)
	}
}

func TestRequestsWithoutValidTokenAreRejected(t *testing.T) {
	_, handler := newTestServer(t)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/drafts", "", nil)
	if rec.Code != http.StatusUnauthorized || body["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected 401, got %d %v", rec.Code, body)
	}
	rec, _ = doJSON(t, handler, http.MethodGet, "/api/drafts", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestDraftReviewFlowOverHTTP(t *testing.T) {
	env, handler := newTestServer(t)
	editor := tokenFor(t, env.editor.ID)
	owner := tokenFor(t, env.owner.ID)

	rec, body := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/trees/%d/draft", env.tree.ID), editor, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create draft: %d %v", rec.Code, body)
	}
	draftID := int64(body["id"].(float64))
	if nodes, ok := body["nodes"].([]any); !ok || len(nodes) != 2 {
		t.Fatalf("expected two nodes, got %v", body["nodes"])
	}

	rec, body = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/trees/%d/draft/memorials/%d", env.tree.ID, env.third.ID), editor, nil)
	if rec.Code != http.StatusOK || body["hasChanges"] != true {
		t.Fatalf("add memorial: %d %v", rec.Code, body)
	}
	rec, body = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/trees/%d/draft/memorials/%d", env.tree.ID, env.third.ID), editor, nil)
	if rec.Code != http.StatusConflict || body["code"] != "ALREADY_EXISTS" {
		t.Fatalf("expected 409 on duplicate add, got %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/trees/%d/draft/relations", env.tree.ID), editor, map[string]any{
		"sourceId":     env.third.ID,
		"targetId":     env.first.ID,
		"relationType": "CHILD",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add relation: %d %v", rec.Code, body)
	}
	ref, _ := body["relationRef"].(string)
	if len(ref) < 5 || ref[:4] != "new:" {
		t.Fatalf("expected a proposal ref, got %q", ref)
	}

	rec, body = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/drafts/%d", draftID), owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner view: %d %v", rec.Code, body)
	}
	changes, _ := body["changes"].(map[string]any)
	if added, _ := changes["addedNodes"].([]any); len(added) != 1 {
		t.Fatalf("expected one added node in changes, got %v", body["changes"])
	}

	rec, body = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/drafts/%d/submit", draftID), editor, map[string]any{"message": "added Clara"})
	if rec.Code != http.StatusCreated || body["outcome"] != "PENDING" {
		t.Fatalf("submit: %d %v", rec.Code, body)
	}
	submissionID := int64(body["id"].(float64))

	rec, body = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/drafts/%d/approve", draftID), editor, nil)
	if rec.Code != http.StatusForbidden || body["code"] != "FORBIDDEN" {
		t.Fatalf("expected editor approve to be forbidden, got %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/submissions?scope=pending", owner, nil)
	if items, _ := body["items"].([]any); rec.Code != http.StatusOK || len(items) != 1 {
		t.Fatalf("pending submissions: %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/submissions/%d/respond", submissionID), owner, map[string]any{"approved": true, "message": "thanks"})
	if rec.Code != http.StatusOK {
		t.Fatalf("respond: %d %v", rec.Code, body)
	}
	draft, _ := body["draft"].(map[string]any)
	if draft["status"] != "APPLIED" {
		t.Fatalf("expected applied draft, got %v", body["draft"])
	}
	submission, _ := body["submission"].(map[string]any)
	if submission["outcome"] != "APPROVED" || submission["reviewMessage"] != "thanks" {
		t.Fatalf("expected approved submission, got %v", body["submission"])
	}
	applied, _ := body["applied"].(map[string]any)
	created, _ := applied["createdEdges"].(map[string]any)
	if _, ok := created[ref]; !ok {
		t.Fatalf("expected %s in created edges, got %v", ref, applied["createdEdges"])
	}

	rec, body = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/submissions/%d/respond", submissionID), owner, map[string]any{"approved": false})
	if rec.Code != http.StatusConflict || body["code"] != "INVALID_STATE" {
		t.Fatalf("expected second response to conflict, got %d %v", rec.Code, body)
	}
}

func TestRespondRequiresApprovedFlag(t *testing.T) {
	env, handler := newTestServer(t)
	owner := tokenFor(t, env.owner.ID)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/submissions/1/respond", owner, map[string]any{"message": "?"})
	if rec.Code != http.StatusUnprocessableEntity || body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %d %v", rec.Code, body)
	}
}

func TestRejectOverHTTPThenResume(t *testing.T) {
	env, handler := newTestServer(t)
	editor := tokenFor(t, env.editor.ID)
	owner := tokenFor(t, env.owner.ID)

	rec, body := doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/trees/%d/draft/memorials/%d", env.tree.ID, env.second.ID), editor, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove memorial: %d %v", rec.Code, body)
	}
	draftID := int64(body["id"].(float64))
	if rec, body = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/drafts/%d/submit", draftID), editor, map[string]any{}); rec.Code != http.StatusCreated {
		t.Fatalf("submit: %d %v", rec.Code, body)
	}
	rec, body = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/drafts/%d/reject", draftID), owner, map[string]any{"message": "needs sources"})
	if rec.Code != http.StatusOK || body["status"] != "REJECTED" {
		t.Fatalf("reject: %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/submissions?scope=editor", editor, nil)
	items, _ := body["items"].([]any)
	if rec.Code != http.StatusOK || len(items) != 1 || items[0].(map[string]any)["outcome"] != "REJECTED" {
		t.Fatalf("editor submissions: %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/trees/%d/draft", env.tree.ID), editor, nil)
	if rec.Code != http.StatusOK || body["status"] != "DRAFT" || body["hasChanges"] != false {
		t.Fatalf("resume: %d %v", rec.Code, body)
	}
	if nodes, _ := body["nodes"].([]any); len(nodes) != 2 {
		t.Fatalf("expected reset working copy, got %v", body["nodes"])
	}
}

func TestRoutingErrors(t *testing.T) {
	env, handler := newTestServer(t)
	editor := tokenFor(t, env.editor.ID)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/drafts/abc", editor, nil)
	if rec.Code != http.StatusBadRequest || body["code"] != "INVALID_ID" {
		t.Fatalf("expected invalid id, got %d %v", rec.Code, body)
	}
	rec, _ = doJSON(t, handler, http.MethodGet, "/api/nowhere", editor, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec, body = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/trees/%d/draft/relations/zero", env.tree.ID), editor, nil)
	if rec.Code != http.StatusBadRequest || body["code"] != "INVALID_RELATION_REF" {
		t.Fatalf("expected invalid ref, got %d %v", rec.Code, body)
	}
	rec, body = doJSON(t, handler, http.MethodGet, "/api/submissions?scope=everyone", editor, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected validation error for scope, got %d %v", rec.Code, body)
	}
}

func TestPermissionsOverHTTP(t *testing.T) {
	env, handler := newTestServer(t)
	owner := tokenFor(t, env.owner.ID)
	stranger := tokenFor(t, env.stranger.ID)

	rec, _ := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/trees/%d/draft", env.tree.ID), stranger, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden before grant, got %d", rec.Code)
	}
	rec, body := doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/trees/%d/permissions/%d", env.tree.ID, env.stranger.ID), owner, map[string]any{"role": "editor"})
	if rec.Code != http.StatusOK {
		t.Fatalf("grant: %d %v", rec.Code, body)
	}
	rec, _ = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/trees/%d/draft", env.tree.ID), stranger, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected draft after grant, got %d", rec.Code)
	}
	rec, _ = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/trees/%d/permissions/%d", env.tree.ID, env.stranger.ID), owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: %d", rec.Code)
	}
	rec, _ = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/trees/%d/draft", env.tree.ID), stranger, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden after revoke, got %d", rec.Code)
	}
}

func TestSearchOverHTTP(t *testing.T) {
	env, handler := newTestServer(t)
	rec, body := doJSON(t, handler, http.MethodGet, "/api/search?q=harlow", tokenFor(t, env.editor.ID), nil)
	if rec.Code != http.StatusOK || body["total"].(float64) != 1 {
		t.Fatalf("search: %d %v", rec.Code, body)
	}
}
