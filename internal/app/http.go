package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lineage/api/internal/auth"
	"lineage/api/internal/snapshot"
	"lineage/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	jwtSecret  []byte
	corsOrigin string
}

func NewHTTPServer(service *Service, jwtSecret, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, jwtSecret: []byte(jwtSecret), corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// Session is the caller identity carried by the bearer token.
type Session struct {
	UserID   int64
	UserName string
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}
		for name, err := range s.service.Readiness(ctx) {
			if err == nil {
				checks[name] = map[string]any{"status": "ok"}
				continue
			}
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "trees":
		if len(parts) >= 4 {
			treeID, ok := parseID(w, parts[2], "tree")
			if !ok {
				return
			}
			switch parts[3] {
			case "draft":
				s.handleTreeDraft(w, r, session, treeID, parts[4:])
				return
			case "permissions":
				s.handlePermissions(w, r, session, treeID, parts[4:])
				return
			}
		}
	case "drafts":
		s.handleDrafts(w, r, session, parts[2:])
		return
	case "submissions":
		s.handleSubmissions(w, r, session, parts[2:])
		return
	case "search":
		if len(parts) == 2 && r.Method == http.MethodGet {
			s.handleSearch(w, r, session)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleTreeDraft serves /api/trees/{treeId}/draft/...; rest is the path
// after "draft".
func (s *HTTPServer) handleTreeDraft(w http.ResponseWriter, r *http.Request, session Session, treeID int64, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		draft, err := s.service.GetOrCreateActiveDraft(r.Context(), treeID, session.UserID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		s.writeDraftView(w, r, draft.ID, session)
		return

	case len(rest) == 2 && rest[0] == "memorials":
		memorialID, ok := parseID(w, rest[1], "memorial")
		if !ok {
			return
		}
		var (
			draft store.Draft
			err   error
		)
		switch r.Method {
		case http.MethodPost:
			draft, err = s.service.AddMemorialToDraft(r.Context(), treeID, memorialID, session.UserID)
		case http.MethodDelete:
			draft, err = s.service.RemoveMemorialFromDraft(r.Context(), treeID, memorialID, session.UserID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draftJSON(draft))
		return

	case len(rest) == 1 && rest[0] == "relations" && r.Method == http.MethodPost:
		var body RelationInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		draft, ref, err := s.service.AddRelationToDraft(r.Context(), treeID, session.UserID, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := draftJSON(draft)
		payload["relationRef"] = ref.String()
		writeJSON(w, http.StatusCreated, payload)
		return

	case len(rest) == 2 && rest[0] == "relations" && r.Method == http.MethodDelete:
		ref, err := snapshot.ParseEdgeRef(rest[1])
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_RELATION_REF", err.Error(), nil)
			return
		}
		draft, err := s.service.RemoveRelationFromDraft(r.Context(), treeID, ref, session.UserID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draftJSON(draft))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePermissions(w http.ResponseWriter, r *http.Request, session Session, treeID int64, rest []string) {
	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	userID, ok := parseID(w, rest[0], "user")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPut:
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.GrantAccess(r.Context(), treeID, session.UserID, userID, body.Role); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "treeId": treeID, "userId": userID, "role": strings.ToLower(body.Role)})
	case http.MethodDelete:
		if err := s.service.RevokeAccess(r.Context(), treeID, session.UserID, userID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

// handleDrafts serves /api/drafts and /api/drafts/{id}/...
func (s *HTTPServer) handleDrafts(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		drafts, err := s.service.ListDrafts(r.Context(), session.UserID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		items := make([]map[string]any, 0, len(drafts))
		for _, draft := range drafts {
			items = append(items, draftJSON(draft))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	draftID, ok := parseID(w, rest[0], "draft")
	if !ok {
		return
	}

	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.writeDraftView(w, r, draftID, session)
		case http.MethodPut:
			var body DraftMetadata
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			draft, err := s.service.UpdateDraft(r.Context(), draftID, session.UserID, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, draftJSON(draft))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) != 2 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	switch rest[1] {
	case "submit":
		submission, err := s.service.SubmitDraft(r.Context(), draftID, session.UserID, body.Message)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, submissionJSON(submission))
	case "approve":
		result, err := s.service.ApproveDraft(r.Context(), draftID, session.UserID, body.Message)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, applyResultJSON(result))
	case "reject":
		draft, err := s.service.RejectDraft(r.Context(), draftID, session.UserID, body.Message)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draftJSON(draft))
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleSubmissions serves /api/submissions?scope=owner|editor|pending and
// /api/submissions/{id}/respond.
func (s *HTTPServer) handleSubmissions(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 && r.Method == http.MethodGet {
		var (
			items []store.Submission
			err   error
		)
		switch scope := r.URL.Query().Get("scope"); scope {
		case "", "owner":
			items, err = s.service.ListSubmissionsForOwner(r.Context(), session.UserID)
		case "pending":
			items, err = s.service.ListPendingSubmissions(r.Context(), session.UserID)
		case "editor":
			items, err = s.service.ListSubmissionsByEditor(r.Context(), session.UserID)
		default:
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "scope must be owner, editor or pending", nil)
			return
		}
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(items))
		for _, item := range items {
			payload = append(payload, submissionJSON(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": payload})
		return
	}

	if len(rest) == 2 && rest[1] == "respond" && r.Method == http.MethodPost {
		submissionID, ok := parseID(w, rest[0], "submission")
		if !ok {
			return
		}
		var body struct {
			Approved *bool  `json:"approved"`
			Message  string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Approved == nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "approved is required", nil)
			return
		}
		response, err := s.service.RespondToSubmission(r.Context(), submissionID, session.UserID, *body.Approved, body.Message)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := map[string]any{
			"submission": submissionJSON(response.Submission),
			"draft":      draftJSON(response.Draft),
		}
		if response.Applied != nil {
			payload["applied"] = applyResultJSON(*response.Applied)
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	response, err := s.service.Search(r.Context(), session.UserID, query.Get("q"), query.Get("type"), limit, offset)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) writeDraftView(w http.ResponseWriter, r *http.Request, draftID int64, session Session) {
	view, err := s.service.DraftContents(r.Context(), draftID, session.UserID)
	if err != nil {
		log.Printf("DraftContents(%d) error: %v", draftID, err)
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draftViewJSON(view))
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	claims, err := auth.ParseToken(s.jwtSecret, token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	return Session{UserID: userID, UserName: claims.Name}, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(w http.ResponseWriter, raw, what string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("invalid %s id", what), nil)
		return 0, false
	}
	return id, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func timeOrNil(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339)
}

func draftJSON(draft store.Draft) map[string]any {
	var reviewedBy any
	if draft.ReviewedBy != nil {
		reviewedBy = *draft.ReviewedBy
	}
	return map[string]any{
		"id":              draft.ID,
		"treeId":          draft.TreeID,
		"editorId":        draft.EditorID,
		"status":          draft.Status,
		"message":         draft.Message,
		"reviewMessage":   draft.ReviewMessage,
		"reviewedBy":      reviewedBy,
		"hasChanges":      HasAnyChanges(draft),
		"createdAt":       draft.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":       draft.UpdatedAt.UTC().Format(time.RFC3339),
		"lastSubmittedAt": timeOrNil(draft.LastSubmittedAt),
		"reviewedAt":      timeOrNil(draft.ReviewedAt),
	}
}

func draftViewJSON(view DraftView) map[string]any {
	payload := draftJSON(view.Draft)
	nodes := view.Working.Nodes
	if nodes == nil {
		nodes = []snapshot.NodeSummary{}
	}
	edges := view.Working.Edges
	if edges == nil {
		edges = []snapshot.EdgeSummary{}
	}
	payload["name"] = view.Working.Meta.Name
	payload["description"] = view.Working.Meta.Description
	payload["isPublic"] = view.Working.Meta.IsPublic
	payload["nodes"] = nodes
	payload["edges"] = edges
	payload["changes"] = view.Changes
	payload["fromCanonical"] = view.Canonical
	return payload
}

func submissionJSON(item store.Submission) map[string]any {
	return map[string]any{
		"id":            item.ID,
		"draftId":       item.DraftID,
		"treeId":        item.TreeID,
		"treeName":      item.TreeName,
		"editorId":      item.EditorID,
		"ownerId":       item.OwnerID,
		"message":       item.Message,
		"submittedAt":   item.SubmittedAt.UTC().Format(time.RFC3339),
		"outcome":       item.Outcome,
		"reviewMessage": item.ReviewMessage,
		"reviewedAt":    timeOrNil(item.ReviewedAt),
	}
}

func applyResultJSON(result ApplyResult) map[string]any {
	return map[string]any{
		"draft":         draftJSON(result.Draft),
		"attachedNodes": result.AttachedNodes,
		"detachedNodes": result.DetachedNodes,
		"deletedEdges":  result.DeletedEdges,
		"createdEdges":  result.CreatedEdges,
		"changes":       result.Changes,
	}
}
