package app

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"lineage/api/internal/snapshot"
	"lineage/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so callers can test against the Err* values below.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	ErrNotFound       = domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	ErrForbidden      = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	ErrInvalidState   = domainError(http.StatusConflict, "INVALID_STATE", "Invalid state", nil)
	ErrAlreadyExists  = domainError(http.StatusConflict, "ALREADY_EXISTS", "Already exists", nil)
	ErrNoChanges      = domainError(http.StatusUnprocessableEntity, "NO_CHANGES", "Draft has no changes", nil)
	ErrValidation     = domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", nil)
	ErrSnapshotCodec  = domainError(http.StatusInternalServerError, "SNAPSHOT_CODEC_ERROR", "Stored draft could not be read", nil)
	ErrLockContention = domainError(http.StatusServiceUnavailable, "LOCK_CONTENTION", "Resource is busy, retry shortly", nil)
)

func notFound(format string, args ...any) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf(format, args...), nil)
}

func forbidden(format string, args ...any) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", fmt.Sprintf(format, args...), nil)
}

func invalidState(format string, args ...any) *DomainError {
	return domainError(http.StatusConflict, "INVALID_STATE", fmt.Sprintf(format, args...), nil)
}

func alreadyExists(format string, args ...any) *DomainError {
	return domainError(http.StatusConflict, "ALREADY_EXISTS", fmt.Sprintf(format, args...), nil)
}

func validation(format string, args ...any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf(format, args...), nil)
}

// translateStoreError turns store and codec failures into domain errors.
// what names the entity for NOT_FOUND messages. Codec failures are logged
// with the draft and tree they belong to before being reported.
func translateStoreError(err error, what string) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	var payloadErr *store.DraftPayloadError
	if errors.As(err, &payloadErr) {
		log.Printf("snapshot codec failure: draft=%d tree=%d part=%s: %v", payloadErr.DraftID, payloadErr.TreeID, payloadErr.Part, payloadErr.Err)
		return &DomainError{
			Status:  ErrSnapshotCodec.Status,
			Code:    ErrSnapshotCodec.Code,
			Message: ErrSnapshotCodec.Message,
			Details: map[string]any{"draftId": payloadErr.DraftID, "treeId": payloadErr.TreeID},
			Cause:   err,
		}
	}
	if errors.Is(err, snapshot.ErrCodec) {
		log.Printf("snapshot codec failure: %v", err)
		return &DomainError{Status: ErrSnapshotCodec.Status, Code: ErrSnapshotCodec.Code, Message: ErrSnapshotCodec.Message, Cause: err}
	}
	if errors.Is(err, store.ErrNotFound) {
		return &DomainError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: what + " not found", Cause: err}
	}
	if errors.Is(err, store.ErrConflict) {
		return &DomainError{Status: http.StatusConflict, Code: "ALREADY_EXISTS", Message: what + " already exists", Cause: err}
	}
	return err
}
