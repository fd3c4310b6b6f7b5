package app

import (
	"context"

	"lineage/api/internal/store"
)

// ListSubmissionsForOwner returns every submission on trees owned by ownerID,
// newest first.
func (s *Service) ListSubmissionsForOwner(ctx context.Context, ownerID int64) ([]store.Submission, error) {
	items, err := s.store.ListSubmissionsByOwner(ctx, ownerID, false)
	if err != nil {
		return nil, translateStoreError(err, "submission")
	}
	return items, nil
}

// ListPendingSubmissions returns the owner's submissions that have not been
// reviewed yet.
func (s *Service) ListPendingSubmissions(ctx context.Context, ownerID int64) ([]store.Submission, error) {
	items, err := s.store.ListSubmissionsByOwner(ctx, ownerID, true)
	if err != nil {
		return nil, translateStoreError(err, "submission")
	}
	return items, nil
}

func (s *Service) ListSubmissionsByEditor(ctx context.Context, editorID int64) ([]store.Submission, error) {
	items, err := s.store.ListSubmissionsByEditor(ctx, editorID)
	if err != nil {
		return nil, translateStoreError(err, "submission")
	}
	return items, nil
}

// SubmissionResponse is the outcome of RespondToSubmission. Applied is set
// only when the submission was approved.
type SubmissionResponse struct {
	Submission store.Submission
	Draft      store.Draft
	Applied    *ApplyResult
}

// RespondToSubmission reviews the submission's draft. Approving or rejecting
// the draft resolves this submission and any other pending one for it.
func (s *Service) RespondToSubmission(ctx context.Context, submissionID, reviewerID int64, approved bool, reviewMessage string) (SubmissionResponse, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return SubmissionResponse{}, translateStoreError(err, "submission")
	}
	if submission.OwnerID != reviewerID {
		return SubmissionResponse{}, forbidden("only the owner of tree %d may respond to submission %d", submission.TreeID, submissionID)
	}
	if submission.Outcome != store.ReviewPending {
		return SubmissionResponse{}, invalidState("submission %d was already %s", submissionID, submission.Outcome)
	}

	var response SubmissionResponse
	if approved {
		result, err := s.ApproveDraft(ctx, submission.DraftID, reviewerID, reviewMessage)
		if err != nil {
			return SubmissionResponse{}, err
		}
		response.Draft = result.Draft
		response.Applied = &result
	} else {
		rejected, err := s.RejectDraft(ctx, submission.DraftID, reviewerID, reviewMessage)
		if err != nil {
			return SubmissionResponse{}, err
		}
		response.Draft = rejected
	}

	response.Submission, err = s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return SubmissionResponse{}, translateStoreError(err, "submission")
	}
	return response, nil
}
