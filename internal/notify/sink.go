package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"lineage/api/internal/store"
)

// OwnerNotice describes one submission the tree owner should review.
type OwnerNotice struct {
	OwnerID      int64
	EditorID     int64
	TreeID       int64
	TreeName     string
	DraftID      int64
	SubmissionID int64
	Message      string
	SubmittedAt  time.Time
}

// LogSink only writes the notice to the process log.
type LogSink struct{}

func (LogSink) NotifyOwner(_ context.Context, notice OwnerNotice) error {
	log.Printf("submission %d for draft %d on tree %d awaits review by user %d", notice.SubmissionID, notice.DraftID, notice.TreeID, notice.OwnerID)
	return nil
}

type userReader interface {
	GetUser(ctx context.Context, userID int64) (store.User, error)
}

// EmailSink mails the owner. Owners without an address are skipped.
type EmailSink struct {
	users   userReader
	mailer  *Mailer
	appName string
}

func NewEmailSink(users userReader, mailer *Mailer) *EmailSink {
	return &EmailSink{users: users, mailer: mailer, appName: "Lineage"}
}

type submissionEmailData struct {
	AppName      string
	OwnerName    string
	EditorName   string
	TreeName     string
	Message      string
	SubmissionID int64
}

func (s *EmailSink) NotifyOwner(ctx context.Context, notice OwnerNotice) error {
	owner, err := s.users.GetUser(ctx, notice.OwnerID)
	if err != nil {
		return fmt.Errorf("load owner %d: %w", notice.OwnerID, err)
	}
	if owner.Email == "" {
		log.Printf("owner %d has no email; submission %d not mailed", owner.ID, notice.SubmissionID)
		return nil
	}
	editorName := fmt.Sprintf("User %d", notice.EditorID)
	if editor, err := s.users.GetUser(ctx, notice.EditorID); err == nil && editor.DisplayName != "" {
		editorName = editor.DisplayName
	}

	html, err := renderTemplate(submissionEmailTemplate, submissionEmailData{
		AppName:      s.appName,
		OwnerName:    owner.DisplayName,
		EditorName:   editorName,
		TreeName:     notice.TreeName,
		Message:      notice.Message,
		SubmissionID: notice.SubmissionID,
	})
	if err != nil {
		return fmt.Errorf("render submission template: %w", err)
	}
	subject := fmt.Sprintf("Changes proposed for %s", notice.TreeName)
	if err := s.mailer.SendHTML([]string{owner.Email}, subject, html); err != nil {
		return fmt.Errorf("send submission email: %w", err)
	}
	return nil
}
