// Package archive keeps an immutable JSON record of every applied change set
// in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"lineage/api/internal/snapshot"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ChangeSet is what one approved draft did to a tree.
type ChangeSet struct {
	DraftID        int64            `json:"draftId"`
	TreeID         int64            `json:"treeId"`
	EditorID       int64            `json:"editorId"`
	ReviewerID     int64            `json:"reviewerId"`
	Message        string           `json:"message"`
	ReviewMessage  string           `json:"reviewMessage"`
	AppliedAt      time.Time        `json:"appliedAt"`
	Changes        snapshot.Changes `json:"changes"`
	CreatedEdgeIDs map[string]int64 `json:"createdEdgeIds"`
}

type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store writes change sets to a MinIO bucket.
type Store struct {
	client objectStore
	bucket string
}

// NewMinio connects to the endpoint and makes sure the bucket exists.
func NewMinio(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	store := &Store{client: client, bucket: cfg.Bucket}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	log.Printf("archive: created bucket %s", s.bucket)
	return nil
}

// ObjectName is trees/<treeId>/drafts/<draftId>.json.
func ObjectName(treeID, draftID int64) string {
	return fmt.Sprintf("trees/%d/drafts/%d.json", treeID, draftID)
}

func (s *Store) Put(ctx context.Context, changeSet ChangeSet) error {
	payload, err := json.MarshalIndent(changeSet, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal change set: %w", err)
	}
	name := ObjectName(changeSet.TreeID, changeSet.DraftID)
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}
