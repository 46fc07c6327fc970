package integrations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fieldcrm/config"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"
)

// GCSStore keeps attachment blobs in a Cloud Storage bucket.
type GCSStore struct {
	svc        *storage.Service
	bucket     string
	publicBase string
}

// NewGCSStore uses the credentials file when set, else application default
// credentials.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Bucket
	}
	return &GCSStore{svc: svc, bucket: cfg.Bucket, publicBase: base}, nil
}

func (s *GCSStore) Bucket() string {
	return s.bucket
}

// Put uploads r as object name and returns its public URL.
func (s *GCSStore) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	object := &storage.Object{Name: name, ContentType: contentType}
	if _, err := s.svc.Objects.Insert(s.bucket, object).
		Media(r, googleapi.ContentType(contentType)).
		Context(ctx).
		Do(); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return s.publicBase + "/" + name, nil
}

// Delete removes an object. A missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, name string) error {
	err := s.svc.Objects.Delete(s.bucket, name).Context(ctx).Do()
	if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}
