package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"fieldcrm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	pdfHeader = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Put(_ context.Context, name, _ string, r io.Reader) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = data
	return "https://storage.example/crm/" + name, nil
}

func (s *memStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
	return nil
}

func (s *memStore) Bucket() string { return "crm" }

func TestBucketPolicyCheck(t *testing.T) {
	policy := BucketPolicy{MaxBytes: 1024, AllowedTypes: []string{"application/pdf", "image/*"}}

	cases := []struct {
		name    string
		head    []byte
		size    int64
		want    string
		wantErr string
	}{
		{name: "pdf", head: pdfHeader, size: 100, want: "application/pdf"},
		{name: "image family", head: pngHeader, size: 100, want: "image/png"},
		{name: "empty", head: nil, size: 0, wantErr: "file is empty"},
		{name: "too large", head: pdfHeader, size: 2048, wantErr: "exceeds the 1024 byte limit"},
		{name: "type not allowed", head: []byte("just some notes"), size: 15, wantErr: "is not allowed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := policy.Check(tc.head, tc.size)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUploadRejected))
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestObjectNameStripsDirectories(t *testing.T) {
	name := ObjectName(7, models.EntityContact, 42, `..\..\secret\invoice.pdf`)
	assert.True(t, strings.HasPrefix(name, "org-7/contact-42/"), name)
	assert.True(t, strings.HasSuffix(name, "-invoice.pdf"), name)
	assert.NotContains(t, name, "..")
}

func TestUploadAndDeleteFor(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	store := newMemStore()
	attachments := NewAttachments(db, store, BucketPolicy{MaxBytes: 1 << 20}, testLogger())

	body := append(append([]byte{}, pdfHeader...), bytes.Repeat([]byte("x"), 5000)...)
	attachment, err := attachments.Upload(context.Background(), Upload{
		OrganizationID: org.ID,
		EntityType:     models.EntityContact,
		EntityID:       42,
		FileName:       "quote.pdf",
		Size:           int64(len(body)),
		Body:           bytes.NewReader(body),
	})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", attachment.ContentType)
	assert.Equal(t, "crm", attachment.Bucket)
	assert.Equal(t, body, store.objects[attachment.ObjectName])

	require.NoError(t, attachments.DeleteFor(context.Background(), org.ID, models.EntityContact, 42))
	assert.Empty(t, store.objects)
	var count int64
	require.NoError(t, db.Model(&models.Attachment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUploadStoreFailureWritesNoRow(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	store := newMemStore()
	store.putErr = errors.New("bucket unavailable")
	attachments := NewAttachments(db, store, BucketPolicy{}, testLogger())

	_, err := attachments.Upload(context.Background(), Upload{
		OrganizationID: org.ID,
		EntityType:     models.EntityContact,
		EntityID:       1,
		FileName:       "photo.png",
		Size:           int64(len(pngHeader)),
		Body:           bytes.NewReader(pngHeader),
	})
	assert.EqualError(t, err, "bucket unavailable")

	var count int64
	require.NoError(t, db.Model(&models.Attachment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUploadWithoutStorage(t *testing.T) {
	attachments := NewAttachments(nil, nil, BucketPolicy{}, testLogger())
	_, err := attachments.Upload(context.Background(), Upload{
		FileName: "photo.png",
		Size:     int64(len(pngHeader)),
		Body:     bytes.NewReader(pngHeader),
	})
	assert.EqualError(t, err, "storage is not configured")
}
