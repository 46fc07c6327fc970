package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrUploadRejected wraps bucket policy violations.
var ErrUploadRejected = errors.New("upload rejected")

// sniffLen is how much of a file is read for type detection.
const sniffLen = 3072

// BlobStore is the bucket attachment bytes live in.
type BlobStore interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, name string) error
	Bucket() string
}

// BucketPolicy limits what may be uploaded
type BucketPolicy struct {
	MaxBytes     int64
	AllowedTypes []string // MIME types; a trailing /* allows a family
}

// Check validates the declared size and the sniffed content type of the
// first bytes of a file, and returns the detected MIME type.
func (p BucketPolicy) Check(head []byte, size int64) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("%w: file is empty", ErrUploadRejected)
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return "", fmt.Errorf("%w: file exceeds the %d byte limit", ErrUploadRejected, p.MaxBytes)
	}
	detected := mimetype.Detect(head)
	if len(p.AllowedTypes) == 0 {
		return detected.String(), nil
	}
	for _, allowed := range p.AllowedTypes {
		if prefix, ok := strings.CutSuffix(allowed, "/*"); ok {
			if strings.HasPrefix(detected.String(), prefix+"/") {
				return detected.String(), nil
			}
			continue
		}
		if detected.Is(allowed) {
			return detected.String(), nil
		}
	}
	return "", fmt.Errorf("%w: file type %s is not allowed", ErrUploadRejected, detected.String())
}

// ObjectName builds a collision-free key grouped by owner.
func ObjectName(organizationID uint, entityType string, entityID uint, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" {
		base = "file"
	}
	return fmt.Sprintf("org-%d/%s-%d/%s-%s-%s", organizationID, entityType, entityID,
		time.Now().UTC().Format("20060102"), uuid.NewString()[:8], base)
}

// Attachments stores files for CRM records in the bucket and tracks them
// in the attachments table.
type Attachments struct {
	db     *gorm.DB
	store  BlobStore
	policy BucketPolicy
	logger logrus.FieldLogger
}

func NewAttachments(db *gorm.DB, store BlobStore, policy BucketPolicy, logger logrus.FieldLogger) *Attachments {
	return &Attachments{db: db, store: store, policy: policy, logger: logger}
}

// Upload is one file to attach
type Upload struct {
	OrganizationID uint
	UploadedBy     uint
	EntityType     string
	EntityID       uint
	FileName       string
	Size           int64
	Body           io.Reader
}

func (a *Attachments) Upload(ctx context.Context, up Upload) (*models.Attachment, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(up.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	contentType, err := a.policy.Check(head, up.Size)
	if err != nil {
		return nil, err
	}
	if a.store == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	name := ObjectName(up.OrganizationID, up.EntityType, up.EntityID, up.FileName)
	publicURL, err := a.store.Put(ctx, name, contentType, io.MultiReader(bytes.NewReader(head), up.Body))
	if err != nil {
		return nil, err
	}

	attachment := models.Attachment{
		OrganizationID: up.OrganizationID,
		EntityType:     up.EntityType,
		EntityID:       up.EntityID,
		FileName:       path.Base(up.FileName),
		Bucket:         a.store.Bucket(),
		ObjectName:     name,
		ContentType:    contentType,
		Size:           up.Size,
		PublicURL:      publicURL,
		UploadedBy:     up.UploadedBy,
	}
	if err := a.db.WithContext(ctx).Create(&attachment).Error; err != nil {
		// the row is the only reference to the blob
		if derr := a.store.Delete(ctx, name); derr != nil {
			utils.LogError(a.logger, "attachment_orphan", derr, map[string]interface{}{"object": name})
		}
		return nil, fmt.Errorf("failed to save attachment: %w", err)
	}
	return &attachment, nil
}

// Delete removes the blob, then the row.
func (a *Attachments) Delete(ctx context.Context, attachment *models.Attachment) error {
	if a.store == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := a.store.Delete(ctx, attachment.ObjectName); err != nil {
		return err
	}
	return a.db.WithContext(ctx).Delete(attachment).Error
}

// DeleteFor removes every attachment of one record.
func (a *Attachments) DeleteFor(ctx context.Context, organizationID uint, entityType string, entityID uint) error {
	var attachments []models.Attachment
	err := a.db.WithContext(ctx).
		Where("organization_id = ? AND entity_type = ? AND entity_id = ?", organizationID, entityType, entityID).
		Find(&attachments).Error
	if err != nil {
		return err
	}
	for i := range attachments {
		if err := a.Delete(ctx, &attachments[i]); err != nil {
			return fmt.Errorf("failed to delete attachment %d: %w", attachments[i].ID, err)
		}
	}
	return nil
}
