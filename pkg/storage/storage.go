// Package storage defines the image store used for medicine photos and
// prescription scans.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/medicart/medicart-api/pkg/types"
)

// Folders group uploads inside the bucket.
const (
	FolderMedicines     = "medicines"
	FolderPrescriptions = "prescriptions"
)

// Upload describes one object to store.
type Upload struct {
	Folder      string
	ContentType string
	Extension   string
	Body        io.Reader
}

// ImageStore uploads and destroys objects by opaque storage id.
type ImageStore interface {
	Upload(ctx context.Context, in Upload) (types.StoredImage, error)
	Destroy(ctx context.Context, storageID string) error
}

// ErrUnsupportedType is returned when sniffed content is outside the allow list.
var ErrUnsupportedType = errors.New("unsupported file type")

var (
	ImageTypes       = []string{"image/jpeg", "image/png", "image/webp"}
	PrescriptionDocs = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}
)

// Sniff detects the content type from the leading bytes of r and checks it
// against allowed. The returned Upload replays the sniffed bytes.
func Sniff(folder string, r io.Reader, allowed []string) (Upload, error) {
	var head bytes.Buffer
	mt, err := mimetype.DetectReader(io.TeeReader(r, &head))
	if err != nil {
		return Upload{}, fmt.Errorf("detect content type: %w", err)
	}
	for _, candidate := range allowed {
		if mt.Is(candidate) {
			return Upload{
				Folder:      folder,
				ContentType: candidate,
				Extension:   mt.Extension(),
				Body:        io.MultiReader(&head, r),
			}, nil
		}
	}
	return Upload{}, fmt.Errorf("%w: %s (allowed: %s)", ErrUnsupportedType, mt.String(), strings.Join(allowed, ", "))
}

// ErrDisabled is returned by Disabled for every upload.
var ErrDisabled = errors.New("object storage is not configured")

// Disabled stands in for the bucket when none is configured. Uploads fail;
// destroys are no-ops so cleanup paths stay quiet.
type Disabled struct{}

func (Disabled) Upload(context.Context, Upload) (types.StoredImage, error) {
	return types.StoredImage{}, ErrDisabled
}

func (Disabled) Destroy(context.Context, string) error { return nil }
