package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"

	"github.com/medicart/medicart-api/pkg/config"
	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/storage"
	"github.com/medicart/medicart-api/pkg/types"
)

const pingTimeout = 5 * time.Second

var (
	errBucketRequired       = errors.New("gcs bucket name is required")
	errClientNotInitialized = errors.New("gcs client not initialized")
)

// Client stores images in a single GCS bucket through the JSON API.
type Client struct {
	svc           *storagev1.Service
	bucket        string
	publicBaseURL string
}

var _ storage.ImageStore = (*Client)(nil)

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errBucketRequired
	}

	opts := append(clientOptions(gcp), extra...)
	svc, err := storagev1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	client := &Client{
		svc:           svc,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
	if client.publicBaseURL == "" {
		client.publicBaseURL = "https://storage.googleapis.com"
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", bucket), "gcs client initialized")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

// Ping checks the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.svc == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.svc.Buckets.Get(c.bucket).Context(ctx).Do(); err != nil {
		return fmt.Errorf("bucket %q: %w", c.bucket, err)
	}
	return nil
}

// Upload writes the object under a fresh name and returns its public URL.
// The object name doubles as the storage id.
func (c *Client) Upload(ctx context.Context, in storage.Upload) (types.StoredImage, error) {
	if c == nil || c.svc == nil {
		return types.StoredImage{}, errClientNotInitialized
	}
	if in.Body == nil {
		return types.StoredImage{}, errors.New("upload body is required")
	}
	name := objectName(in.Folder, in.Extension)

	obj := &storagev1.Object{Name: name, ContentType: in.ContentType}
	stored, err := c.svc.Objects.Insert(c.bucket, obj).
		Media(in.Body, googleapi.ContentType(in.ContentType)).
		Context(ctx).
		Do()
	if err != nil {
		return types.StoredImage{}, fmt.Errorf("upload %s: %w", name, err)
	}
	if stored != nil && stored.Name != "" {
		name = stored.Name
	}

	return types.StoredImage{
		URL:       c.publicURL(name),
		StorageID: name,
	}, nil
}

// Destroy deletes an object. Missing objects are treated as already gone.
func (c *Client) Destroy(ctx context.Context, storageID string) error {
	if c == nil || c.svc == nil {
		return errClientNotInitialized
	}
	storageID = strings.TrimSpace(storageID)
	if storageID == "" {
		return nil
	}
	err := c.svc.Objects.Delete(c.bucket, storageID).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", storageID, err)
	}
	return nil
}

func (c *Client) publicURL(name string) string {
	return fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.bucket, name)
}

func objectName(folder, ext string) string {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		folder = "misc"
	}
	return path.Join(folder, uuid.NewString()+ext)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}
