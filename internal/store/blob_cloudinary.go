package store

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// CloudinaryConfig holds settings for CloudinaryBlobStore.
type CloudinaryConfig struct {
	CloudName     string
	APIKey        string
	APISecret     string
	Folder        string        // Optional prefix for every public id
	UploadTimeout time.Duration // Timeout for a whole upload including retries
	MaxRetries    int           // Maximum retry attempts for uploads
}

// DefaultCloudinaryConfig provides default configuration values.
func DefaultCloudinaryConfig() CloudinaryConfig {
	return CloudinaryConfig{
		UploadTimeout: 30 * time.Second,
		MaxRetries:    3,
	}
}

// Custom errors for specific failure cases.
var (
	ErrMissingCredentials = fmt.Errorf("cloudinary credentials are missing")
	ErrCloudinaryInit     = fmt.Errorf("failed to initialize Cloudinary")
)

// formatAliases lists the formats Cloudinary may report for an extension.
var formatAliases = map[string][]string{
	"svg":  {"svg"},
	"png":  {"png"},
	"jpg":  {"jpg", "jpeg"},
	"jpeg": {"jpg", "jpeg"},
	"webp": {"webp"},
}

// CloudinaryBlobStore serves badge artwork from Cloudinary. A blob path such
// as badges/sdg/7.png maps to public id badges/sdg/7 with format png.
type CloudinaryBlobStore struct {
	client *cloudinary.Cloudinary
	config CloudinaryConfig
	logger *zap.Logger
}

// NewCloudinaryBlobStore creates a blob store from API credentials.
func NewCloudinaryBlobStore(config CloudinaryConfig, logger *zap.Logger) (*CloudinaryBlobStore, error) {
	if config.CloudName == "" || config.APIKey == "" || config.APISecret == "" {
		return nil, ErrMissingCredentials
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.UploadTimeout <= 0 {
		config.UploadTimeout = DefaultCloudinaryConfig().UploadTimeout
	}

	cld, err := cloudinary.NewFromParams(config.CloudName, config.APIKey, config.APISecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCloudinaryInit, err)
	}

	logger.Info("Cloudinary blob store initialized", zap.String("cloud_name", config.CloudName))
	return &CloudinaryBlobStore{client: cld, config: config, logger: logger}, nil
}

// DownloadURL looks the asset up with the Admin API and returns its secure URL.
func (c *CloudinaryBlobStore) DownloadURL(ctx context.Context, blobPath string) (string, error) {
	publicID, ext, err := c.splitBlobPath(blobPath)
	if err != nil {
		return "", err
	}

	result, err := c.client.Admin.Asset(ctx, admin.AssetParams{
		PublicID:  publicID,
		AssetType: api.Image,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", NewError(CodeTimeout, "download_url", blobPath, ctxErr)
		}
		return "", NewError(CodeUnavailable, "download_url", blobPath, err)
	}
	if result.Error.Message != "" {
		return "", classifyCloudinaryMessage(blobPath, result.Error.Message)
	}
	if !slices.Contains(formatAliases[ext], strings.ToLower(result.Format)) {
		return "", NewError(CodeNotFound, "download_url", blobPath, nil)
	}
	return result.SecureURL, nil
}

// Put uploads data under the public id derived from blobPath, overwriting any
// previous asset.
func (c *CloudinaryBlobStore) Put(ctx context.Context, blobPath string, data []byte) error {
	publicID, _, err := c.splitBlobPath(blobPath)
	if err != nil {
		return err
	}

	startTime := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.config.UploadTimeout)
	defer cancel()

	params := uploader.UploadParams{
		PublicID:     publicID,
		Overwrite:    ptrBool(true),
		ResourceType: "image",
	}

	operation := func() error {
		result, opErr := c.client.Upload.Upload(ctx, bytes.NewReader(data), params)
		if opErr != nil {
			return opErr
		}
		if result.Error.Message != "" {
			return backoff.Permanent(fmt.Errorf("cloudinary: %s", result.Error.Message))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.config.UploadTimeout / 2
	err = backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.MaxRetries)), ctx),
		func(err error, d time.Duration) {
			c.logger.Warn("Upload attempt failed",
				zap.String("path", blobPath),
				zap.Error(err),
				zap.Duration("backoff", d))
		},
	)
	if err != nil {
		c.logger.Error("All upload attempts failed",
			zap.String("path", blobPath),
			zap.Int("attempts", c.config.MaxRetries),
			zap.Error(err))
		if ctx.Err() != nil {
			return NewError(CodeTimeout, "put", blobPath, err)
		}
		return NewError(CodeUnavailable, "put", blobPath, err)
	}

	c.logger.Info("Blob uploaded",
		zap.String("path", blobPath),
		zap.Int("size", len(data)),
		zap.Duration("duration", time.Since(startTime)))
	return nil
}

func (c *CloudinaryBlobStore) splitBlobPath(blobPath string) (publicID, ext string, err error) {
	clean := strings.Trim(blobPath, "/")
	ext = strings.ToLower(strings.TrimPrefix(path.Ext(clean), "."))
	if clean == "" || ext == "" {
		return "", "", NewError(CodeInvalid, "blob_path", blobPath, fmt.Errorf("missing extension"))
	}
	if _, ok := formatAliases[ext]; !ok {
		return "", "", NewError(CodeInvalid, "blob_path", blobPath, fmt.Errorf("unsupported extension %q", ext))
	}
	publicID = strings.TrimSuffix(clean, path.Ext(clean))
	if c.config.Folder != "" {
		publicID = strings.Trim(c.config.Folder, "/") + "/" + publicID
	}
	return publicID, ext, nil
}

func classifyCloudinaryMessage(blobPath, msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found"):
		return NewError(CodeNotFound, "download_url", blobPath, nil)
	case strings.Contains(lower, "not allowed"), strings.Contains(lower, "unauthorized"), strings.Contains(lower, "invalid signature"):
		return NewError(CodePermissionDenied, "download_url", blobPath, fmt.Errorf("%s", msg))
	case strings.Contains(lower, "rate limit"):
		return NewError(CodeUnavailable, "download_url", blobPath, fmt.Errorf("%s", msg))
	}
	// Anything unrecognised is treated as transient so the caller does not
	// remember it as a definitive miss.
	return NewError(CodeUnavailable, "download_url", blobPath, fmt.Errorf("%s", msg))
}

// ptrBool returns a pointer to a bool.
func ptrBool(b bool) *bool {
	return &b
}

var _ BlobStore = (*CloudinaryBlobStore)(nil)
