// Package media uploads user files (book covers, reel videos, story media) and
// returns the URL the stored records point at.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// Uploader stores a file and returns its download URL.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// StorageUploader writes objects into a Firebase Storage bucket.
type StorageUploader struct {
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
}

// NewStorageUploader creates an uploader writing under prefix in bucket.
func NewStorageUploader(bucket *storage.BucketHandle, bucketName, prefix string) *StorageUploader {
	return &StorageUploader{bucket: bucket, bucketName: bucketName, prefix: prefix}
}

// Upload writes the object with a download token and returns the tokenized
// Firebase download URL.
func (u *StorageUploader) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	object := path.Join(u.prefix, fmt.Sprintf("%d_%s", time.Now().UnixNano(), path.Base(name)))
	token := uuid.NewString()

	w := u.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	return DownloadURL(u.bucketName, object, token), nil
}

// DownloadURL builds the public URL of a Firebase Storage object.
func DownloadURL(bucket, object, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(object), token)
}

// Chain tries each uploader in order and returns the first success.
type Chain struct {
	uploaders []Uploader
	logger    *slog.Logger
}

// NewChain creates a failover chain.
func NewChain(logger *slog.Logger, uploaders ...Uploader) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{uploaders: uploaders, logger: logger}
}

// Upload buffers nothing: r must be an io.Seeker if more than one uploader
// may be tried.
func (c *Chain) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if len(c.uploaders) == 0 {
		return "", errors.New("media: no uploader configured")
	}
	seeker, rewindable := r.(io.Seeker)

	var errs []error
	for i, u := range c.uploaders {
		if i > 0 {
			if !rewindable {
				break
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				errs = append(errs, err)
				break
			}
		}
		link, err := u.Upload(ctx, name, contentType, r)
		if err == nil {
			return link, nil
		}
		c.logger.Warn("upload failed, trying next uploader", "name", name, "attempt", i+1, "error", err)
		errs = append(errs, err)
	}
	return "", fmt.Errorf("media: upload %s: %w", name, errors.Join(errs...))
}
