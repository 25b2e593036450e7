// Package storage provides scratch files for fetched sources and the object
// storage collaborator used to publish, sign and delete media. It defines the
// ports and implementations for local disk, S3 and Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned when object storage operations are attempted
// without a configured backend.
var ErrNotConfigured = errors.New("object storage is not configured")

// Scratch holds temporary copies of remote sources while they are processed.
type Scratch interface {
	// SaveContent stores data under a name derived from its content, so the
	// same bytes always land at the same path. ext is appended as-is.
	SaveContent(ctx context.Context, data []byte, ext string) (path string, err error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error
}

// ObjectStore publishes files to a bucket.
type ObjectStore interface {
	// Upload stores the local file at key with a public-read, long-lived
	// cache policy.
	Upload(ctx context.Context, file, key string) (*UploadResult, error)

	// SignedURL returns a download link for key that forces an attachment
	// disposition with the given filename.
	SignedURL(ctx context.Context, key, filename string) (string, error)

	// DeleteObjects removes every object whose key starts with
	// "<namespace>/<name>" for each name. Empty input is a no-op.
	DeleteObjects(ctx context.Context, names []string, namespace string) (*DeleteResult, error)
}

// Location identifies an uploaded object.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Original describes the uploaded file.
type Original struct {
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// UploadResult is returned by Upload.
type UploadResult struct {
	Location Location `json:"location"`
	Original Original `json:"original"`
}

// DeleteError reports an object that could not be removed.
type DeleteError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// DeleteResult is returned by DeleteObjects.
type DeleteResult struct {
	Deleted []string      `json:"deleted"`
	Errors  []DeleteError `json:"errors,omitempty"`
}

// Upload cache policy shared by every backend.
const (
	cacheControl = "max-age=31536000"
	// signedURLTTL is the longest lifetime both S3 SigV4 and GCS V4 accept.
	signedURLTTL = 7 * 24 * time.Hour
)

// objectPrefix is the listing prefix for one name in a namespace.
func objectPrefix(namespace, name string) string {
	return namespace + "/" + name
}

// attachment renders a Content-Disposition that forces a download.
func attachment(filename string) string {
	return `attachment; filename="` + filename + `"`
}
