package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/maauso/transform-api/internal/failure"
)

// GCSConfig holds the configuration for Google Cloud Storage.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string // Optional: service account key file
	CredentialsJSON string // Optional: service account key contents
	Endpoint        string // Optional: emulator or test endpoint, disables auth
}

// GCSStore implements ObjectStore on Google Cloud Storage.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSStore creates a new GCSStore instance. Credentials fall back to the
// application default when neither file nor JSON is set.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Upload streams file to key, public-read with a one year cache lifetime.
func (s *GCSStore) Upload(ctx context.Context, file, key string) (*UploadResult, error) {
	info, mimeType, err := describe(file)
	if err != nil {
		return nil, failure.New(failure.ErrStorage, "storage.upload", err).With("key", key)
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, failure.New(failure.ErrStorage, "storage.upload", err).With("key", key)
	}
	defer func() { _ = f.Close() }()

	wc := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = mimeType
	wc.CacheControl = cacheControl
	wc.PredefinedACL = "publicRead"

	if _, err := io.Copy(wc, f); err != nil {
		_ = wc.Close()
		return nil, failure.New(failure.ErrStorage, "storage.upload", fmt.Errorf("io.Copy: %w", err)).
			With("bucket", s.bucket).
			With("key", key)
	}
	if err := wc.Close(); err != nil {
		return nil, failure.New(failure.ErrStorage, "storage.upload", fmt.Errorf("Writer.Close: %w", err)).
			With("bucket", s.bucket).
			With("key", key)
	}

	return &UploadResult{
		Location: Location{Bucket: s.bucket, Key: key},
		Original: Original{FileSize: info.Size(), MimeType: mimeType},
	}, nil
}

// SignedURL returns a V4 signed GET for key that downloads as filename.
// Signing needs service account credentials.
func (s *GCSStore) SignedURL(_ context.Context, key, filename string) (string, error) {
	u, err := s.client.Bucket(s.bucket).SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(signedURLTTL),
		QueryParameters: url.Values{
			"response-content-disposition": {attachment(filename)},
		},
	})
	if err != nil {
		return "", failure.New(failure.ErrStorage, "storage.sign", err).With("key", key)
	}
	return u, nil
}

// DeleteObjects removes every object under namespace/name for each name.
// Objects that fail to delete are reported in the result.
func (s *GCSStore) DeleteObjects(ctx context.Context, names []string, namespace string) (*DeleteResult, error) {
	result := &DeleteResult{Deleted: []string{}}
	if len(names) == 0 {
		return result, nil
	}

	bucket := s.client.Bucket(s.bucket)
	var keys []string
	for _, name := range names {
		prefix := objectPrefix(namespace, name)
		it := bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return nil, failure.New(failure.ErrStorage, "storage.delete", fmt.Errorf("list objects: %w", err)).
					With("prefix", prefix)
			}
			keys = append(keys, attrs.Name)
		}
	}

	for _, key := range keys {
		if err := bucket.Object(key).Delete(ctx); err != nil {
			result.Errors = append(result.Errors, DeleteError{Key: key, Message: err.Error()})
			continue
		}
		result.Deleted = append(result.Deleted, key)
	}
	return result, nil
}
