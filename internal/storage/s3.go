package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/maauso/transform-api/internal/failure"
)

// maxDeleteBatch is the S3 limit of keys per DeleteObjects call.
const maxDeleteBatch = 1000

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Store implements ObjectStore on Amazon S3 or a compatible service.
type S3Store struct {
	client    *s3.Client
	uploader  *manager.Uploader
	presigner *s3.PresignClient
	bucket    string
}

// NewS3Store creates a new S3Store instance.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Store{
		client:    client,
		uploader:  manager.NewUploader(client),
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
	}, nil
}

// Upload streams file to key, public-read with a one year cache lifetime.
func (s *S3Store) Upload(ctx context.Context, file, key string) (*UploadResult, error) {
	info, mimeType, err := describe(file)
	if err != nil {
		return nil, failure.New(failure.ErrStorage, "storage.upload", err).With("key", key)
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, failure.New(failure.ErrStorage, "storage.upload", err).With("key", key)
	}
	defer func() { _ = f.Close() }()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         f,
		ACL:          types.ObjectCannedACLPublicRead,
		CacheControl: aws.String(cacheControl),
		ContentType:  aws.String(mimeType),
	})
	if err != nil {
		return nil, failure.New(failure.ErrStorage, "storage.upload", fmt.Errorf("upload to S3: %w", err)).
			With("bucket", s.bucket).
			With("key", key)
	}

	return &UploadResult{
		Location: Location{Bucket: s.bucket, Key: key},
		Original: Original{FileSize: info.Size(), MimeType: mimeType},
	}, nil
}

// SignedURL presigns a GET for key that downloads as filename.
func (s *S3Store) SignedURL(ctx context.Context, key, filename string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(attachment(filename)),
	}, s3.WithPresignExpires(signedURLTTL))
	if err != nil {
		return "", failure.New(failure.ErrStorage, "storage.sign", err).With("key", key)
	}
	return req.URL, nil
}

// DeleteObjects lists every key under namespace/name for each name and
// removes them in bulk.
func (s *S3Store) DeleteObjects(ctx context.Context, names []string, namespace string) (*DeleteResult, error) {
	result := &DeleteResult{Deleted: []string{}}
	if len(names) == 0 {
		return result, nil
	}

	var keys []types.ObjectIdentifier
	for _, name := range names {
		prefix := objectPrefix(namespace, name)
		pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				return nil, failure.New(failure.ErrStorage, "storage.delete", fmt.Errorf("list objects: %w", err)).
					With("prefix", prefix)
			}
			for _, obj := range page.Contents {
				keys = append(keys, types.ObjectIdentifier{Key: obj.Key})
			}
		}
	}

	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: keys[start:end]},
		})
		if err != nil {
			return nil, failure.New(failure.ErrStorage, "storage.delete", fmt.Errorf("delete objects: %w", err)).
				With("bucket", s.bucket)
		}
		for _, d := range out.Deleted {
			result.Deleted = append(result.Deleted, aws.ToString(d.Key))
		}
		for _, e := range out.Errors {
			result.Errors = append(result.Errors, DeleteError{
				Key:     aws.ToString(e.Key),
				Message: aws.ToString(e.Message),
			})
		}
	}

	return result, nil
}

// describe returns the size and sniffed content type of file.
func describe(file string) (os.FileInfo, string, error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, "", err
	}
	if info.IsDir() {
		return nil, "", fmt.Errorf("%s is a directory", file)
	}
	mt, err := mimetype.DetectFile(file)
	if err != nil {
		return nil, "", fmt.Errorf("detect content type: %w", err)
	}
	return info, mt.String(), nil
}
