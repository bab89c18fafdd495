package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const folderContentType = "application/x-directory"

// S3API is the part of the S3 client the store needs.
type S3API interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Service keeps documents in an S3 (or compatible) bucket. Folders are
// zero-byte objects whose key ends in a slash, which is how S3 consoles
// render directories.
type S3Service struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
}

func NewS3Service(client S3API, bucket string) *S3Service {
	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

func (s *S3Service) EnsureFolder(ctx context.Context, folder string) (string, error) {
	if s.bucket == "" {
		return "", fmt.Errorf("storage bucket is required")
	}
	name := strings.Trim(strings.TrimSpace(folder), "/")
	if name == "" {
		return "", fmt.Errorf("folder name is required")
	}
	key := name + "/"

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return key, nil
	}
	if !isNotFound(err) {
		return "", fmt.Errorf("lookup folder %s: %w", name, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
		ContentType:   aws.String(folderContentType),
	})
	if err != nil {
		return "", fmt.Errorf("create folder %s: %w", name, err)
	}
	return key, nil
}

func (s *S3Service) PutDocument(ctx context.Context, folderKey string, doc Document) (string, error) {
	if s.bucket == "" {
		return "", fmt.Errorf("storage bucket is required")
	}
	if strings.TrimSpace(doc.Name) == "" || strings.Contains(doc.Name, "/") {
		return "", fmt.Errorf("invalid document name %q", doc.Name)
	}
	if doc.Body == nil {
		return "", fmt.Errorf("document body is required")
	}

	key := path.Join(strings.Trim(folderKey, "/"), doc.Name)
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        doc.Body,
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}

var _ Service = (*S3Service)(nil)
