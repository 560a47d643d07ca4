package external

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"deedhive/internal/types"
)

// S3PutObjectAPI abstracts the S3 PutObject operation for testability.
// Production code uses the *s3.Client from aws-sdk-go-v2.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ArchiveStore writes exported history batches to an S3 bucket. This is
// the production archive target; FSArchiveStore covers local runs.
type S3ArchiveStore struct {
	client S3PutObjectAPI
	bucket string
}

// NewS3ArchiveStore creates an S3ArchiveStore writing to the given bucket.
func NewS3ArchiveStore(client S3PutObjectAPI, bucket string) *S3ArchiveStore {
	return &S3ArchiveStore{client: client, bucket: bucket}
}

// Upload puts data at key in the bucket. Keys carry a .jsonl.gz suffix, so
// the content type is fixed to gzip.
func (s *S3ArchiveStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/gzip"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStorage,
			fmt.Sprintf("failed to upload archive %s", key), err)
	}
	return nil
}
