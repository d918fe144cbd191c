package s3blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Reader answers existence checks against the configured bucket. The
// archiver uses it to avoid overwriting an earlier archive object.
type Reader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewReader creates a new Reader for the given client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{
		client: c.api,
		bucket: c.bucket,
		prefix: c.prefix,
	}
}

// Exists checks whether an object exists at path by issuing a HeadObject
// request. Errors other than not-found are propagated.
func (r *Reader) Exists(ctx context.Context, path string) (bool, error) {
	key := joinKey(r.prefix, path)
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: exists %s: %w", key, err)
	}
	return true, nil
}

// isNotFound returns true when the error indicates the requested S3 object
// does not exist.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	// HeadObject returns a generic 404 rather than NoSuchKey.
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	if errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404 {
		return true
	}

	return false
}
