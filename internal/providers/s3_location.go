package providers

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	mberrors "github.com/systmms/mailbroker/internal/errors"
)

// S3ClientAPI is the subset of the S3 client the locator uses.
type S3ClientAPI interface {
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
}

// S3BucketLocator implements broker.BucketLocator.
type S3BucketLocator struct {
	client S3ClientAPI
}

// NewS3BucketLocator creates a locator.
func NewS3BucketLocator(client S3ClientAPI) *S3BucketLocator {
	return &S3BucketLocator{client: client}
}

// BucketRegion returns the bucket's location constraint. Buckets in
// us-east-1 have none and yield "".
func (l *S3BucketLocator) BucketRegion(ctx context.Context, bucket string) (string, error) {
	out, err := l.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(bucket)})
	if err != nil {
		return "", mberrors.Wrap(mberrors.UpstreamFailure, "s3.get_bucket_location", err, "locate bucket %q", bucket)
	}
	constraint := string(out.LocationConstraint)
	// legacy alias still returned for old buckets
	if constraint == "EU" {
		return "eu-west-1", nil
	}
	return constraint, nil
}
