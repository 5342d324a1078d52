// Package s3client wraps the AWS SDK S3 client behind the small capability
// set the checksum pipeline consumes. Every call is region-scoped; regional
// clients are created on demand and cached for the life of the run.
package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	ErrNoSuchKey = errors.New("no such key")
)

// Bucket is one entry of the account bucket listing.
type Bucket struct {
	Name      string
	CreatedAt time.Time
}

// ObjectDescriptor identifies one remote object. Immutable once produced
// by enumeration.
type ObjectDescriptor struct {
	Bucket string
	Key    string
	Region string
}

// ObjectInfo is the metadata subset the pipeline records per object.
type ObjectInfo struct {
	Size         int64
	ETag         string
	VersionID    string
	LastModified time.Time
}

// Object is a fetched object: metadata plus the (unread) body stream.
// The caller owns Body and must close it.
type Object struct {
	ObjectInfo
	Body io.ReadCloser
}

type Client struct {
	cfg aws.Config

	mu       sync.Mutex
	regional map[string]*s3.Client
}

// NewClient loads the default AWS configuration. A non-empty endpoint points
// the client at an S3-compatible service (e.g. MinIO).
func NewClient(ctx context.Context, endpoint string) (*Client, error) {
	var cfg aws.Config
	var err error
	if endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				PartitionID:       "aws",
				URL:               endpoint,
				SigningRegion:     region,
				HostnameImmutable: true,
			}, nil
		})
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithEndpointResolverWithOptions(customResolver))
	} else {
		cfg, err = config.LoadDefaultConfig(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:      cfg,
		regional: make(map[string]*s3.Client),
	}, nil
}

// client returns the cached S3 client for a region. An empty region falls
// back to the configured default.
func (c *Client) client(region string) *s3.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.regional[region]; ok {
		return cl
	}
	cl := s3.NewFromConfig(c.cfg, func(o *s3.Options) {
		if region != "" {
			o.Region = region
		}
	})
	c.regional[region] = cl
	return cl
}

func (c *Client) ListBuckets(ctx context.Context) ([]Bucket, error) {
	res, err := c.client("").ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, err
	}
	buckets := make([]Bucket, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		buckets = append(buckets, Bucket{
			Name:      aws.ToString(b.Name),
			CreatedAt: aws.ToTime(b.CreationDate),
		})
	}
	return buckets, nil
}

// GetBucketRegion resolves the region of a bucket. GetBucketLocation returns
// an empty LocationConstraint for us-east-1.
func (c *Client) GetBucketRegion(ctx context.Context, bucketName string) (string, error) {
	res, err := c.client("").GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: &bucketName,
	})
	if err != nil {
		return "", err
	}
	if res.LocationConstraint == "" {
		return "us-east-1", nil
	}
	return string(res.LocationConstraint), nil
}

// ListObjects enumerates a bucket lazily and sends each descriptor to out.
// The send blocks until the consumer is ready, so pagination never runs
// ahead of the workers. A positive max stops the enumeration after that many
// objects (first N in listing order). The caller owns and closes out.
func (c *Client) ListObjects(ctx context.Context, region, bucketName, prefix string, max int, out chan<- ObjectDescriptor) error {
	paginator := s3.NewListObjectsV2Paginator(c.client(region), &s3.ListObjectsV2Input{
		Bucket: &bucketName,
		Prefix: &prefix,
	})
	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			desc := ObjectDescriptor{
				Bucket: bucketName,
				Key:    aws.ToString(obj.Key),
				Region: region,
			}
			select {
			case out <- desc:
			case <-ctx.Done():
				return ctx.Err()
			}
			count++
			if max > 0 && count >= max {
				return nil
			}
		}
	}
	return nil
}

// BucketIsEmpty reports whether a bucket holds no objects, using a
// single-key listing.
func (c *Client) BucketIsEmpty(ctx context.Context, region, bucketName string) (bool, error) {
	maxKeys := int32(1)
	res, err := c.client(region).ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &bucketName,
		MaxKeys: &maxKeys,
	})
	if err != nil {
		return false, err
	}
	return aws.ToInt32(res.KeyCount) == 0, nil
}

func (c *Client) GetTags(ctx context.Context, region, bucketName, key string) (map[string]string, error) {
	res, err := c.client(region).GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: &bucketName,
		Key:    &key,
	})
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(res.TagSet))
	for _, t := range res.TagSet {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags, nil
}

// PutTags replaces the object's tag set. A non-empty versionID scopes the
// write to that specific version.
func (c *Client) PutTags(ctx context.Context, region, bucketName, key string, tags map[string]string, versionID string) error {
	tagSet := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		k, v := k, v
		tagSet = append(tagSet, types.Tag{Key: &k, Value: &v})
	}
	input := &s3.PutObjectTaggingInput{
		Bucket:  &bucketName,
		Key:     &key,
		Tagging: &types.Tagging{TagSet: tagSet},
	}
	if versionID != "" {
		input.VersionId = &versionID
	}
	_, err := c.client(region).PutObjectTagging(ctx, input)
	return err
}

func (c *Client) GetObject(ctx context.Context, region, bucketName, key string) (*Object, error) {
	res, err := c.client(region).GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucketName,
		Key:    &key,
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			err = errors.Join(err, ErrNoSuchKey)
		}
		return nil, fmt.Errorf("get object %s/%s: %w", bucketName, key, err)
	}
	return &Object{
		ObjectInfo: ObjectInfo{
			Size:         aws.ToInt64(res.ContentLength),
			ETag:         aws.ToString(res.ETag),
			VersionID:    aws.ToString(res.VersionId),
			LastModified: aws.ToTime(res.LastModified),
		},
		Body: res.Body,
	}, nil
}

func (c *Client) HeadObject(ctx context.Context, region, bucketName, key string) (*ObjectInfo, error) {
	res, err := c.client(region).HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &bucketName,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("head object %s/%s: %w", bucketName, key, err)
	}
	return &ObjectInfo{
		Size:         aws.ToInt64(res.ContentLength),
		ETag:         aws.ToString(res.ETag),
		VersionID:    aws.ToString(res.VersionId),
		LastModified: aws.ToTime(res.LastModified),
	}, nil
}
