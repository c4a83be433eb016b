package repos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const expiresMetaKey = "expires-at"

// S3API is the subset of *s3.Client the object-store backend calls.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// NewS3Client builds an S3 client for AWS or any S3-compatible endpoint
// (MinIO, R2). Static credentials are used when given, otherwise the
// default AWS credential chain.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3KV stores each entry as one object. Expiration is kept in object
// metadata and enforced on read; PurgeExpired deletes what has lapsed.
type S3KV struct {
	api    S3API
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3KV(api S3API, bucket, prefix string) *S3KV {
	return &S3KV{api: api, bucket: bucket, prefix: prefix, now: time.Now}
}

func (r *S3KV) WithClock(now func() time.Time) *S3KV {
	r.now = now
	return r
}

func (r *S3KV) Close() error { return nil }

func (r *S3KV) objectKey(key string) string {
	return r.prefix + key
}

func (r *S3KV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.objectKey(key)),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	}
	if exp := expiresAt(r.now(), ttl); exp != nil {
		in.Metadata = map[string]string{expiresMetaKey: strconv.FormatInt(*exp, 10)}
	}
	if _, err := r.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// PutIfAbsent checks then writes; it is not atomic across concurrent writers
// of the same key. Callers use it with freshly generated keys.
func (r *S3KV) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	out, err := r.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(key)),
	})
	switch {
	case err == nil:
		if !r.expired(out.Metadata) {
			return ErrConflict
		}
	case !isS3NotFound(err):
		return fmt.Errorf("head %s: %w", key, err)
	}
	return r.Put(ctx, key, value, ttl)
}

func (r *S3KV) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := r.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	if r.expired(out.Metadata) {
		return nil, ErrNotFound
	}
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

func (r *S3KV) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.objectKey(opts.Prefix)),
	}
	if opts.After != "" {
		in.StartAfter = aws.String(r.objectKey(opts.After))
	}

	out := &ListResult{}
	for {
		page, err := r.api.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", opts.Prefix, err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), r.prefix)
			v, err := r.Get(ctx, key)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if opts.Limit > 0 && len(out.Entries) == opts.Limit {
				out.HasMore = true
				return out, nil
			}
			out.Entries = append(out.Entries, Entry{Key: key, Value: v})
		}
		if !aws.ToBool(page.IsTruncated) || page.NextContinuationToken == nil {
			return out, nil
		}
		in.ContinuationToken = page.NextContinuationToken
	}
}

func (r *S3KV) Delete(ctx context.Context, key string) error {
	_, err := r.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(key)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *S3KV) PurgeExpired(ctx context.Context) (int64, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix),
	}
	var purged int64
	for {
		page, err := r.api.ListObjectsV2(ctx, in)
		if err != nil {
			return purged, fmt.Errorf("list for purge: %w", err)
		}
		for _, obj := range page.Contents {
			head, err := r.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(r.bucket), Key: obj.Key})
			if err != nil {
				if isS3NotFound(err) {
					continue
				}
				return purged, fmt.Errorf("head %s: %w", aws.ToString(obj.Key), err)
			}
			if !r.expired(head.Metadata) {
				continue
			}
			if _, err := r.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(r.bucket), Key: obj.Key}); err != nil {
				return purged, fmt.Errorf("delete %s: %w", aws.ToString(obj.Key), err)
			}
			purged++
		}
		if !aws.ToBool(page.IsTruncated) || page.NextContinuationToken == nil {
			return purged, nil
		}
		in.ContinuationToken = page.NextContinuationToken
	}
}

func (r *S3KV) expired(meta map[string]string) bool {
	raw, ok := meta[expiresMetaKey]
	if !ok {
		return false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return ms <= r.now().UnixMilli()
}

func isS3NotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
