package aws_s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	log "log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sharedcode/profiles"
)

// Objects above this size move through the multipart upload/download manager.
const largeObjectMinSize = 10 * 1024 * 1024

type bucketStore struct {
	client       *s3.Client
	bucketPrefix string
	region       string
}

// NewBlobStore returns a BlobStore keeping the blobs of store s in bucket BucketName(bucketPrefix, s).
// Buckets are created on first write.
func NewBlobStore(client *s3.Client, bucketPrefix string, region string) (profiles.BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("s3Client parameter can't be nil")
	}
	return &bucketStore{
		client:       client,
		bucketPrefix: bucketPrefix,
		region:       region,
	}, nil
}

// BucketName returns the bucket of storeName. S3 bucket names are lower case.
func BucketName(bucketPrefix, storeName string) string {
	return strings.ToLower(bucketPrefix + storeName)
}

func isLargeObject(size int64) bool {
	return size > largeObjectMinSize
}

func (b *bucketStore) Get(ctx context.Context, storeName string, key string) ([]byte, bool, error) {
	bucket := BucketName(b.bucketPrefix, storeName)
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nsb *types.NoSuchBucket
		if errors.As(err, &nsk) || errors.As(err, &nsb) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("couldn't get %s from bucket %s, details: %w", key, bucket, err)
	}
	defer result.Body.Close()

	if result.ContentLength != nil && isLargeObject(*result.ContentLength) {
		ba, err := b.download(ctx, bucket, key)
		return ba, err == nil, err
	}
	ba, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, false, err
	}
	return ba, true, nil
}

func (b *bucketStore) download(ctx context.Context, bucket, key string) ([]byte, error) {
	downloader := manager.NewDownloader(b.client, func(d *manager.Downloader) {
		d.PartSize = largeObjectMinSize
	})
	buffer := manager.NewWriteAtBuffer([]byte{})
	if _, err := downloader.Download(ctx, buffer, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (b *bucketStore) Put(ctx context.Context, storeName string, key string, blob []byte) error {
	bucket := BucketName(b.bucketPrefix, storeName)
	err := b.put(ctx, bucket, key, blob)
	var nsb *types.NoSuchBucket
	if !errors.As(err, &nsb) {
		return err
	}
	if err := b.createBucket(ctx, bucket); err != nil {
		return err
	}
	return b.put(ctx, bucket, key, blob)
}

func (b *bucketStore) put(ctx context.Context, bucket, key string, blob []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(blob),
	}
	if isLargeObject(int64(len(blob))) {
		uploader := manager.NewUploader(b.client, func(u *manager.Uploader) {
			u.PartSize = largeObjectMinSize
		})
		_, err := uploader.Upload(ctx, input)
		return err
	}
	_, err := b.client.PutObject(ctx, input)
	return err
}

func (b *bucketStore) createBucket(ctx context.Context, bucket string) error {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	// us-east-1 rejects an explicit location constraint.
	if b.region != "" && b.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}
	_, err := b.client.CreateBucket(ctx, input)
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("couldn't create bucket %s in Region %s, details: %w", bucket, b.region, err)
	}
	log.Info("created profiles bucket", "bucket", bucket)
	return nil
}

func (b *bucketStore) Remove(ctx context.Context, storeName string, key string) error {
	bucket := BucketName(b.bucketPrefix, storeName)
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	var nsb *types.NoSuchBucket
	if err != nil && !errors.As(err, &nsb) {
		return fmt.Errorf("couldn't remove %s from bucket %s, details: %w", key, bucket, err)
	}
	return nil
}
