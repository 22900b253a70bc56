package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store implements Store on AWS S3.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	region  string
}

func NewS3Store(ctx context.Context, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		region:  region,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("write s3://%s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *S3Store) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, path, ErrNotFound)
		}
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, path, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of s3://%s/%s: %w", bucket, path, err)
	}
	return data, nil
}

func (s *S3Store) Remove(ctx context.Context, bucket, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
	}
	var paths []string
	for _, obj := range out.Contents {
		paths = append(paths, aws.ToString(obj.Key))
	}
	return paths, nil
}

func (s *S3Store) Exists(ctx context.Context, bucket, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		// HeadObject reports missing keys as a generic 404
		if isNoSuchKey(err) || strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, fmt.Errorf("stat s3://%s/%s: %w", bucket, path, err)
	}
	return true, nil
}

func (s *S3Store) PublicURL(bucket, path string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.region, strings.TrimPrefix(path, "/"))
}

func (s *S3Store) SignedURL(ctx context.Context, bucket, path string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", bucket, path, err)
	}
	return req.URL, nil
}

func isNoSuchKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NoSuchKey")
}
