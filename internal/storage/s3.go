package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// s3API is the slice of the S3 client this backend uses.
type s3API interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// S3Backend implements Backend on top of aws-sdk-go-v2, for AWS itself or a custom endpoint.
type S3Backend struct {
	client s3API
}

func NewS3Backend(ctx context.Context, cfg BackendConfig) (*S3Backend, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if !cfg.UseSSL {
			scheme = "http"
		}
		endpoint = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &S3Backend{client: client}, nil
}

func (b *S3Backend) Download(ctx context.Context, p ObjectPath) (*Artifact, error) {
	return downloadToTemp(p, func(w io.Writer) error {
		out, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(p.Bucket()),
			Key:    aws.String(p.Key()),
		})
		if err != nil {
			return translateS3Error("download", p.String(), err)
		}
		defer out.Body.Close()

		if _, err := io.Copy(w, out.Body); err != nil {
			return NewError("download", p.String(), ErrTransfer, err)
		}
		return nil
	})
}

func (b *S3Backend) Upload(ctx context.Context, localPath string, dst ObjectPath) (ObjectPath, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return ObjectPath{}, NewError("upload", dst.String(), ErrTransfer, err)
	}
	defer f.Close()

	_, err = b.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(dst.Bucket()),
		Key:         aws.String(dst.Key()),
		Body:        f,
		ContentType: aws.String(detectContentType(localPath)),
	})
	if err != nil {
		return ObjectPath{}, translateS3Error("upload", dst.String(), err)
	}
	return dst, nil
}

func (b *S3Backend) Exists(ctx context.Context, p ObjectPath) (bool, error) {
	_, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(p.Bucket()),
		Key:    aws.String(p.Key()),
	})
	if err == nil {
		return true, nil
	}
	terr := translateS3Error("head", p.String(), err)
	if KindOf(terr) == KindNotFound {
		return false, nil
	}
	return false, terr
}

func (b *S3Backend) List(ctx context.Context, bucket, prefix string) ([]ObjectPath, error) {
	paginator := awss3.NewListObjectsV2Paginator(b.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	paths := make([]ObjectPath, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translateS3Error("list", JoinKey(bucket, prefix), err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, separator) {
				continue
			}
			paths = append(paths, NewObjectPath(bucket, key))
		}
	}
	return paths, nil
}

func translateS3Error(op, path string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return NewError(op, path, ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return NewError(op, path, ErrNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return NewError(op, path, ErrAccessDenied, err)
		}
	}
	return NewError(op, path, ErrTransfer, err)
}

var _ Backend = (*S3Backend)(nil)
