package remote

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const deleteBatchSize = 50

// S3Config configures an S3 or S3-compatible (MinIO) bucket.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseAccelerate bool
}

type S3Client struct {
	s3Client *s3.Client
	config   *S3Config
}

var _ Store = (*S3Client)(nil)

func NewS3Client(ctx context.Context, cfg *S3Config) (*S3Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          200,
			MaxIdleConnsPerHost:   100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 30 * time.Second,
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	awsClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	return &S3Client{
		s3Client: awsClient,
		config:   cfg,
	}, nil
}

// List returns the full object map of the bucket, paginating as needed.
func (c *S3Client) List(ctx context.Context) (map[string]*Object, error) {
	objects := make(map[string]*Object)

	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: &c.config.Bucket,
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			objects[key] = &Object{
				Key:          key,
				ETag:         aws.ToString(obj.ETag),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				StorageClass: string(obj.StorageClass),
			}
		}
	}

	return objects, nil
}

// Upload puts a single file. With Gzip set the payload is compressed and
// uploaded with Content-Encoding gzip; the Content-MD5 header always covers
// the bytes actually transmitted.
func (c *S3Client) Upload(ctx context.Context, params *UploadParams) (*PutResponse, error) {
	file, err := os.Open(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", params.FilePath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat '%s': %w", params.FilePath, err)
	}

	input := &s3.PutObjectInput{
		Bucket: &c.config.Bucket,
		Key:    &params.Key,
	}

	var size int64
	if params.Gzip {
		body, md5b64, err := gzipPayload(file)
		if err != nil {
			return nil, fmt.Errorf("gzip '%s': %w", params.FilePath, err)
		}
		size = int64(body.Len())
		input.Body = body
		input.ContentLength = aws.Int64(size)
		input.ContentEncoding = aws.String("gzip")
		input.ContentMD5 = aws.String(md5b64)
	} else {
		size = info.Size()
		input.Body = file
		input.ContentLength = aws.Int64(size)
		if params.ContentMD5 != "" {
			input.ContentMD5 = aws.String(params.ContentMD5)
		}
	}

	resp, err := c.s3Client.PutObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("put object '%s': %w", params.Key, err)
	}

	return &PutResponse{
		Key:  params.Key,
		ETag: aws.ToString(resp.ETag),
		Size: size,
	}, nil
}

// Delete removes the given keys in batches and returns the keys confirmed
// deleted.
func (c *S3Client) Delete(ctx context.Context, keys []string) ([]string, error) {
	deleted := make([]string, 0, len(keys))

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		batch := keys[start:end]

		identifiers := make([]types.ObjectIdentifier, len(batch))
		for i, key := range batch {
			identifiers[i] = types.ObjectIdentifier{Key: aws.String(key)}
		}

		resp, err := c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &c.config.Bucket,
			Delete: &types.Delete{
				Objects: identifiers,
				Quiet:   aws.Bool(false),
			},
		})
		if err != nil {
			return deleted, fmt.Errorf("delete objects: %w", err)
		}

		for _, obj := range resp.Deleted {
			deleted = append(deleted, aws.ToString(obj.Key))
		}
		if len(resp.Errors) > 0 {
			first := resp.Errors[0]
			return deleted, fmt.Errorf("delete '%s': %s",
				aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}

	return deleted, nil
}

// gzipPayload compresses r into memory and returns the buffer plus the
// base64 MD5 of the compressed bytes.
func gzipPayload(r io.Reader) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	hasher := md5.New()

	gz := gzip.NewWriter(io.MultiWriter(&buf, hasher))
	if _, err := io.Copy(gz, r); err != nil {
		gz.Close()
		return nil, "", err
	}
	if err := gz.Close(); err != nil {
		return nil, "", err
	}

	return &buf, base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
