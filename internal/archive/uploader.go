package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// contentType tags every archived artifact as playable audio.
const contentType = "audio/wav"

// S3Client abstracts the S3 API operation used by [Uploader].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config contains archive uploader configuration.
type Config struct {
	Bucket  string        // destination bucket; empty disables archival
	Prefix  string        // optional key prefix inside the bucket
	Timeout time.Duration // per-upload deadline
}

// Uploader stores artifacts in Amazon S3 or any S3-compatible object
// store (MinIO, R2, etc.). The client must be pre-configured with
// credentials, region, and endpoint.
type Uploader struct {
	client S3Client
	config Config
	logger *slog.Logger
}

// Outcome is the result of one archival attempt. Stored distinguishes a
// durable upload from a clearly-labeled skip; the request as a whole
// succeeds either way.
type Outcome struct {
	Stored  bool   `json:"stored"`
	Locator string `json:"locator,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Stored builds the positive outcome variant.
func Stored(locator string) Outcome {
	return Outcome{Stored: true, Locator: locator}
}

// Skipped builds the degraded outcome variant.
func Skipped(reason string) Outcome {
	return Outcome{Stored: false, Reason: reason}
}

// NewUploader creates an archive uploader. A nil client is allowed when
// the bucket is unconfigured; Store then skips without touching it.
func NewUploader(client S3Client, cfg Config, logger *slog.Logger) *Uploader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Uploader{client: client, config: cfg, logger: logger}
}

// key builds the full object key for the given artifact name.
func (u *Uploader) key(name string) string {
	if u.config.Prefix == "" {
		return name
	}
	return u.config.Prefix + "/" + name
}

// Store uploads the artifact at path under the given name and returns a
// stable locator of the form s3://<bucket>/<key>.
//
// A missing destination skips without any network attempt; upload
// failures are logged and converted to the skipped variant. No retries
// are attempted.
func (u *Uploader) Store(ctx context.Context, path, name string) Outcome {
	if u.config.Bucket == "" || u.client == nil {
		return Skipped("destination not configured")
	}

	f, err := os.Open(path)
	if err != nil {
		u.logger.Error("Failed to open artifact for archival", slog.String("error", err.Error()))
		return Skipped(fmt.Sprintf("failed to open artifact: %v", err))
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return Skipped(fmt.Sprintf("failed to stat artifact: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, u.config.Timeout)
	defer cancel()

	key := u.key(name)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.config.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		u.logger.Error("Artifact upload failed",
			slog.String("bucket", u.config.Bucket),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Skipped(uploadFailureReason(err))
	}

	return Stored(fmt.Sprintf("s3://%s/%s", u.config.Bucket, key))
}

// uploadFailureReason produces a short cause string without leaking the
// full SDK error chain into the response.
func uploadFailureReason(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("upload rejected: %s", apiErr.ErrorCode())
	}
	return fmt.Sprintf("upload failed: %v", err)
}
