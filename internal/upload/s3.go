package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Stager moves one acquisition file into shared storage, driving the given
// tracker's unit states as it goes.
type Stager interface {
	Stage(ctx context.Context, tracker *Tracker, filePath string) error
}

// S3Uploader stages acquisition files into an S3 bucket. Each unit's object
// key is prefix/basename. One uploader serves every workflow; the tracker
// to drive is supplied per call.
type S3Uploader struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   *slog.Logger
}

// NewS3Uploader creates an uploader against the ambient AWS configuration
// (environment, shared config, or instance role).
func NewS3Uploader(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Uploader{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		logger:   logger.With("component", "upload"),
	}, nil
}

// Stage registers the file as an upload unit and streams it to S3,
// recording WAITING → UPLOADING → COMPLETE/FAILED transitions.
func (u *S3Uploader) Stage(ctx context.Context, tracker *Tracker, filePath string) error {
	name := path.Base(filePath)
	tracker.Register(name)

	f, err := os.Open(filePath)
	if err != nil {
		tracker.SetState(name, UnitFailed)
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	tracker.SetState(name, UnitUploading)
	u.logger.Info("uploading", "unit", name, "bucket", u.bucket)

	key := path.Join(u.prefix, name)
	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		tracker.SetState(name, UnitFailed)
		return fmt.Errorf("upload %s to s3://%s/%s: %w", filePath, u.bucket, key, err)
	}

	tracker.SetState(name, UnitComplete)
	u.logger.Info("upload complete", "unit", name, "key", key)
	return nil
}
