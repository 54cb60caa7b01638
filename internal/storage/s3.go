package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrStorageUnavailable is returned while the breaker is open.
var ErrStorageUnavailable = errors.New("object storage unavailable")

type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3Store struct {
	uploader uploadAPI
	cb       *gobreaker.CircuitBreaker
	bucket   string
	baseURL  string
	log      *zap.Logger
}

// NewS3Store loads the default AWS credential chain. A non-empty endpoint
// targets an S3-compatible server such as MinIO with path-style addressing.
func NewS3Store(ctx context.Context, region, bucket, endpoint, baseURL string, logger *zap.Logger) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(manager.NewUploader(client), bucket, baseURL, logger), nil
}

func newS3Store(uploader uploadAPI, bucket, baseURL string, logger *zap.Logger) *S3Store {
	st := gobreaker.Settings{
		Name:        "s3",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &S3Store{
		uploader: uploader,
		cb:       gobreaker.NewCircuitBreaker(st),
		bucket:   bucket,
		baseURL:  baseURL,
		log:      logger,
	}
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        r,
			ContentType: aws.String(contentType),
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrStorageUnavailable
	}
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}

	if s.baseURL != "" {
		return publicURL(s.baseURL, key), nil
	}
	return out.(*manager.UploadOutput).Location, nil
}
