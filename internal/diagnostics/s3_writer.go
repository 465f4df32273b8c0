package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap/zapcore"

	"api_config/internal/config"
	"api_config/internal/utils"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer writes batches of diagnostics to S3 as JSON Lines objects
type S3Writer struct {
	client  objectPutter
	bucket  string
	prefix  string
	podName string
	logger  *utils.Logger
	now     func() time.Time
}

// NewS3Writer creates a writer from the default AWS credential chain.
// A custom endpoint (MinIO) switches to path-style addressing. A nil logger
// discards the writer's records.
func NewS3Writer(ctx context.Context, cfg config.S3Config, logger *utils.Logger) (*S3Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Writer(client, cfg, logger), nil
}

func newS3Writer(client objectPutter, cfg config.S3Config, logger *utils.Logger) *S3Writer {
	if logger == nil {
		logger = utils.NewLoggerWithCore("s3-writer", zapcore.NewNopCore(), utils.NotSet)
	}
	return &S3Writer{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		podName: cfg.PodName,
		logger:  logger,
		now:     time.Now,
	}
}

// objectKey formats diagnostics/2026/10/19/api-config-0-<cycle>.jsonl
func (w *S3Writer) objectKey(cycleID string) string {
	now := w.now().UTC()
	if cycleID == "" {
		cycleID = fmt.Sprintf("%s-%d", now.Format("20060102-150405"), now.Nanosecond())
	}
	return fmt.Sprintf("%s%04d/%02d/%02d/%s-%s.jsonl",
		w.prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		w.podName,
		cycleID,
	)
}

// WriteBatch uploads records as one object and returns its key. An empty
// batch writes nothing.
func (w *S3Writer) WriteBatch(ctx context.Context, cycleID string, records []Diagnostic) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	key := w.objectKey(cycleID)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			w.logger.Error("Failed to encode diagnostic", "error", err)
			continue
		}
	}

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.logger.Info("Wrote diagnostics to S3", "key", key, "count", len(records), "bytes", buf.Len())
	return key, nil
}

// S3Sink publishes each cycle's diagnostics as one object.
type S3Sink struct {
	writer *S3Writer
}

func NewS3Sink(writer *S3Writer) *S3Sink {
	return &S3Sink{writer: writer}
}

func (s *S3Sink) Publish(ctx context.Context, diags []Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	_, err := s.writer.WriteBatch(ctx, diags[0].CycleID, diags)
	return err
}

func (s *S3Sink) Close() error { return nil }
