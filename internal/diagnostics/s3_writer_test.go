package diagnostics

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"api_config/internal/config"
	"api_config/internal/utils"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func newFakeWriter(putter *fakePutter) *S3Writer {
	w := newS3Writer(putter, config.S3Config{
		Bucket:  "diag-bucket",
		Prefix:  "diagnostics/",
		PodName: "api-config-0",
	}, nil)
	w.now = func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }
	return w
}

func TestS3Writer_WriteBatch(t *testing.T) {
	putter := &fakePutter{}
	w := newFakeWriter(putter)

	key, err := w.WriteBatch(context.Background(), "cycle-9", sampleDiagnostics("cycle-9", 2))
	require.NoError(t, err)
	assert.Equal(t, "diagnostics/2026/10/19/api-config-0-cycle-9.jsonl", key)

	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "diag-bucket", aws.ToString(putter.inputs[0].Bucket))
	assert.Equal(t, "application/x-ndjson", aws.ToString(putter.inputs[0].ContentType))

	scanner := bufio.NewScanner(bytes.NewReader(putter.bodies[0]))
	lines := 0
	for scanner.Scan() {
		var d Diagnostic
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &d))
		assert.Equal(t, "cycle-9", d.CycleID)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestS3Writer_EmptyBatch(t *testing.T) {
	putter := &fakePutter{}
	w := newFakeWriter(putter)

	key, err := w.WriteBatch(context.Background(), "cycle-9", nil)
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Empty(t, putter.inputs)
}

func TestS3Writer_UploadError(t *testing.T) {
	putter := &fakePutter{err: errors.New("access denied")}
	w := newFakeWriter(putter)

	_, err := w.WriteBatch(context.Background(), "cycle-9", sampleDiagnostics("cycle-9", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestS3Sink_Publish(t *testing.T) {
	putter := &fakePutter{}
	sink := NewS3Sink(newFakeWriter(putter))

	require.NoError(t, sink.Publish(context.Background(), nil))
	assert.Empty(t, putter.inputs)

	require.NoError(t, sink.Publish(context.Background(), sampleDiagnostics("cycle-3", 1)))
	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "diagnostics/2026/10/19/api-config-0-cycle-3.jsonl", aws.ToString(putter.inputs[0].Key))
}

func TestNewS3Writer_RequiresBucket(t *testing.T) {
	_, err := NewS3Writer(context.Background(), config.S3Config{Region: "us-east-1"}, nil)
	assert.Error(t, err)
}

func TestS3Writer_LogsToInjectedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := utils.NewLoggerWithCore("api-config", core, utils.Info).Named("diagnostics")

	w := newS3Writer(&fakePutter{}, config.S3Config{Bucket: "diag-bucket", PodName: "pod"}, logger)
	_, err := w.WriteBatch(context.Background(), "cycle-log", sampleDiagnostics("cycle-log", 1))
	require.NoError(t, err)

	entries := logs.FilterMessage("Wrote diagnostics to S3").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "api-config.diagnostics", entries[0].LoggerName)
}

func TestS3Writer_NilLoggerIsSilent(t *testing.T) {
	w := newS3Writer(&fakePutter{}, config.S3Config{Bucket: "diag-bucket"}, nil)
	require.NotNil(t, w.logger)

	_, err := w.WriteBatch(context.Background(), "cycle-quiet", sampleDiagnostics("cycle-quiet", 1))
	require.NoError(t, err)
}
