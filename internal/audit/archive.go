package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Querier reads audit events.
type Querier interface {
	Query(ctx context.Context, f Filter) ([]Event, error)
}

// Archiver exports one day of audit events to S3 as JSON lines, oldest first.
type Archiver struct {
	source Querier
	client S3API
	bucket string
	prefix string
	logger *logging.Logger
}

// NewArchiver creates an Archiver. prefix defaults to "audit/v1".
func NewArchiver(source Querier, client S3API, bucket, prefix string, logger *logging.Logger) *Archiver {
	if prefix == "" {
		prefix = "audit/v1"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{source: source, client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Enabled reports whether a bucket and client are configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.client != nil
}

// ArchiveKey is the object key for day.
func (a *Archiver) ArchiveKey(day time.Time) string {
	return fmt.Sprintf("%s/by-date/%d/%02d/%02d.jsonl", a.prefix, day.Year(), day.Month(), day.Day())
}

// ExportDay writes the events created on day (in day's location) and returns
// the key written and the number of events.
func (a *Archiver) ExportDay(ctx context.Context, day time.Time) (string, int, error) {
	if !a.Enabled() {
		return "", 0, errors.New("audit: archive bucket not configured")
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	events, err := a.source.Query(ctx, Filter{Since: start})
	if err != nil {
		return "", 0, fmt.Errorf("audit: export %s: %w", start.Format("2006-01-02"), err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	n := 0
	// Query returns newest first.
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.CreatedAt.Before(start) || !e.CreatedAt.Before(end) {
			continue
		}
		if err := enc.Encode(e); err != nil {
			return "", 0, fmt.Errorf("audit: encode event %s: %w", e.ID, err)
		}
		n++
	}

	key := a.ArchiveKey(start)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", 0, fmt.Errorf("audit: s3 put %s: %w", key, err)
	}
	a.logger.Info("audit events archived", "s3_key", key, "events", n)
	return key, n, nil
}
