package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
)

// ReportWriter archives run summaries as JSON objects in the configured
// bucket.
type ReportWriter struct {
	client *s3.Client
	bucket string
}

var _ domain.ReportWriter = (*ReportWriter)(nil)

// NewReportWriter creates a writer bound to the client's bucket.
func NewReportWriter(c *Client) *ReportWriter {
	return &ReportWriter{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// WriteReport uploads body under key with a JSON content type. Summaries
// are small, so a single PutObject is enough.
func (w *ReportWriter) WriteReport(ctx context.Context, key string, body []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}
	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put report %s: %w", key, err)
	}
	return nil
}
