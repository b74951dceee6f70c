// Package objectstore uploads avatars, documents and workspace files to S3 and
// returns the URL the domain records keep.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	MaxImageBytes    = 10 << 20
	MaxDocumentBytes = 50 << 20
)

// PutObjectAPI is the subset of the S3 client used here.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Region         string
	DocumentBucket string
	// PublicBaseURL replaces the virtual-hosted S3 URL, e.g. a CDN origin.
	PublicBaseURL string
}

type Store struct {
	api    PutObjectAPI
	cfg    Config
	log    logger.Logger
	newKey func() string
}

func New(api PutObjectAPI, cfg Config, log logger.Logger) *Store {
	return &Store{
		api:    api,
		cfg:    cfg,
		log:    logger.ForComponent(log, "objectstore"),
		newKey: uuid.NewString,
	}
}

// UploadImage stores an image in bucket. Content that does not sniff as an
// image is rejected.
func (s *Store) UploadImage(ctx context.Context, name string, r io.Reader, bucket string) (string, error) {
	data, err := readLimited(r, MaxImageBytes)
	if err != nil {
		return "", errors.NewValidationError(fmt.Sprintf("image %s: %v", name, err))
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", errors.NewValidationError(fmt.Sprintf("image %s has content type %s", name, mt.String()))
	}
	key := path.Join("images", s.newKey()+mt.Extension())
	return s.put(ctx, name, bucket, key, data, mt)
}

// UploadDocument stores any file in the document bucket, keeping its base name.
func (s *Store) UploadDocument(ctx context.Context, name string, r io.Reader) (string, error) {
	if s.cfg.DocumentBucket == "" {
		return "", errors.NewUploadFailedError(name, fmt.Errorf("no document bucket configured"))
	}
	data, err := readLimited(r, MaxDocumentBytes)
	if err != nil {
		return "", errors.NewValidationError(fmt.Sprintf("document %s: %v", name, err))
	}
	mt := mimetype.Detect(data)
	key := path.Join("documents", s.newKey(), sanitizeName(name, mt))
	return s.put(ctx, name, s.cfg.DocumentBucket, key, data, mt)
}

func (s *Store) put(ctx context.Context, name, bucket, key string, data []byte, mt *mimetype.MIME) (string, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mt.String()),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		s.log.Error("Upload failed", map[string]interface{}{
			"bucket": bucket,
			"key":    key,
			"error":  err.Error(),
		})
		return "", errors.NewUploadFailedError(name, err)
	}

	s.log.Debug("Uploaded object", map[string]interface{}{
		"bucket":      bucket,
		"key":         key,
		"contentType": mt.String(),
		"bytes":       len(data),
	})
	return s.objectURL(bucket, key), nil
}

func (s *Store) objectURL(bucket, key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + bucket + "/" + escaped
	}
	if s.cfg.Region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.cfg.Region, escaped)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("exceeds %d bytes", limit)
	}
	return data, nil
}

func sanitizeName(name string, mt *mimetype.MIME) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "file" + mt.Extension()
	}
	return base
}
