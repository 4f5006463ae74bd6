package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const MaxImageSize = 5 << 20

var (
	ErrNotConfigured   = errors.New("s3 storage is not configured")
	ErrContentMismatch = errors.New("file content does not match its extension")
)

var (
	s3Client  *s3.Client
	presigner *s3.PresignClient
	s3Bucket  string
	s3Region  string
	private   bool
)

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

type Options struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Private   bool
}

func InitS3(ctx context.Context, opts Options) error {
	if opts.Bucket == "" {
		return ErrNotConfigured
	}

	loaders := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	s3Client = s3.NewFromConfig(cfg)
	presigner = s3.NewPresignClient(s3Client)
	s3Bucket = opts.Bucket
	s3Region = opts.Region
	private = opts.Private
	return nil
}

func Enabled() bool {
	return s3Client != nil
}

// Private reports whether reads need presigned URLs.
func Private() bool {
	return private && presigner != nil
}

// ImageContentType validates filename's extension and returns the content type to store.
func ImageContentType(filename string) (string, bool) {
	ct, ok := imageTypes[strings.ToLower(filepath.Ext(filename))]
	return ct, ok
}

// SniffImage checks that the leading bytes of body are an image of
// contentType. The returned reader yields the whole body.
func SniffImage(body io.Reader, contentType string) (io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]
	if http.DetectContentType(head) != contentType {
		return nil, ErrContentMismatch
	}

	if seeker, ok := body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err == nil {
			return body, nil
		}
	}
	return io.MultiReader(bytes.NewReader(head), body), nil
}

func PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s3Bucket, s3Region, key)
}

// KeyFromURL extracts the object key from a URL built by PublicURL.
func KeyFromURL(url string) string {
	parts := strings.SplitN(url, ".amazonaws.com/", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// Upload stores body under key and returns its public URL.
func Upload(ctx context.Context, body io.Reader, key, contentType string) (string, error) {
	if s3Client == nil {
		return "", ErrNotConfigured
	}

	_, err := s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return PublicURL(key), nil
}

func Delete(ctx context.Context, key string) error {
	if s3Client == nil {
		return ErrNotConfigured
	}
	if key == "" {
		return nil
	}

	_, err := s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ReadURL returns a URL clients can load. Private buckets get a presigned GET.
func ReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if !private || presigner == nil {
		return PublicURL(key), nil
	}

	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
