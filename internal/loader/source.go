package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/me/opsched/pkg/model"
)

// Location is where a descriptor file lives.
type Location interface {
	// Open returns the file's contents.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Put replaces the file's contents.
	Put(ctx context.Context, r io.Reader) error
	String() string
}

// ParseLocation maps "s3://bucket/key" to an S3 object and anything else to
// a local file path.
func ParseLocation(ctx context.Context, uri string) (Location, error) {
	if !strings.HasPrefix(uri, "s3://") {
		return FileLocation(uri), nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", uri, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("s3 location %q needs a bucket and a key", uri)
	}
	return NewS3Location(ctx, u.Host, key)
}

// FileLocation is a descriptor file on local disk.
type FileLocation string

func (f FileLocation) Open(context.Context) (io.ReadCloser, error) {
	return os.Open(string(f))
}

func (f FileLocation) Put(_ context.Context, r io.Reader) error {
	out, err := os.Create(string(f))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (f FileLocation) String() string { return string(f) }

type s3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Location is a descriptor file stored as an S3 object. Region and
// credentials come from the standard AWS environment.
type S3Location struct {
	bucket     string
	key        string
	downloader s3Downloader
	uploader   s3Uploader
}

// NewS3Location loads the default AWS configuration for bucket/key.
func NewS3Location(ctx context.Context, bucket, key string) (*S3Location, error) {
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Location{
		bucket:     bucket,
		key:        key,
		downloader: manager.NewDownloader(client),
		uploader:   manager.NewUploader(client),
	}, nil
}

func (s *S3Location) Open(ctx context.Context) (io.ReadCloser, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download %s: %w", s, err)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

func (s *S3Location) Put(ctx context.Context, r io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        r,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", s, err)
	}
	return nil
}

func (s *S3Location) String() string {
	return "s3://" + s.bucket + "/" + s.key
}

// LoadDescriptors reads and parses the descriptor file at loc.
func LoadDescriptors(ctx context.Context, loc Location) ([]model.OperationDescriptor, error) {
	rc, err := loc.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadDescriptors(rc)
}

// LoadOrders reads loc and builds pending orders created at base.
func LoadOrders(ctx context.Context, loc Location, base time.Time) ([]*model.Order, error) {
	ds, err := LoadDescriptors(ctx, loc)
	if err != nil {
		return nil, err
	}
	return BuildOrders(ds, base)
}

// SaveDescriptors writes descriptors as CSV to loc.
func SaveDescriptors(ctx context.Context, loc Location, ds []model.OperationDescriptor) error {
	var buf bytes.Buffer
	if err := WriteDescriptors(&buf, ds); err != nil {
		return err
	}
	return loc.Put(ctx, &buf)
}
