package stores

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DirSink writes artifacts to <dir>/<run id>/<file>.
type DirSink struct {
	dir string
}

// NewDirSink creates a sink rooted at dir. The directory is created on the
// first write.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Put implements ArtifactSink.
func (d *DirSink) Put(_ context.Context, runID string, kind ArtifactKind, data []byte) (string, error) {
	runDir := filepath.Join(d.dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	p := filepath.Join(runDir, kind.FileName())
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return p, nil
}

// FileSink writes each kind of artifact to a fixed path. Kinds without a
// path are dropped. The CLI uses it for --problem-out and friends.
type FileSink map[ArtifactKind]string

// Put implements ArtifactSink.
func (f FileSink) Put(_ context.Context, _ string, kind ArtifactKind, data []byte) (string, error) {
	p, ok := f[kind]
	if !ok || p == "" {
		return "", nil
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", kind, err)
	}
	return p, nil
}

// S3Config holds S3 sink construction parameters. Credentials fall back to
// the default AWS chain when unset.
type S3Config struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"` // optional, e.g. MinIO
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style" json:"path_style"`
}

// S3Sink uploads artifacts to <prefix>/<run id>/<file> in one bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink creates a sink from cfg.
func NewS3Sink(ctx context.Context, cfg S3Config, optFns ...func(*s3.Options)) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	opts := append([]func(*s3.Options){func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}}, optFns...)
	return &S3Sink{
		client: s3.NewFromConfig(awsCfg, opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Key returns the object key of an artifact.
func (s *S3Sink) Key(runID string, kind ArtifactKind) string {
	return path.Join(s.prefix, runID, kind.FileName())
}

// Put implements ArtifactSink.
func (s *S3Sink) Put(ctx context.Context, runID string, kind ArtifactKind, data []byte) (string, error) {
	key := s.Key(runID, kind)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(kind.ContentType()),
		Metadata:    map[string]string{"run-id": runID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// MultiSink writes every artifact to each of its sinks in order.
type MultiSink []ArtifactSink

// Put implements ArtifactSink. The returned location is the first
// non-empty one.
func (m MultiSink) Put(ctx context.Context, runID string, kind ArtifactKind, data []byte) (string, error) {
	var location string
	for _, s := range m {
		loc, err := s.Put(ctx, runID, kind, data)
		if err != nil {
			return location, err
		}
		if location == "" {
			location = loc
		}
	}
	return location, nil
}
