// SPDX-License-Identifier: MPL-2.0

// Package publish uploads the packages of a build report, together with
// their zstd-compressed build logs, to S3-compatible object storage.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"

	"github.com/droidpack/droidpack/internal/build"
)

// Content types of uploaded objects.
const (
	contentTypeAPK    = "application/vnd.android.package-archive"
	contentTypeBundle = "application/octet-stream"
	contentTypeZstd   = "application/zstd"
	contentTypeYAML   = "application/yaml"
)

var (
	// ErrNoBucket is returned when no bucket is configured.
	ErrNoBucket = errors.New("no publish bucket configured")

	// ErrNothingToPublish is returned for reports without packages.
	ErrNothingToPublish = errors.New("report has no packages to publish")
)

type (
	// Options select the bucket and the credentials.
	Options struct {
		Bucket string
		// Prefix is prepended to every object key.
		Prefix string
		Region string
		// Endpoint selects an S3-compatible service instead of AWS; it
		// enables path-style addressing.
		Endpoint string
		// AccessKey and SecretKey override the default credential chain
		// when both are set.
		AccessKey string
		SecretKey string
	}

	// Uploader is the subset of the S3 client used for publishing.
	Uploader interface {
		PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	}

	// Object is one uploaded object.
	Object struct {
		Key    string
		Source string
		Size   int64
	}

	// Publisher uploads build reports.
	Publisher struct {
		Client Uploader
		Bucket string
		Prefix string
		Logger *log.Logger
	}
)

// NewClient returns an S3 client for opts, using the default AWS
// credential chain unless static keys are given.
func NewClient(ctx context.Context, opts Options) (*s3.Client, error) {
	if opts.Bucket == "" {
		return nil, ErrNoBucket
	}
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load storage configuration: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// New returns a Publisher for opts backed by the S3 client.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Publisher, error) {
	client, err := NewClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Publisher{Client: client, Bucket: opts.Bucket, Prefix: opts.Prefix, Logger: logger}, nil
}

// Publish uploads every package of r, its compressed build log and the
// report itself under <prefix>/<build id>/.
func (p *Publisher) Publish(ctx context.Context, r *build.Report) ([]Object, error) {
	artifacts := r.Succeeded()
	if len(artifacts) == 0 {
		return nil, ErrNothingToPublish
	}

	var objects []Object
	for _, a := range artifacts {
		obj, err := p.putFile(ctx, p.Key(r, filepath.Base(a.Path)), a.Path, contentTypeOf(a.Path))
		if err != nil {
			return objects, err
		}
		objects = append(objects, obj)

		if a.Log == "" {
			continue
		}
		obj, err = p.putLog(ctx, p.Key(r, filepath.Base(a.Log)+".zst"), a.Log)
		switch {
		case errors.Is(err, os.ErrNotExist):
			p.logger().Debug("no build log to publish", "arch", a.Arch, "path", a.Log)
		case err != nil:
			return objects, err
		default:
			objects = append(objects, obj)
		}
	}

	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		return objects, err
	}
	key := p.Key(r, "report.yaml")
	size := int64(buf.Len())
	if err := p.put(ctx, key, &buf, size, contentTypeYAML); err != nil {
		return objects, err
	}
	return append(objects, Object{Key: key, Size: size}), nil
}

// Key returns the object key of name for the build of r.
func (p *Publisher) Key(r *build.Report, name string) string {
	return path.Join(strings.Trim(p.Prefix, "/"), r.ID, name)
}

func (p *Publisher) putFile(ctx context.Context, key, src, contentType string) (Object, error) {
	f, err := os.Open(src)
	if err != nil {
		return Object{}, fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Object{}, fmt.Errorf("stat %s: %w", src, err)
	}
	if err := p.put(ctx, key, f, info.Size(), contentType); err != nil {
		return Object{}, err
	}
	return Object{Key: key, Source: src, Size: info.Size()}, nil
}

// putLog uploads the zstd-compressed contents of src.
func (p *Publisher) putLog(ctx context.Context, key, src string) (Object, error) {
	f, err := os.Open(src)
	if err != nil {
		return Object{}, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := Compress(&buf, f); err != nil {
		return Object{}, fmt.Errorf("compress %s: %w", src, err)
	}
	size := int64(buf.Len())
	if err := p.put(ctx, key, &buf, size, contentTypeZstd); err != nil {
		return Object{}, err
	}
	return Object{Key: key, Source: src, Size: size}, nil
}

func (p *Publisher) put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := p.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", p.Bucket, key, err)
	}
	p.logger().Info("uploaded", "key", key, "size", size)
	return nil
}

func (p *Publisher) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

// Compress writes the zstd compression of src to dst.
func Compress(dst io.Writer, src io.Reader) error {
	zw, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

func contentTypeOf(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".apk") {
		return contentTypeAPK
	}
	return contentTypeBundle
}
