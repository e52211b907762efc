// SPDX-License-Identifier: MPL-2.0

package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"

	"github.com/droidpack/droidpack/internal/build"
	"github.com/droidpack/droidpack/internal/testutil"
	"github.com/droidpack/droidpack/pkg/abi"
)

type (
	object struct {
		body        []byte
		contentType string
		length      int64
	}

	fakeBucket struct {
		mu      sync.Mutex
		objects map[string]object
		fail    error
	}
)

func (b *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = make(map[string]object)
	}
	b.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = object{
		body:        body,
		contentType: aws.ToString(in.ContentType),
		length:      aws.ToInt64(in.ContentLength),
	}
	return &s3.PutObjectOutput{}, nil
}

func testReport(t *testing.T) *build.Report {
	t.Helper()
	dir := t.TempDir()
	apk := filepath.Join(dir, "scorereader-1.0-arm64-v8a.apk")
	buildLog := filepath.Join(dir, "scorereader-1.0-arm64-v8a.log")
	testutil.MustWriteFile(t, apk, "PK apk")
	testutil.MustWriteFile(t, buildLog, strings.Repeat("== compile p4a create ==\n", 50))

	return &build.Report{
		ID: "b6f1",
		Artifacts: []*build.Artifact{
			{Arch: abi.ARM64, Status: build.StatusPackaged, Path: apk, Log: buildLog},
			{Arch: abi.ARMv7, Status: build.StatusFailed, FailedStage: "bundle"},
		},
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()

	r := testReport(t)
	bucket := &fakeBucket{}
	p := &Publisher{Client: bucket, Bucket: "releases", Prefix: "/android/", Logger: log.New(io.Discard)}

	objects, err := p.Publish(t.Context(), r)
	if err != nil {
		t.Fatalf("Publish() unexpected error: %v", err)
	}

	var keys []string
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	want := []string{
		"android/b6f1/scorereader-1.0-arm64-v8a.apk",
		"android/b6f1/scorereader-1.0-arm64-v8a.log.zst",
		"android/b6f1/report.yaml",
	}
	if !slices.Equal(keys, want) {
		t.Fatalf("uploaded keys = %v, want %v", keys, want)
	}

	apk := bucket.objects["releases/"+want[0]]
	if string(apk.body) != "PK apk" || apk.contentType != contentTypeAPK || apk.length != 6 {
		t.Errorf("apk object = %+v", apk)
	}

	logObj := bucket.objects["releases/"+want[1]]
	if logObj.contentType != contentTypeZstd || logObj.length != int64(len(logObj.body)) {
		t.Errorf("log object = type %q length %d", logObj.contentType, logObj.length)
	}
	zr, err := zstd.NewReader(bytes.NewReader(logObj.body))
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if want := testutil.MustReadFile(t, r.Artifacts[0].Log); string(plain) != want {
		t.Errorf("decompressed log differs from the original")
	}

	if report := bucket.objects["releases/"+want[2]]; !strings.Contains(string(report.body), "id: b6f1") {
		t.Errorf("report object:\n%s", report.body)
	}
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	t.Run("nothing packaged", func(t *testing.T) {
		t.Parallel()

		r := &build.Report{ID: "x", Artifacts: []*build.Artifact{{Arch: abi.X86, Status: build.StatusFailed}}}
		p := &Publisher{Client: &fakeBucket{}, Bucket: "b"}
		if _, err := p.Publish(t.Context(), r); !errors.Is(err, ErrNothingToPublish) {
			t.Errorf("Publish() error = %v, want ErrNothingToPublish", err)
		}
	})

	t.Run("upload failure", func(t *testing.T) {
		t.Parallel()

		denied := errors.New("AccessDenied")
		p := &Publisher{Client: &fakeBucket{fail: denied}, Bucket: "b", Logger: log.New(io.Discard)}
		objects, err := p.Publish(t.Context(), testReport(t))
		if !errors.Is(err, denied) || len(objects) != 0 {
			t.Errorf("Publish() = %v, %v; want AccessDenied and no objects", objects, err)
		}
	})

	t.Run("missing bucket", func(t *testing.T) {
		t.Parallel()

		if _, err := NewClient(t.Context(), Options{}); !errors.Is(err, ErrNoBucket) {
			t.Errorf("NewClient() error = %v, want ErrNoBucket", err)
		}
	})
}

func TestCompress(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Compress(&buf, strings.NewReader("hello")); err != nil {
		t.Fatal(err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(buf.Bytes(), nil)
	if err != nil || string(out) != "hello" {
		t.Errorf("DecodeAll() = %q, %v", out, err)
	}
}
