package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var errNoSuchKey = errors.New("NoSuchKey")

// fakeS3 implements S3API over an in-memory map.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = fakeObject{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key, obj := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{
				Key:          aws.String(key),
				LastModified: aws.Time(obj.modified),
				Size:         aws.Int64(int64(len(obj.data))),
			})
		}
	}
	return out, nil
}

// TestS3StoreSaveAndClaim verifies the staged round trip through the bucket.
func TestS3StoreSaveAndClaim(t *testing.T) {
	client := newFakeS3()
	store := NewS3Store(client, "bucket", "staged/", 0)
	ctx := context.Background()

	id, err := store.Save(ctx, "upload.zip", "application/zip", 7, strings.NewReader("PK-data"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	file, err := store.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	defer file.Close()

	if file.Filename != "upload.zip" {
		t.Errorf("Filename = %q", file.Filename)
	}
	if file.ContentType != "application/zip" {
		t.Errorf("ContentType = %q", file.ContentType)
	}
	data, _ := io.ReadAll(file.Reader)
	if string(data) != "PK-data" {
		t.Errorf("contents = %q", data)
	}
}

// TestS3StoreSizeLimit verifies the byte bound.
func TestS3StoreSizeLimit(t *testing.T) {
	store := NewS3Store(newFakeS3(), "bucket", "staged/", 8)
	ctx := context.Background()

	if _, err := store.Save(ctx, "big.zip", "application/zip", 0, strings.NewReader(strings.Repeat("x", 64))); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Save() error = %v, want ErrTooLarge", err)
	}
}

// TestS3StoreClaimMissing verifies a missing key maps to ErrNotFound.
func TestS3StoreClaimMissing(t *testing.T) {
	store := NewS3Store(newFakeS3(), "bucket", "staged/", 0)
	if _, err := store.Claim(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Claim() error = %v, want ErrNotFound", err)
	}
}

// TestS3StoreCleanup verifies old staged objects are deleted.
func TestS3StoreCleanup(t *testing.T) {
	client := newFakeS3()
	store := NewS3Store(client, "bucket", "staged/", 0)
	ctx := context.Background()

	id, err := store.Save(ctx, "old.zip", "application/zip", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatal(err)
	}

	client.mu.Lock()
	obj := client.objects["staged/"+id]
	obj.modified = time.Now().Add(-2 * time.Hour)
	client.objects["staged/"+id] = obj
	client.mu.Unlock()

	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	client.mu.Lock()
	_, remains := client.objects["staged/"+id]
	client.mu.Unlock()
	if remains {
		t.Error("expired object not deleted")
	}
}
