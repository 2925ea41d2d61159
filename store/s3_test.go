package store_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/ndlib/folio/store"
	"github.com/ndlib/folio/store/storetest"
)

// fakeS3 implements just enough of the S3 API for the store.
type fakeS3 struct {
	s3iface.S3API
	m       sync.Mutex
	objects map[string]fakeObject
	headErr error // returned by every HeadObject call when set
}

type fakeObject struct {
	data        []byte
	contentType *string
	meta        map[string]*string
	modified    time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func notFound() error {
	return awserr.NewRequestFailure(awserr.New("NotFound", "Not Found", nil), http.StatusNotFound, "x")
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	f.m.Lock()
	defer f.m.Unlock()
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]*string)
	for k, v := range in.Metadata {
		meta[http.CanonicalHeaderKey(k)] = v
	}
	f.m.Lock()
	f.objects[*in.Key] = fakeObject{data: data, contentType: in.ContentType, meta: meta, modified: time.Now()}
	f.m.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.m.Lock()
	delete(f.objects, *in.Key)
	f.m.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	f.m.Lock()
	defer f.m.Unlock()
	obj, ok := f.objects[*in.Key]
	if !ok {
		return nil, notFound()
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   obj.contentType,
		ETag:          aws.String(`"s3-md5"`),
		LastModified:  aws.Time(obj.modified),
		Metadata:      obj.meta,
	}, nil
}

// ListObjectsV2PagesWithContext returns pages of two keys to exercise paging.
func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	f.m.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	f.m.Unlock()
	sort.Strings(keys)
	for len(keys) > 0 {
		n := 2
		if n > len(keys) {
			n = len(keys)
		}
		page := &s3.ListObjectsV2Output{}
		for _, k := range keys[:n] {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k)})
		}
		keys = keys[n:]
		if !fn(page, len(keys) == 0) {
			break
		}
	}
	return nil
}

func TestS3Fake(t *testing.T) {
	fake := newFakeS3()
	s := store.NewS3WithClient("bucket", "folio/", fake)
	storetest.Conformance(t, s)
	for k := range fake.objects {
		if !strings.HasPrefix(k, "folio/") {
			t.Errorf("bucket key %s missing store prefix", k)
		}
	}
}

func TestS3Errors(t *testing.T) {
	var table = []struct {
		err      error
		notExist bool
	}{
		{notFound(), true},
		{awserr.New(s3.ErrCodeNoSuchKey, "gone", nil), true},
		{awserr.New("AccessDenied", "denied", nil), false},
		{awserr.NewRequestFailure(awserr.New("InternalError", "boom", nil), 500, "x"), false},
	}
	for _, row := range table {
		fake := newFakeS3()
		fake.headErr = row.err
		s := store.NewS3WithClient("bucket", "", fake)
		_, err := s.Head(context.Background(), "key")
		if err == nil {
			t.Errorf("Head with %v returned no error", row.err)
			continue
		}
		if store.IsNotExist(err) != row.notExist {
			t.Errorf("Head with %v = %v, expected notExist=%v", row.err, err, row.notExist)
		}
	}
}
