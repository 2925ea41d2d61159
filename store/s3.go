package store

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"
)

// A S3 store represents a store that is kept on AWS S3 storage, or on any
// service speaking the same API.
// Do not change Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc    s3iface.S3API
	Bucket string
	Prefix string
}

// user metadata key holding the caller supplied ETag. S3 computes its own
// ETag, which is an MD5 for simple uploads, so ours is kept separately.
const s3ETagKey = "Folio-Etag"

var _ Store = &S3{}

// NewS3 creates a new S3 store. It will use the given bucket and will prepend
// prefix to all keys. This is to allow for a bucket to be used for more than
// one store. For example if prefix were "cache/" then a Get("hello") would
// look for the key "cache/hello" in the bucket. The authorization method and
// credentials in the session are used for all accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	return &S3{
		Bucket: bucket,
		Prefix: prefix,
		svc:    s3.New(awsSession),
	}
}

// NewS3WithClient is like NewS3 but uses an already configured client.
func NewS3WithClient(bucket, prefix string, svc s3iface.S3API) *S3 {
	return &S3{Bucket: bucket, Prefix: prefix, svc: svc}
}

// Get downloads the entire object for key.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	output, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		return nil, s.fail("S3 Get", key, err)
	}
	defer output.Body.Close()
	data, err := ioutil.ReadAll(output.Body)
	if err != nil {
		return nil, s.fail("S3 Get", key, err)
	}
	return data, nil
}

// Put uploads data in a single PUT. Objects in folio are small JSON
// documents, so multipart uploads are never needed.
func (s *S3) Put(ctx context.Context, key string, data []byte, meta *Metadata) error {
	m := fillMetadata(data, meta, time.Now())
	usermeta := make(map[string]*string, len(m.User)+1)
	for k, v := range m.User {
		usermeta[k] = aws.String(v)
	}
	usermeta[s3ETagKey] = aws.String(m.ETag)
	input := &s3.PutObjectInput{
		Body:          bytes.NewReader(data),
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(s.Prefix + key),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      usermeta,
	}
	if m.ContentType != "" {
		input.ContentType = aws.String(m.ContentType)
	}
	_, err := s.svc.PutObjectWithContext(ctx, input)
	if err != nil {
		return s.fail("S3 Put", key, err)
	}
	return nil
}

// Delete will remove the given key from the store. The store's Prefix is
// prepended first. It is not an error to delete something that doesn't exist.
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		err = s.fail("S3 Delete", key, err)
		if IsNotExist(err) {
			err = nil
		}
	}
	return err
}

// List returns the keys in this store that have the given prefix.
// The argument prefix is added to the store's Prefix, and the store's Prefix
// is removed from the returned keys.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var result []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix + prefix),
	}
	err := s.svc.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, item := range page.Contents {
				result = append(result, strings.TrimPrefix(*item.Key, s.Prefix))
			}
			return !lastpage
		})
	if err != nil {
		return nil, s.fail("S3 List", prefix, err)
	}
	sort.Strings(result)
	return result, nil
}

// Head does a HEAD request for key.
func (s *S3) Head(ctx context.Context, key string) (Metadata, error) {
	var m Metadata
	info, err := s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		return m, s.fail("S3 Head", key, err)
	}
	m.Size = aws.Int64Value(info.ContentLength)
	m.ContentType = aws.StringValue(info.ContentType)
	m.Modified = aws.TimeValue(info.LastModified)
	m.ETag = strings.Trim(aws.StringValue(info.ETag), `"`)
	if len(info.Metadata) > 0 {
		m.User = make(map[string]string, len(info.Metadata))
		for k, v := range info.Metadata {
			// the SDK canonicalizes header names
			if http.CanonicalHeaderKey(k) == s3ETagKey {
				m.ETag = aws.StringValue(v)
				continue
			}
			m.User[k] = aws.StringValue(v)
		}
	}
	return m, nil
}

// fail translates an error from the SDK. Missing keys become ErrNotExist,
// everything else is reported and wrapped.
func (s *S3) fail(op, key string, err error) error {
	if e, ok := err.(awserr.RequestFailure); ok && e.StatusCode() == http.StatusNotFound {
		return ErrNotExist
	}
	if e, ok := err.(awserr.Error); ok {
		switch e.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return ErrNotExist
		}
	}
	raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
	return errors.Wrapf(err, "%s %s%s", op, s.Prefix, key)
}
