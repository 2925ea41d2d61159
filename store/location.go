package store

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"
)

// splitBucketPrefix will take a path and separate the bucket name from a prefix, if any.
// It will also append "addition" to the prefix, and make sure the prefix returned is
// either empty or ends with a slash "/".
//
// examples:
//
//	"" -> ("", "")
//	"bucket" -> ("bucket", "")
//	"bucket/and/a/prefix" -> ("bucket", "and/a/prefix/")
func splitBucketPrefix(location string, addition string) (bucket, prefix string) {
	if location == "" {
		return
	}
	location = strings.TrimPrefix(location, "/")
	v := strings.SplitN(location, "/", 2)
	bucket = v[0]
	if len(v) > 1 {
		prefix = v[1]
	}
	if addition != "" {
		prefix = path.Join(prefix, addition)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return
}

// Open will create an appropriate store based on location, with addition
// appended to the path or prefix.
// If location is empty, a memory store is returned.
// A plain path or the scheme "file:" is a FileSystem store, "s3:" is an S3
// bucket and "bolt:" a bbolt database file. For bolt, addition names a
// sibling database file. An s3 URL may name a host,
// e.g. "s3://localhost:9000/bucket/prefix", to use a service other than
// AWS.
//
// File and bolt locations may carry a "prefix" query parameter, e.g.
// "bolt:/var/folio.db?prefix=staging", which puts every key under that
// prefix so several deployments can share one directory or database.
func Open(location string, addition string) (Store, error) {
	if location == "" {
		return NewMemory(), nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing location %s", location)
	}
	switch u.Scheme {
	case "", "file":
		p := u.Path
		if p == "" {
			p = u.Opaque // "file:rel/path"
		}
		p = filepath.Join(p, addition)
		if err := os.MkdirAll(p, 0755); err != nil {
			return nil, err
		}
		return withPrefix(NewFileSystem(p), u), nil
	case "bolt":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		if addition != "" {
			p = strings.TrimSuffix(p, ".db") + "-" + addition + ".db"
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, err
		}
		b, err := NewBolt(p)
		if err != nil {
			return nil, err
		}
		return withPrefix(b, u), nil
	case "s3":
		conf := &aws.Config{}
		if u.Host != "" {
			conf.Endpoint = aws.String(u.Host)
			conf.Region = aws.String("us-east-1")
			// disable SSL for local development
			if strings.Contains(u.Host, "localhost") {
				conf.DisableSSL = aws.Bool(true)
				conf.S3ForcePathStyle = aws.Bool(true)
			}
		}
		bucket, prefix := splitBucketPrefix(u.Path, addition)
		if bucket == "" {
			return nil, errors.Errorf("location %s has no bucket name", location)
		}
		sess, err := session.NewSession(conf)
		if err != nil {
			return nil, errors.Wrap(err, "creating aws session")
		}
		return NewS3(bucket, prefix, sess), nil
	}
	return nil, errors.Errorf("location %s has unknown scheme %q", location, u.Scheme)
}

// withPrefix wraps s in a prefix store if u has a prefix query parameter.
func withPrefix(s Store, u *url.URL) Store {
	prefix := strings.Trim(u.Query().Get("prefix"), "/")
	if prefix == "" {
		return s
	}
	return NewWithPrefix(s, prefix+"/")
}
