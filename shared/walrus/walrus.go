// Package walrus is a thin client for the Eucalyptus object store, just
// enough to put bundles where the cloud can find them.
package walrus

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/go-clog/clog"

	"github.com/gholms/euca2ools/shared/bundle"
	"github.com/gholms/euca2ools/shared/eucarc"
	"github.com/gholms/euca2ools/shared/tools"
)

// Client talks to one Walrus endpoint over its S3-compatible API.
type Client struct {
	svc *s3.S3
}

// New builds a client from resolved credentials.
func New(rc *eucarc.Config) (*Client, error) {
	if err := rc.ValidateS3(); err != nil {
		return nil, err
	}
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(rc.AccessKey, rc.SecretKey, ""),
		Endpoint:    aws.String(rc.S3URL),
		// Walrus has no regions, but the SDK insists on one.
		Region:           aws.String("eucalyptus"),
		DisableSSL:       aws.Bool(strings.HasPrefix(rc.S3URL, "http://")),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return &Client{svc: s3.New(sess)}, nil
}

// EnsureBucket creates bucket if it does not exist yet. A bucket we
// already own is fine; a name squatted by somebody else is not.
func (c *Client) EnsureBucket(bucket string) error {
	_, err := c.svc.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeBucketAlreadyOwnedByYou:
			return nil
		case s3.ErrCodeBucketAlreadyExists:
			return fmt.Errorf("bucket %s belongs to somebody else", bucket)
		}
	}
	return err
}

// Object names one uploaded thing and how big it was.
type Object struct {
	Key  string
	Size int64
}

// PutFile uploads one local file as key in bucket and returns how many
// bytes went up.
func (c *Client) PutFile(bucket, key, file, acl string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(st.Size()),
	}
	if acl != "" {
		in.ACL = aws.String(acl)
	}
	if _, err := c.svc.PutObject(in); err != nil {
		return 0, fmt.Errorf("uploading %s: %v", key, err)
	}
	clog.Trace("uploaded s3://%s/%s (%s)", bucket, key, tools.FileSize(st.Size()))
	return st.Size(), nil
}

// UploadBundle puts every part named by the manifest at manifestPath into
// location, then the manifest itself. Parts go first so a visible
// manifest always points at complete data. location is a bucket name,
// optionally with a key prefix as bucket/prefix. The returned objects are
// in upload order.
func (c *Client) UploadBundle(location, manifestPath, acl string) ([]Object, error) {
	bucket, prefix := SplitLocation(location)
	if bucket == "" {
		return nil, fmt.Errorf("invalid bucket %q", location)
	}
	m, err := bundle.ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	srcDir := filepath.Dir(manifestPath)

	if err := c.EnsureBucket(bucket); err != nil {
		return nil, err
	}

	var objects []Object
	for _, p := range m.Image.Parts.Parts {
		key := path.Join(prefix, p.Filename)
		n, err := c.PutFile(bucket, key, filepath.Join(srcDir, p.Filename), acl)
		if err != nil {
			return nil, err
		}
		objects = append(objects, Object{Key: key, Size: n})
	}
	key := path.Join(prefix, filepath.Base(manifestPath))
	n, err := c.PutFile(bucket, key, manifestPath, acl)
	if err != nil {
		return nil, err
	}
	objects = append(objects, Object{Key: key, Size: n})

	clog.Info("uploaded %d objects to %s", len(objects), bucket)
	return objects, nil
}

// SplitLocation separates BUCKET[/PREFIX] into its halves.
func SplitLocation(location string) (bucket, prefix string) {
	location = strings.Trim(location, "/")
	if i := strings.IndexByte(location, '/'); i >= 0 {
		return location[:i], location[i+1:]
	}
	return location, ""
}
