package connectors

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const S3_SCHEME = "s3"

const s3OperationTimeout = 2 * time.Minute

// S3Connector stores a mirror in an S3 compatible bucket.
type S3Connector struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool

	mu     sync.Mutex
	client *minio.Client
}

// NewFromURI accepts s3://access:secret@host:port/bucket/prefix. The query
// may carry region=<name> and insecure=1 for plain HTTP endpoints.
func (c *S3Connector) NewFromURI(uri string) Connector {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Host == "" {
		return nil
	}

	bucket, prefix, _ := strings.Cut(strings.Trim(parsed.Path, "/"), "/")
	if bucket == "" {
		return nil
	}

	var access, secret string
	if parsed.User != nil {
		access = parsed.User.Username()
		secret, _ = parsed.User.Password()
	}

	q := parsed.Query()
	region := q.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	return &S3Connector{
		Endpoint:  parsed.Host,
		Bucket:    bucket,
		Prefix:    prefix,
		AccessKey: access,
		SecretKey: secret,
		Region:    region,
		Secure:    q.Get("insecure") != "1",
	}
}

func (c *S3Connector) GetPath() string {
	return c.Prefix
}

// GetURI masks the secret key.
func (c *S3Connector) GetURI() string {
	u := url.URL{Scheme: S3_SCHEME, Host: c.Endpoint, Path: "/" + c.Bucket}
	if c.Prefix != "" {
		u.Path += "/" + c.Prefix
	}
	if c.AccessKey != "" {
		u.User = url.UserPassword(c.AccessKey, "*****")
	}
	return u.String()
}

func (c *S3Connector) key(remotePath string) string {
	rel := strings.TrimLeft(remotePath, "/")
	if c.Prefix == "" {
		return rel
	}
	return c.Prefix + "/" + rel
}

func (c *S3Connector) Connect() error {
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.Secure,
		Region: c.Region,
	})
	if err != nil {
		return fmt.Errorf("init s3 client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3OperationTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, c.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, c.Bucket, minio.MakeBucketOptions{Region: c.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", c.Bucket, err)
		}
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	return nil
}

func (c *S3Connector) connected() (*minio.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, fmt.Errorf("s3 connector %s is not connected", c.Endpoint)
	}
	return c.client, nil
}

func (c *S3Connector) ReadFileBytes(remotePath string, size int64) ([]byte, error) {
	client, err := c.connected()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s3OperationTimeout)
	defer cancel()

	obj, err := client.GetObject(ctx, c.Bucket, c.key(remotePath), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s: %w", remotePath, fs.ErrNotExist)
		}
		return nil, err
	}
	return data, nil
}

func (c *S3Connector) SendFile(remotePath string, localPath string) error {
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return c.SendFileFromBytes(remotePath, b)
}

// SendFileFromBytes ignores perm, objects carry no mode.
func (c *S3Connector) SendFileFromBytes(remotePath string, content []byte, perm ...fs.FileMode) error {
	client, err := c.connected()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s3OperationTimeout)
	defer cancel()

	_, err = client.PutObject(ctx, c.Bucket, c.key(remotePath), bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (c *S3Connector) GetScheme() string {
	return S3_SCHEME
}

func (c *S3Connector) IsConnected() bool {
	_, err := c.connected()
	return err == nil
}

func (c *S3Connector) Close() error {
	c.mu.Lock()
	c.client = nil
	c.mu.Unlock()
	return nil
}

func (c *S3Connector) HasFile(remotePath string) bool {
	client, err := c.connected()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), s3OperationTimeout)
	defer cancel()
	_, err = client.StatObject(ctx, c.Bucket, c.key(remotePath), minio.StatObjectOptions{})
	return err == nil
}

func (c *S3Connector) HasFileWithChecksum(remotePath string, checksumType ChecksumType, checksum string) bool {
	b, err := c.ReadFileBytes(remotePath, -1)
	if err != nil {
		return false
	}
	return matchesChecksum(b, checksumType, checksum)
}
