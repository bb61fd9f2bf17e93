// Package objectstore exposes an S3-compatible object store (MinIO, S3) as
// a querypool backend. A Conn owns one client; requests are read-only.
//
// Usage:
//
//	connector, err := objectstore.NewConnector(objectstore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin"))
//	if err != nil { ... }
//	p, err := pool.New[objectstore.Request, *objectstore.Response](connector, 4)
package objectstore

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/pool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Connector builds object store connections from one config.
type Connector struct {
	cfg *Config
}

// NewConnector checks cfg and returns a Connector.
func NewConnector(cfg *Config) (*Connector, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "object store config is nil")
	}
	if cfg.Endpoint == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "object store endpoint is required")
	}
	return &Connector{cfg: cfg}, nil
}

// Connect creates a client. No request is made until the first use.
func (c *Connector) Connect(context.Context) (pool.Conn[Request, *Response], error) {
	client, err := c.newClient()
	if err != nil {
		return nil, err
	}
	return &Conn{cfg: c.cfg, client: client}, nil
}

func (c *Connector) newClient() (*miniogo.Client, error) {
	client, err := miniogo.New(c.cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(c.cfg.AccessKey, c.cfg.SecretKey, ""),
		Secure: c.cfg.UseSSL,
		Region: c.cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}
	return client, nil
}

// Conn is one object store client.
type Conn struct {
	cfg    *Config
	client *miniogo.Client
}

// IsValid probes the default bucket, or lists buckets when there is none.
func (c *Conn) IsValid(ctx context.Context) bool {
	if c.client == nil {
		return false
	}
	ctx, cancel := withTimeout(ctx, c.cfg.PingTimeout)
	defer cancel()

	if c.cfg.Bucket != "" {
		ok, err := c.client.BucketExists(ctx, c.cfg.Bucket)
		return err == nil && ok
	}
	_, err := c.client.ListBuckets(ctx)
	return err == nil
}

// Reconnect replaces the client, dropping its idle HTTP connections.
func (c *Conn) Reconnect(context.Context) error {
	client, err := (&Connector{cfg: c.cfg}).newClient()
	if err != nil {
		return err
	}
	c.client = client
	return nil
}

// Close is a no-op; the SDK client holds no session.
func (c *Conn) Close() error {
	c.client = nil
	return nil
}

// Execute runs one read-only request.
func (c *Conn) Execute(ctx context.Context, req Request) (*Response, error) {
	if c.client == nil {
		return nil, errs.New(errs.ErrKindConnectionFailed, "connection is closed")
	}
	req, err := req.normalize(c.cfg.Bucket)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	switch req.Op {
	case OpListBuckets:
		return c.listBuckets(ctx)
	case OpList:
		return c.listObjects(ctx, req)
	case OpStat:
		return c.statObject(ctx, req)
	case OpGet:
		return c.getObject(ctx, req)
	default:
		return c.presign(ctx, req)
	}
}

func (c *Conn) listBuckets(ctx context.Context) (*Response, error) {
	raw, err := c.client.ListBuckets(ctx)
	if err != nil {
		return nil, mapError(err, Request{Op: OpListBuckets})
	}
	buckets := make([]BucketInfo, len(raw))
	for i, b := range raw {
		buckets[i] = BucketInfo{Name: b.Name, CreatedAt: b.CreationDate}
	}
	return &Response{Buckets: buckets}, nil
}

func (c *Conn) listObjects(ctx context.Context, req Request) (*Response, error) {
	// Cancelling stops the SDK's listing goroutine when we break early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := make([]ObjectInfo, 0)
	for obj := range c.client.ListObjects(ctx, req.Bucket, miniogo.ListObjectsOptions{
		Prefix:    req.Prefix,
		Recursive: req.Recursive,
	}) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, req)
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
			IsDir:        strings.HasSuffix(obj.Key, "/"),
		})
		if req.Limit > 0 && len(objects) >= req.Limit {
			break
		}
	}
	return &Response{Objects: objects}, nil
}

func (c *Conn) statObject(ctx context.Context, req Request) (*Response, error) {
	stat, err := c.client.StatObject(ctx, req.Bucket, req.Key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, req)
	}
	return &Response{Object: objectInfo(stat)}, nil
}

func (c *Conn) getObject(ctx context.Context, req Request) (*Response, error) {
	obj, err := c.client.GetObject(ctx, req.Bucket, req.Key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, req)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return nil, mapError(err, req)
	}
	if c.cfg.MaxObjectSize > 0 && stat.Size > c.cfg.MaxObjectSize {
		return nil, errs.New(errs.ErrKindInvalidInput, "object exceeds the configured max_object_size")
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(err, req)
	}
	return &Response{Object: objectInfo(stat), Body: body}, nil
}

func (c *Conn) presign(ctx context.Context, req Request) (*Response, error) {
	u, err := c.client.PresignedGetObject(ctx, req.Bucket, req.Key, req.TTL, nil)
	if err != nil {
		return nil, mapError(err, req)
	}
	return &Response{URL: u.String()}, nil
}

func objectInfo(stat miniogo.ObjectInfo) *ObjectInfo {
	return &ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
