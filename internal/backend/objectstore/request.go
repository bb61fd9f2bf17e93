package objectstore

import (
	"fmt"
	"time"

	"github.com/koustreak/querypool/internal/errs"
)

// Op names an object store operation.
type Op string

const (
	OpListBuckets Op = "list_buckets"
	OpList        Op = "list"
	OpStat        Op = "stat"
	OpGet         Op = "get"
	OpPresign     Op = "presign"
)

// Request is the query type of an object store connection.
type Request struct {
	Op     Op     `json:"op"`
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key,omitempty"`

	// List options
	Prefix    string `json:"prefix,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
	Limit     int    `json:"limit,omitempty"`

	// TTL is the lifetime of a presigned URL.
	TTL time.Duration `json:"ttl,omitempty"`
}

// BucketInfo describes a storage bucket.
type BucketInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`

	// IsDir is true for a virtual directory (common prefix).
	IsDir bool `json:"is_dir,omitempty"`
}

// Response is the result of a Request. Which fields are set depends on Op.
type Response struct {
	Buckets []BucketInfo `json:"buckets,omitempty"`
	Objects []ObjectInfo `json:"objects,omitempty"`
	Object  *ObjectInfo  `json:"object,omitempty"`
	Body    []byte       `json:"body,omitempty"`
	URL     string       `json:"url,omitempty"`
}

// normalize fills the default bucket and checks the request is complete.
func (r Request) normalize(defaultBucket string) (Request, error) {
	if r.Bucket == "" {
		r.Bucket = defaultBucket
	}
	switch r.Op {
	case OpListBuckets:
		return r, nil
	case OpList:
		if r.Bucket == "" {
			return r, errs.New(errs.ErrKindInvalidInput, "list requires a bucket")
		}
		if r.Limit < 0 {
			return r, errs.New(errs.ErrKindInvalidInput, "limit must not be negative")
		}
	case OpStat, OpGet, OpPresign:
		if r.Bucket == "" || r.Key == "" {
			return r, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("%s requires a bucket and a key", r.Op))
		}
		if r.Op == OpPresign && r.TTL <= 0 {
			r.TTL = 15 * time.Minute
		}
	default:
		return r, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown operation %q", r.Op))
	}
	return r, nil
}

// target names what r addresses, for error messages.
func (r Request) target() string {
	switch {
	case r.Op == OpListBuckets:
		return ""
	case r.Key == "":
		return fmt.Sprintf("bucket %q", r.Bucket)
	default:
		return fmt.Sprintf("object %q in bucket %q", r.Key, r.Bucket)
	}
}
