package objectstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/koustreak/querypool/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listBucketsXML = `<?xml version="1.0" encoding="UTF-8"?>
<ListAllMyBucketsResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
<Owner><ID>minio</ID><DisplayName>minio</DisplayName></Owner>
<Buckets><Bucket><Name>reports</Name><CreationDate>2024-01-02T03:04:05.000Z</CreationDate></Bucket></Buckets>
</ListAllMyBucketsResult>`

const listObjectsXML = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
<Name>reports</Name><Prefix></Prefix><KeyCount>2</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>
<Contents><Key>a.txt</Key><LastModified>2024-01-02T03:04:05.000Z</LastModified><ETag>"abc"</ETag><Size>5</Size><StorageClass>STANDARD</StorageClass></Contents>
<Contents><Key>b.txt</Key><LastModified>2024-01-02T03:04:05.000Z</LastModified><ETag>"def"</ETag><Size>7</Size><StorageClass>STANDARD</StorageClass></Contents>
</ListBucketResult>`

// fakeS3 serves just enough of the S3 API for the read-only requests.
func fakeS3(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/" && r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(listBucketsXML))
		case r.URL.Path == "/reports" || r.URL.Path == "/reports/":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(listObjectsXML))
		case r.URL.Path == "/reports/a.txt":
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Length", "5")
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Last-Modified", "Tue, 02 Jan 2024 03:04:05 GMT")
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte("hello"))
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestConn(t *testing.T, bucket string) *Conn {
	t.Helper()
	srv := fakeS3(t)
	cfg := DefaultConfig(strings.TrimPrefix(srv.URL, "http://"), "minioadmin", "minioadmin")
	cfg.Region = "us-east-1"
	cfg.Bucket = bucket
	connector, err := NewConnector(cfg)
	require.NoError(t, err)
	conn, err := connector.Connect(context.Background())
	require.NoError(t, err)
	return conn.(*Conn)
}

func TestConn_IsValid(t *testing.T) {
	ctx := context.Background()
	assert.True(t, newTestConn(t, "").IsValid(ctx))
	assert.True(t, newTestConn(t, "reports").IsValid(ctx))
	assert.False(t, newTestConn(t, "missing").IsValid(ctx))

	closed := newTestConn(t, "")
	require.NoError(t, closed.Close())
	assert.False(t, closed.IsValid(ctx))
	require.NoError(t, closed.Reconnect(ctx))
	assert.True(t, closed.IsValid(ctx))
}

func TestConn_ListBuckets(t *testing.T) {
	resp, err := newTestConn(t, "").Execute(context.Background(), Request{Op: OpListBuckets})
	require.NoError(t, err)
	require.Len(t, resp.Buckets, 1)
	assert.Equal(t, "reports", resp.Buckets[0].Name)
}

func TestConn_ListObjects(t *testing.T) {
	conn := newTestConn(t, "reports")

	resp, err := conn.Execute(context.Background(), Request{Op: OpList, Recursive: true})
	require.NoError(t, err)
	require.Len(t, resp.Objects, 2)
	assert.Equal(t, "a.txt", resp.Objects[0].Key)
	assert.EqualValues(t, 7, resp.Objects[1].Size)

	resp, err = conn.Execute(context.Background(), Request{Op: OpList, Recursive: true, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Objects, 1)
}

func TestConn_StatAndGet(t *testing.T) {
	conn := newTestConn(t, "reports")
	ctx := context.Background()

	resp, err := conn.Execute(ctx, Request{Op: OpStat, Key: "a.txt"})
	require.NoError(t, err)
	assert.EqualValues(t, 5, resp.Object.Size)
	assert.Equal(t, "text/plain", resp.Object.ContentType)

	resp, err = conn.Execute(ctx, Request{Op: OpGet, Key: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(resp.Body))

	conn.cfg.MaxObjectSize = 2
	_, err = conn.Execute(ctx, Request{Op: OpGet, Key: "a.txt"})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = conn.Execute(ctx, Request{Op: OpStat, Key: "nope.txt"})
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), `object "nope.txt" not found in bucket "reports"`)
}

func TestConn_MissingBucket(t *testing.T) {
	_, err := newTestConn(t, "reports").Execute(context.Background(), Request{Op: OpList, Bucket: "missing"})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), `bucket "missing" does not exist`)
}

func TestConn_Presign(t *testing.T) {
	resp, err := newTestConn(t, "reports").Execute(context.Background(), Request{Op: OpPresign, Key: "a.txt", TTL: time.Minute})
	require.NoError(t, err)
	assert.Contains(t, resp.URL, "/reports/a.txt")
	assert.Contains(t, resp.URL, "X-Amz-Signature")
}

func TestRequest_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		bucket  string
		wantErr bool
	}{
		{"list buckets", Request{Op: OpListBuckets}, "", false},
		{"list uses default bucket", Request{Op: OpList}, "reports", false},
		{"list without bucket", Request{Op: OpList}, "", true},
		{"negative limit", Request{Op: OpList, Bucket: "b", Limit: -1}, "", true},
		{"get without key", Request{Op: OpGet, Bucket: "b"}, "", true},
		{"unknown op", Request{Op: "delete", Bucket: "b", Key: "k"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.normalize(tt.bucket)
			if tt.wantErr {
				assert.True(t, errs.IsInvalidInput(err))
				return
			}
			assert.NoError(t, err)
		})
	}

	r, err := Request{Op: OpPresign, Bucket: "b", Key: "k"}.normalize("")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, r.TTL)
}

func TestMapError(t *testing.T) {
	objReq := Request{Op: OpStat, Bucket: "reports", Key: "a.txt"}
	listReq := Request{Op: OpList, Bucket: "reports"}

	tests := []struct {
		name    string
		err     error
		req     Request
		want    errs.ErrKind
		message string
	}{
		{"deadline", context.DeadlineExceeded, objReq, errs.ErrKindTimeout, `stat object "a.txt" in bucket "reports" failed`},
		{"no such bucket", miniogo.ErrorResponse{Code: "NoSuchBucket"}, objReq, errs.ErrKindNotFound, `bucket "reports" does not exist`},
		{"no such key", miniogo.ErrorResponse{Code: "NoSuchKey"}, objReq, errs.ErrKindNotFound, `object "a.txt" not found in bucket "reports"`},
		{"bare 404 with key", miniogo.ErrorResponse{StatusCode: http.StatusNotFound}, objReq, errs.ErrKindNotFound, `object "a.txt" not found`},
		{"bare 404 listing", miniogo.ErrorResponse{StatusCode: http.StatusNotFound}, listReq, errs.ErrKindNotFound, `bucket "reports" does not exist`},
		{"403", miniogo.ErrorResponse{StatusCode: http.StatusForbidden}, listReq, errs.ErrKindPermissionDenied, `list bucket "reports" failed`},
		{"bad name", miniogo.ErrorResponse{Code: "InvalidBucketName"}, listReq, errs.ErrKindInvalidInput, "failed"},
		{"slow down", miniogo.ErrorResponse{Code: "SlowDown"}, objReq, errs.ErrKindTimeout, "failed"},
		{"network", errors.New("connection refused"), Request{Op: OpListBuckets}, errs.ErrKindConnectionFailed, "list_buckets failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, tt.req)
			assert.Equal(t, tt.want, got.Kind)
			assert.Contains(t, got.Message, tt.message)
		})
	}
	assert.Nil(t, mapError(nil, objReq))
}

func TestNewConnector_Validates(t *testing.T) {
	_, err := NewConnector(nil)
	assert.True(t, errs.IsInvalidInput(err))
	_, err = NewConnector(&Config{})
	assert.True(t, errs.IsInvalidInput(err))
}
