package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/koustreak/querypool/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
)

// mapError translates a MinIO SDK error raised while serving req into a
// *errs.Error whose message names the request's bucket and key.
func mapError(err error, req Request) *errs.Error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf("%s failed", req.Op)
	if target := req.target(); target != "" {
		msg = fmt.Sprintf("%s %s failed", req.Op, target)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var resp miniogo.ErrorResponse
	if !errors.As(err, &resp) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	switch resp.Code {
	case "NoSuchBucket":
		return errs.Wrap(errs.ErrKindNotFound, fmt.Sprintf("bucket %q does not exist", req.Bucket), err)
	case "NoSuchKey":
		return errs.Wrap(errs.ErrKindNotFound,
			fmt.Sprintf("object %q not found in bucket %q", req.Key, req.Bucket), err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case "InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	case "RequestTimeout", "SlowDown":
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		// A bare 404 (HEAD responses carry no body) means the key when the
		// request names one.
		if req.Key != "" {
			return errs.Wrap(errs.ErrKindNotFound,
				fmt.Sprintf("object %q not found in bucket %q", req.Key, req.Bucket), err)
		}
		return errs.Wrap(errs.ErrKindNotFound, fmt.Sprintf("bucket %q does not exist", req.Bucket), err)
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case http.StatusBadRequest:
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
