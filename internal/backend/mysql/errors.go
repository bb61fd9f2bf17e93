package mysql

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/querypool/internal/backend/sqlconn"
	"github.com/koustreak/querypool/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied    = 1044
	errAccessDenied      = 1045
	errNoDBSelected      = 1046
	errUnknownDatabase   = 1049
	errTooManyConns      = 1040
	errTooManyUserConns  = 1203
	errTableAccessDenied = 1142
	errBadField          = 1054
	errParse             = 1064
	errNoSuchTable       = 1146
	errLockWaitTimeout   = 1205
	errQueryInterrupted  = 1317
	errMaxExecTime       = 3024
	errTruncatedValue    = 1292
	errDataTooLong       = 1406
)

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	if errors.Is(err, mysql.ErrInvalidConn) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	return sqlconn.MapError(err, msg)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied, errTableAccessDenied:
		return errs.ErrKindPermissionDenied
	case errNoDBSelected, errUnknownDatabase, errTooManyConns, errTooManyUserConns:
		return errs.ErrKindConnectionFailed
	case errLockWaitTimeout, errQueryInterrupted, errMaxExecTime:
		return errs.ErrKindTimeout
	case errTruncatedValue, errDataTooLong:
		return errs.ErrKindInvalidInput
	case errBadField, errParse, errNoSuchTable:
		return errs.ErrKindQueryFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
