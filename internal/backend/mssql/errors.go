package mssql

import (
	"errors"
	"fmt"

	"github.com/koustreak/querypool/internal/backend/sqlconn"
	"github.com/koustreak/querypool/internal/errs"
	mssql "github.com/microsoft/go-mssqldb"
)

// SQL Server error numbers
// Full list: https://learn.microsoft.com/sql/relational-databases/errors-events/database-engine-events-and-errors
const (
	errInvalidObject     = 208
	errPermissionDenied  = 229
	errInvalidColumn     = 207
	errSyntax            = 102
	errConversion        = 245
	errTruncation        = 8152
	errCannotOpenDB      = 4060
	errLoginFailed       = 18456
	errLockTimeout       = 1222
	errDeadlockVictim    = 1205
	errServerUnavailable = 40613
)

// mapError translates go-mssqldb errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		return errs.Wrap(
			classifyErrorNumber(sqlErr.Number),
			fmt.Sprintf("%s: %s", msg, sqlErr.Message),
			err,
		)
	}

	return sqlconn.MapError(err, msg)
}

func classifyErrorNumber(n int32) errs.ErrKind {
	switch n {
	case errLoginFailed, errPermissionDenied:
		return errs.ErrKindPermissionDenied
	case errCannotOpenDB, errServerUnavailable:
		return errs.ErrKindConnectionFailed
	case errLockTimeout:
		return errs.ErrKindTimeout
	case errConversion, errTruncation:
		return errs.ErrKindInvalidInput
	case errInvalidObject, errInvalidColumn, errSyntax, errDeadlockVictim:
		return errs.ErrKindQueryFailed
	}
	return errs.ErrKindQueryFailed
}
