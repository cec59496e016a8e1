package rerrors

import (
	"gopkg.in/src-d/go-vitess.v0/go/mysql"
)

// CastSessionError normalizes an opaque error returned by the session
// collaborator (spec §6, §7: "session errors — opaque, surfaced as-is")
// into a *mysql.SQLError when possible, the same cast the teacher performs
// in sql.CastSQLError. Errors that are not already a *mysql.SQLError pass
// through untouched; the core never manufactures a fake SQL error code.
func CastSessionError(err error) error {
	if err == nil {
		return nil
	}
	if sqlErr, ok := err.(*mysql.SQLError); ok {
		return sqlErr
	}
	return err
}
