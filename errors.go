package main

import (
	"fmt"

	"github.com/pkg/errors"
)

// RemoteError is returned by every Session implementation. Rejected marks
// failures where the server answered but refused the request (missing path,
// permission denied, not a directory); everything else means the connection
// can no longer be trusted.
type RemoteError struct {
	Op       string
	Path     string
	Err      error
	Rejected bool
}

func (e *RemoteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRejected reports whether err is a Permission/NotFound class failure.
func IsRejected(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Rejected
}

func remoteError(op, path string, err error, rejected func(error) bool) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Path: path, Err: err, Rejected: rejected(err)}
}
