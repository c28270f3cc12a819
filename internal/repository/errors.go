package repository

import "errors"

// ErrNotFound covers rows that are missing, soft-deleted or not owned by the
// caller. The three cases are deliberately indistinguishable to callers.
var ErrNotFound = errors.New("not found")
