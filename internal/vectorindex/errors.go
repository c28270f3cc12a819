package vectorindex

import "errors"

var ErrVectorIndex = errors.New("vector index error")
