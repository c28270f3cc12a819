package rerank

import "errors"

var ErrRerank = errors.New("rerank failed")
