package embedding

import "errors"

var ErrEmbedding = errors.New("embedding failed")
