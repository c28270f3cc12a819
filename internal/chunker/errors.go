package chunker

import "errors"

var ErrInvalidParams = errors.New("invalid chunking parameters")
