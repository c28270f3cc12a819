package extractor

import "errors"

var ErrUnsupportedFormat = errors.New("unsupported file format")
