package llm

import "errors"

var ErrGeneration = errors.New("generation failed")
