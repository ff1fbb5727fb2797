package action

import "errors"

var (
	ErrUnknownVerb = errors.New("unknown action verb")
	ErrNotFound    = errors.New("action not found")
)
