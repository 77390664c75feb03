package media

import "errors"

var (
	errNotFound       = errors.New("media: not found")
	errNotImplemented = errors.New("media: not implemented")
	errNotSupported   = errors.New("media: not supported")
)
