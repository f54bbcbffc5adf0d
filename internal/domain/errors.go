package domain

import "errors"

var (
	ErrUnknownKind = errors.New("unknown job kind")
	ErrNotRunning  = errors.New("no job running")
)
