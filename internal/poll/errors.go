package poll

import "errors"

var (
	ErrInvalidScope     = errors.New("invalid course module for poll scope")
	ErrPermissionDenied = errors.New("poll capability check failed")
	ErrQuestionNotFound = errors.New("poll question not found")
	ErrNoPollsFound     = errors.New("no polls in scope")
	ErrEmptyQuestion    = errors.New("poll question text is empty")
	ErrUpdateFailed     = errors.New("poll question update had no effect")
	ErrDeleteFailed     = errors.New("poll delete had no effect")
	ErrMalformedInput   = errors.New("malformed vote entry")
)
