package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrPartialCascade     = errors.New("partial cascade failure")
	ErrPermissionDeny     = errors.New("permission denied")
)
