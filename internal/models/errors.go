package models

import "github.com/pkg/errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrSuspended  = errors.New("account suspended")
)
