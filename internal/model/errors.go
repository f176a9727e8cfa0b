package model

import "errors"

var (
	// ErrNotFound is returned when an alert or symbol does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a record whose key is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalid marks a rejected user input (configuration error).
	ErrInvalid = errors.New("invalid")
)
