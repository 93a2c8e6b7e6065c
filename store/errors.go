package store

import "errors"

var (
	// ErrNotFound means no record exists at the requested key.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists means Insert collided with an existing record at
	// the same partition+sort key.
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConditionFailed means a conditional write's precondition did not
	// hold. Callers treat this as "lost race", not as an application error.
	ErrConditionFailed = errors.New("store: condition failed")
)
