package domain

import "errors"

var (
	// ErrMalformedRecord marks a stored row with unparseable cells. Loaders
	// repair such rows in place and log them; callers never see it.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidCategory is returned for a category outside the configured list.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrInvalidAmount is returned for a negative amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
)
