package repositories

import "errors"

// ErrNotFound is returned when a row is missing or soft-deleted.
var ErrNotFound = errors.New("record not found")

// ErrInsufficientStock is returned when a stock decrement would go negative.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrDuplicate is returned when a unique key is already taken.
var ErrDuplicate = errors.New("duplicate record")
