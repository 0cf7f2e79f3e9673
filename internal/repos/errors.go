// Package repos holds the gorm-backed persistence for quotes and their items.
package repos

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleQuote means the quote version changed between read and write.
	ErrStaleQuote = errors.New("quote version is stale")
	// ErrDuplicateNumber means another quote already uses the quote number.
	ErrDuplicateNumber = errors.New("quote number already exists")
)
