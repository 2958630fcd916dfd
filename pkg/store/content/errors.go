package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// Implementations wrap these with the offending key:
//
//	return fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
//
// Callers test with errors.Is.

var (
	// ErrContentNotFound indicates nothing is stored at the key.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidKey indicates a malformed key: empty, absolute, or with
	// "." / ".." segments.
	ErrInvalidKey = errors.New("invalid content key")

	// ErrUnavailable indicates the backend cannot be reached.
	//
	// This is a transient error; retrying may succeed.
	ErrUnavailable = errors.New("storage unavailable")
)
