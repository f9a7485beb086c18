package shared

import "errors"

var (
	// ErrNotFound indicates the referenced entity or assignment row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness constraint would be violated.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates a protection rule blocked the mutation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalid indicates a structurally invalid request, such as changing an immutable field.
	ErrInvalid = errors.New("invalid request")
)
