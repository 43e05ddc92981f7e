package document

import "errors"

var (
	// ErrRecordNotFound is returned when no record matches the id
	ErrRecordNotFound = errors.New("document not found")

	// ErrInvalidTransition is returned when a terminal record would be mutated
	ErrInvalidTransition = errors.New("document is not in processing status")

	// ErrInvalidPatch is returned for malformed creation or update parameters
	ErrInvalidPatch = errors.New("invalid document patch")

	// ErrPersistence matches every *PersistenceError
	ErrPersistence = errors.New("persistence error")
)

// PersistenceError wraps a backend failure of a gateway operation
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "failed to " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPersistence) true
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError creates a new persistence error
func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
