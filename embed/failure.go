package embed

import "fmt"

// FailureKind classifies why an embedding could not be produced.
type FailureKind int

const (
	// FailureTransient means the service kept failing until the retry budget
	// ran out, or the run was canceled while waiting.
	FailureTransient FailureKind = iota + 1
	// FailureValidation means the input or the returned vector was unusable.
	// Validation failures are never retried.
	FailureValidation
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailureValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Failure is the typed error carried by a failed Result.
type Failure struct {
	Kind     FailureKind
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("embedding failed (%s, %d attempts): %v", f.Kind, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
