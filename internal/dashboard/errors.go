package dashboard

import "errors"

// Notification texts shown after each operation.
const (
	MsgAdded        = "Birthday added successfully!"
	MsgAddFailed    = "Failed to add birthday"
	MsgDeleted      = "Birthday deleted successfully"
	MsgDeleteFailed = "Failed to delete birthday"
	MsgFetchFailed  = "Failed to fetch birthdays"
)

// Kind classifies a failed gateway operation.
type Kind string

const (
	FetchFailed  Kind = "FetchFailed"
	SubmitFailed Kind = "SubmitFailed"
	DeleteFailed Kind = "DeleteFailed"
)

// Failure is returned to the awaiting caller when a gateway call fails. The
// user has already been notified by the time it is returned.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string { return string(f.Kind) + ": " + f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

var (
	// ErrIncomplete is returned by Submit when required draft fields are empty.
	ErrIncomplete = errors.New("draft is missing required fields")
	// ErrNotImage is returned when a selected photo file is not an image.
	ErrNotImage = errors.New("selected file is not an image")
	// ErrPhotoTooLarge is returned when a selected photo exceeds the size limit.
	ErrPhotoTooLarge = errors.New("selected photo is too large")
)

// IsFailure reports whether err is a gateway failure of the given kind.
func IsFailure(err error, kind Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
