// Package cerr contains the coded errors a publication can return and
// helpers to classify them. Negative results from offer and claim map
// onto these errors; non-negative results are never errors.
package cerr

import "errors"

// Error is a publication status code with its meaning. Retriable
// errors are transient refusals; everything else is fatal to the
// current append.
type Error struct {
	// Message is the canonical name of the status code.
	Message string
	// Code is the negative value returned by the transport.
	Code int64
	// Retriable is true if the operation can be retried immediately.
	Retriable bool
	// Description is a longer explanation of the state.
	Description string
}

func (e *Error) Error() string { return e.Message + ": " + e.Description }

var (
	NotConnected = &Error{"NOT_CONNECTED", -1, false,
		"the publication is not connected to a subscriber"}
	BackPressured = &Error{"BACK_PRESSURED", -2, true,
		"the offer failed due to back pressure from subscribers"}
	AdminAction = &Error{"ADMIN_ACTION", -3, true,
		"the offer failed due to an administration action in the system"}
	Closed = &Error{"PUBLICATION_CLOSED", -4, false,
		"the publication has been closed"}
	MaxPositionExceeded = &Error{"MAX_POSITION_EXCEEDED", -5, false,
		"the publication reached its maximum possible position"}

	UnknownResult = &Error{"UNKNOWN", -128, false,
		"the transport returned a result code this client does not know"}
)

var codes = map[int64]*Error{
	NotConnected.Code:        NotConnected,
	BackPressured.Code:       BackPressured,
	AdminAction.Code:         AdminAction,
	Closed.Code:              Closed,
	MaxPositionExceeded.Code: MaxPositionExceeded,
}

// ErrorForCode returns the error for a transport result, or nil if the
// result is not an error. Unknown negative results map to
// UnknownResult.
func ErrorForCode(code int64) error {
	if code >= 0 {
		return nil
	}
	if err, exists := codes[code]; exists {
		return err
	}
	return UnknownResult
}

// IsRetriable returns whether the error is known and retriable.
func IsRetriable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retriable
}

// IsFatal returns whether the error is a non-nil, non-retriable
// transport error.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && !e.Retriable
}
