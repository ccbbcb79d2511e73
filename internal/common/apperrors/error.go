// Package apperrors provides chained application errors that carry an HTTP status
// code and an optional detail string. Errors are declared once as package-level
// templates and derived per failure, so callers can match on the template with
// errors.Is while still returning a failure-specific reason.
package apperrors

// Error is the application error interface. All derivation methods return a new
// Error and leave the receiver untouched, so templates can be shared safely.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // derives an error with a new message from the template
	Msg(msg string) Error                  // derives an error with a new message, wrapping the receiver
	MsgErr(msg string, err ...error) Error // like Msg, also wrapping the given errors
	Err(err ...error) Error                // keeps the message and wraps the given errors
	WithDetails(details string) Error      // attaches a human-readable reason
	Details() string                       // returns the attached reason, if any
	SetStatusCode(int) Error               // sets the HTTP status code
	StatusCode() int                       // returns the HTTP status code
	ErrorAll() string                      // message followed by every wrapped error
	UnwrapAll() []error                    // every wrapped error in order
}
