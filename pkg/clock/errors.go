package clock

import "github.com/cockroachdb/errors"

// Error classes for clock and scheduling operations. Use errors.Is to check
// the class.
//
// Error Classification:
//   - ErrConfig: invalid clock parameters, fatal at construction
//   - ErrTemporalOrder: a timestamp lies in the past of the local clock; the
//     request is never deferred
//
// Invariant violations (notifying an empty deferred queue, translating on a
// stopped clock) are reported with errors.AssertionFailedf and detected with
// errors.IsAssertionFailure.
//
// An unresolved translation is not an error: ToGlobal reports it with
// ok == false.
var (
	// ErrConfig indicates a configuration error that prevents startup.
	ErrConfig = errors.New("clock configuration error")

	// ErrTemporalOrder indicates a local timestamp earlier than the
	// clock's current reading.
	ErrTemporalOrder = errors.New("temporal order violation")
)

// Configf wraps ErrConfig with a formatted detail message.
func Configf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}

// TemporalOrderf wraps ErrTemporalOrder with a formatted detail message.
func TemporalOrderf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTemporalOrder, format, args...)
}
