package decompress

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrConfiguration marks errors raised while opening an operator with
	// an invalid plan configuration.
	ErrConfiguration = errors.New("invalid decompression configuration")
	// ErrDataIntegrity marks compressed input that contradicts its own
	// metadata.
	ErrDataIntegrity = errors.New("compressed data integrity violation")
)

// classifiedError keeps the message of its cause and unwraps to both the
// cause and the class sentinel.
type classifiedError struct {
	cause error
	class error
}

func (e *classifiedError) Error() string   { return e.cause.Error() }
func (e *classifiedError) Unwrap() []error { return []error{e.cause, e.class} }

func configErrorf(format string, args ...interface{}) error {
	return &classifiedError{cause: errors.NewWithDepthf(1, format, args...), class: ErrConfiguration}
}

func integrityErrorf(format string, args ...interface{}) error {
	return &classifiedError{cause: errors.NewWithDepthf(1, format, args...), class: ErrDataIntegrity}
}

func markIntegrity(err error, format string, args ...interface{}) error {
	return &classifiedError{cause: errors.WrapWithDepthf(1, err, format, args...), class: ErrDataIntegrity}
}
