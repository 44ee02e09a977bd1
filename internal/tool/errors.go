package tool

import "errors"

// Failure taxonomy shared by the capability tools and the router. Parse-class
// failures (column/aggregate/expression problems) describe user-correctable
// input and may be surfaced verbatim; infrastructure failures (vision call,
// credentials) must not leak detail to the caller.
var (
	ErrNoArtifactBound       = errors.New("no artifact bound")
	ErrUnknownColumn         = errors.New("column not found")
	ErrUnsupportedAggregate  = errors.New("unsupported aggregate")
	ErrParse                 = errors.New("could not parse expression")
	ErrDivisionByZero        = errors.New("division by zero")
	ErrVisionCallFailed      = errors.New("vision call failed")
	ErrNoCapabilityAvailable = errors.New("no capability available")
	ErrMissingCredential     = errors.New("missing credential")
)

// Infrastructural reports whether err belongs to the infra class whose detail
// is logged but replaced with a generic message in responses.
func Infrastructural(err error) bool {
	return errors.Is(err, ErrVisionCallFailed) || errors.Is(err, ErrMissingCredential)
}
