package physics

import (
	"errors"
	"fmt"
)

var (
	// ErrNumericalInstability is returned by IntegrateVelocity when the
	// accumulated acceleration exceeds the stability threshold. The caller
	// removes the body; the value is never clamped.
	ErrNumericalInstability = errors.New("physics: extreme acceleration")

	// ErrParse marks every failure to decode a textual Body or SimMetaData.
	ErrParse = errors.New("physics: parse error")

	// ErrInvalidMetadata indicates NaN, Inf or negative simulation constants.
	ErrInvalidMetadata = errors.New("physics: invalid metadata")
)

// ParseError describes a malformed textual form of a wire type.
type ParseError struct {
	Type string // "Body" or "SimMetaData"
	Key  string // offending key, empty when the failure is structural
	Err  error
}

func (e *ParseError) Error() string {
	if e.Key != "" && e.Err == nil {
		return fmt.Sprintf("invalid string: the parameter '%s' does not exist on type '%s'", e.Key, e.Type)
	}
	if e.Key != "" {
		return fmt.Sprintf("invalid %s parameter '%s': %v", e.Type, e.Key, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", e.Type, e.Err)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}
