package classify

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// Type errors
	ErrUnresolvableType = errors.New("unresolvable type")
	ErrUnsupportedType  = errors.New("unsupported type")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrTypeConversion   = errors.New("type conversion failed")

	// Graph errors
	ErrDanglingReference = errors.New("dangling reference")
	ErrArityMismatch     = errors.New("arity mismatch")

	// Construction errors
	ErrConstruction = errors.New("construction failed")
	ErrSubstitution = errors.New("substitution failed")

	// Input errors
	ErrInvalidFormat        = errors.New("invalid format")
	ErrInvalidTarget        = errors.New("invalid target")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidTag           = errors.New("invalid struct tag")
)

func NewUnresolvableTypeError(name string) error {
	return fmt.Errorf("%w: no type named '%s' could be found", ErrUnresolvableType, name)
}

func NewUnsupportedTypeError(t reflect.Type) error {
	return fmt.Errorf("%w: %s cannot be serialized", ErrUnsupportedType, t)
}

func NewUnsupportedFieldError(owner reflect.Type, field string, t reflect.Type) error {
	return fmt.Errorf("%w: field '%s.%s' has type %s", ErrUnsupportedType, owner, field, t)
}

func NewTypeMismatchError(expected, actual reflect.Type) error {
	return fmt.Errorf("%w: %s is not assignable to %s", ErrTypeMismatch, actual, expected)
}

func NewTypeConversionError(value any, t reflect.Type, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: cannot convert %v (%T) to %s: %v", ErrTypeConversion, value, value, t, cause)
	}
	return fmt.Errorf("%w: cannot convert %v (%T) to %s", ErrTypeConversion, value, value, t)
}

func NewDanglingReferenceError(id int) error {
	return fmt.Errorf("%w: reference id %d has no matching referable element", ErrDanglingReference, id)
}

func NewArityMismatchError(t reflect.Type, want, got int) error {
	return fmt.Errorf("%w: %s needs %d elements, got %d", ErrArityMismatch, t, want, got)
}

func NewConstructionError(t reflect.Type, cause any) error {
	if err, ok := cause.(error); ok {
		return fmt.Errorf("%w: %s: %w", ErrConstruction, t, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrConstruction, t, cause)
}

func NewSubstitutionError(t reflect.Type, cause any) error {
	if err, ok := cause.(error); ok {
		return fmt.Errorf("%w: %s: %w", ErrSubstitution, t, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrSubstitution, t, cause)
}

func NewInvalidFormatError(expected string, elem any) error {
	return fmt.Errorf("%w: expected %s, got %v", ErrInvalidFormat, expected, elem)
}

func NewInvalidTargetError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidTarget, reason)
}

func NewInvalidConfigurationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, reason)
}

func NewInvalidTagError(owner reflect.Type, field, reason string) error {
	return fmt.Errorf("%w: field '%s.%s': %s", ErrInvalidTag, owner, field, reason)
}

// IsTypeError reports whether err stems from resolving, converting or
// classifying a type.
func IsTypeError(err error) bool {
	return errors.Is(err, ErrUnresolvableType) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrTypeConversion)
}

// IsReferenceError reports whether err stems from the shape of the object graph.
func IsReferenceError(err error) bool {
	return errors.Is(err, ErrDanglingReference) || errors.Is(err, ErrArityMismatch)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) || errors.Is(err, ErrInvalidTag)
}
