package classify

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/spf13/cast"
)

// toSimple turns a simple value into the scalar handed to the format:
// bool, int64, uint64, float32, float64 or string. Non-finite floats,
// complex numbers and text types become strings.
func toSimple(v reflect.Value) (any, error) {
	if isText(v.Type()) {
		m, ok := textMarshaler(v)
		if !ok {
			return nil, NewUnsupportedTypeError(v.Type())
		}
		b, err := m.MarshalText()
		if err != nil {
			return nil, NewTypeConversionError(v.Interface(), reflect.TypeFor[string](), err)
		}
		return string(b), nil
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.Float32:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 32), nil
		}
		return float32(f), nil
	case reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		}
		return f, nil
	case reflect.Complex64:
		return strconv.FormatComplex(v.Complex(), 'g', -1, 64), nil
	case reflect.Complex128:
		return strconv.FormatComplex(v.Complex(), 'g', -1, 128), nil
	case reflect.String:
		return v.String(), nil
	}
	return nil, NewUnsupportedTypeError(v.Type())
}

func textMarshaler(v reflect.Value) (encoding.TextMarshaler, bool) {
	if v.Type().Implements(textMarshalerType) {
		m, ok := v.Interface().(encoding.TextMarshaler)
		return m, ok
	}
	if !v.CanAddr() {
		c := reflect.New(v.Type()).Elem()
		c.Set(v)
		v = c
	}
	m, ok := v.Addr().Interface().(encoding.TextMarshaler)
	return m, ok
}

// fromSimple converts a scalar read from the format into a value of type t.
func fromSimple(raw any, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	if isText(t) {
		s, err := cast.ToStringE(raw)
		if err != nil {
			return out, NewTypeConversionError(raw, t, err)
		}
		if err := out.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return out, NewTypeConversionError(raw, t, err)
		}
		return out, nil
	}
	if err := checkExact(raw, t); err != nil {
		return out, NewTypeConversionError(raw, t, err)
	}
	switch t.Kind() {
	case reflect.Bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return out, NewTypeConversionError(raw, t, err)
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := cast.ToInt64E(raw)
		if err != nil {
			return out, NewTypeConversionError(raw, t, err)
		}
		if out.OverflowInt(i) {
			return out, NewTypeConversionError(raw, t, fmt.Errorf("value overflows %s", t))
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := cast.ToUint64E(raw)
		if err != nil {
			return out, NewTypeConversionError(raw, t, err)
		}
		if out.OverflowUint(u) {
			return out, NewTypeConversionError(raw, t, fmt.Errorf("value overflows %s", t))
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return out, NewTypeConversionError(raw, t, err)
		}
		out.SetFloat(f)
	case reflect.Complex64, reflect.Complex128:
		c, err := toComplex(raw, t.Bits())
		if err != nil {
			return out, NewTypeConversionError(raw, t, err)
		}
		out.SetComplex(c)
	case reflect.String:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return out, NewTypeConversionError(raw, t, err)
		}
		out.SetString(s)
	default:
		return out, NewUnsupportedTypeError(t)
	}
	return out, nil
}

// checkExact rejects the scalars that cast would convert with a loss:
// non-integral or out of range numbers for integer types, and anything but
// a bool or "true" and "false" for bools.
func checkExact(raw any, t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool:
		switch x := raw.(type) {
		case bool:
			return nil
		case string:
			if x == "true" || x == "false" {
				return nil
			}
		}
		return fmt.Errorf("%v is not a boolean", raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch x := raw.(type) {
		case uint64:
			if x > math.MaxInt64 {
				return fmt.Errorf("value overflows %s", t)
			}
		case uint:
			if uint64(x) > math.MaxInt64 {
				return fmt.Errorf("value overflows %s", t)
			}
		case float32:
			return checkIntegral(float64(x), t, -(1 << 63), 1<<63)
		case float64:
			return checkIntegral(x, t, -(1 << 63), 1<<63)
		case string:
			if _, err := strconv.ParseInt(x, 0, 64); err != nil {
				if f, err := strconv.ParseFloat(x, 64); err == nil {
					return checkIntegral(f, t, -(1 << 63), 1<<63)
				}
			}
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch x := raw.(type) {
		case float32:
			return checkIntegral(float64(x), t, 0, 1<<64)
		case float64:
			return checkIntegral(x, t, 0, 1<<64)
		case string:
			if _, err := strconv.ParseUint(x, 0, 64); err != nil {
				if f, err := strconv.ParseFloat(x, 64); err == nil {
					return checkIntegral(f, t, 0, 1<<64)
				}
			}
		}
	}
	return nil
}

// checkIntegral reports an error unless f is a whole number in [lo, hi).
func checkIntegral(f float64, t reflect.Type, lo, hi float64) error {
	if f != math.Trunc(f) {
		return fmt.Errorf("%v has a fractional part", f)
	}
	if f < lo || f >= hi {
		return fmt.Errorf("value overflows %s", t)
	}
	return nil
}

func toComplex(raw any, bits int) (complex128, error) {
	if s, ok := raw.(string); ok {
		return strconv.ParseComplex(s, bits)
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, err
	}
	return complex(f, 0), nil
}
