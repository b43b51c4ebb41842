package classify

import "reflect"

type enumInfo struct {
	flags   bool
	members map[uint64]struct{}
}

func (e *enumInfo) add(bits uint64) {
	e.members[bits] = struct{}{}
}

// valid reports whether bits is a declared member or, for flags enums, a
// bitwise union of declared members.
func (e *enumInfo) valid(bits uint64) bool {
	if _, ok := e.members[bits]; ok {
		return true
	}
	if !e.flags {
		return false
	}
	var acc uint64
	for m := range e.members {
		if m&^bits == 0 {
			acc |= m
		}
	}
	return acc == bits
}

func enumBits(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(v.Int())
	default:
		return v.Uint()
	}
}

// enumRejects reports whether v is an out of range value of a registered
// enum type.
func (o *Options) enumRejects(v reflect.Value) bool {
	info, ok := o.enums[v.Type()]
	if !ok {
		return false
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return !info.valid(enumBits(v))
	}
	return false
}
