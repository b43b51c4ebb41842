package classify

import (
	"fmt"
	"reflect"
)

// lazyValue is a deserialized value that may only be available once the
// whole tree has been walked.
type lazyValue struct {
	fn      func() (reflect.Value, error)
	running bool
	done    bool
	v       reflect.Value
	err     error
}

func lazy(fn func() (reflect.Value, error)) *lazyValue {
	return &lazyValue{fn: fn}
}

func eager(v reflect.Value) *lazyValue {
	return &lazyValue{done: true, v: v}
}

func (l *lazyValue) get() (reflect.Value, error) {
	if l.done {
		return l.v, l.err
	}
	if l.running {
		return reflect.Value{}, fmt.Errorf("%w: value depends on itself", ErrSubstitution)
	}
	l.running = true
	l.v, l.err = l.fn()
	l.running = false
	l.done = true
	l.fn = nil
	return l.v, l.err
}
