package classify

import "reflect"

// BeforeSerializer is called on an object before it is serialized.
type BeforeSerializer interface {
	BeforeSerialize()
}

// AfterSerializer receives the final element produced for an object,
// reference id and type tag included.
type AfterSerializer[E any] interface {
	AfterSerialize(elem E)
}

// BeforeDeserializer is called with the element an object is about to be
// populated from, before any field is set.
type BeforeDeserializer[E any] interface {
	BeforeDeserialize(elem E)
}

// AfterDeserializer is called once the whole graph has been rebuilt.
type AfterDeserializer interface {
	AfterDeserialize()
}

// ElementAfterDeserializer is AfterDeserializer with access to the element
// the object was read from.
type ElementAfterDeserializer[E any] interface {
	AfterDeserialize(elem E)
}

// hookTarget is what hooks receive for v: a pointer when v is addressable.
func hookTarget(v reflect.Value) any {
	if v.Kind() != reflect.Pointer && v.CanAddr() {
		return v.Addr().Interface()
	}
	return v.Interface()
}

func (c *Classifier[E]) beforeSerialize(v reflect.Value) {
	if v.Kind() == reflect.Pointer {
		return
	}
	target := hookTarget(v)
	if h, ok := target.(BeforeSerializer); ok {
		h.BeforeSerialize()
	}
	if to := c.opts.typeOptions(v.Type()); to != nil && to.BeforeSerialize != nil {
		to.BeforeSerialize(target)
	}
}

func (c *Classifier[E]) afterSerialize(v reflect.Value, elem E) {
	if v.Kind() == reflect.Pointer {
		return
	}
	target := hookTarget(v)
	if h, ok := target.(AfterSerializer[E]); ok {
		h.AfterSerialize(elem)
	}
	if to := c.opts.typeOptions(v.Type()); to != nil && to.AfterSerialize != nil {
		to.AfterSerialize(target, elem)
	}
}

// beforeDeserialize runs the before hooks of type t. obj is the value being
// populated, or the zero Value when nothing is constructed up front.
func (c *Classifier[E]) beforeDeserialize(t reflect.Type, obj reflect.Value, elem E) {
	if t.Kind() == reflect.Pointer {
		return
	}
	if obj.IsValid() {
		if h, ok := hookTarget(obj).(BeforeDeserializer[E]); ok {
			h.BeforeDeserialize(elem)
		}
	}
	if to := c.opts.typeOptions(t); to != nil && to.BeforeDeserialize != nil {
		to.BeforeDeserialize(elem)
	}
}

func (c *Classifier[E]) afterDeserialize(v reflect.Value, elem E) {
	if !v.IsValid() || v.Kind() == reflect.Pointer {
		return
	}
	target := hookTarget(v)
	switch h := target.(type) {
	case AfterDeserializer:
		h.AfterDeserialize()
	case ElementAfterDeserializer[E]:
		h.AfterDeserialize(elem)
	}
	if to := c.opts.typeOptions(v.Type()); to != nil && to.AfterDeserialize != nil {
		to.AfterDeserialize(target, elem)
	}
}
