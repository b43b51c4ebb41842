package classify

import (
	"io"
	"reflect"
	"sync"
)

// Classifier converts object graphs to and from the element type E of a
// Format. A Classifier holds no per-call state and is safe for concurrent
// use; the graphs passed to it are not.
type Classifier[E any] struct {
	format Format[E]
	opts   *Options
	self   reflect.Type

	fields sync.Map // reflect.Type -> fieldsEntry
}

type fieldsEntry struct {
	fields []*field
	err    error
}

// New creates a Classifier for format configured by opts.
func New[E any](format Format[E], opts ...Option) (*Classifier[E], error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(format, o)
}

// NewWithOptions creates a Classifier sharing an existing Options value.
func NewWithOptions[E any](format Format[E], o *Options) (*Classifier[E], error) {
	if format == nil {
		return nil, NewInvalidConfigurationError("format cannot be nil")
	}
	if o == nil {
		o = DefaultOptions()
	}
	if o.TypeOptions == nil {
		o.TypeOptions = make(map[reflect.Type]*TypeOptions)
	}
	if o.Substitutions == nil {
		o.Substitutions = make(map[string]*Substitution)
	}
	if o.Types == nil {
		o.Types = NewTypeRegistry()
	}
	if o.enums == nil {
		o.enums = make(map[reflect.Type]*enumInfo)
	}
	return &Classifier[E]{
		format: format,
		opts:   o,
		self:   reflect.TypeFor[E](),
	}, nil
}

func (c *Classifier[E]) Format() Format[E] { return c.format }

func (c *Classifier[E]) Options() *Options { return c.opts }

func (c *Classifier[E]) fieldsOf(t reflect.Type) ([]*field, error) {
	if e, ok := c.fields.Load(t); ok {
		entry := e.(fieldsEntry)
		return entry.fields, entry.err
	}
	fields, err := fieldsFor(c.opts, t)
	c.fields.Store(t, fieldsEntry{fields: fields, err: err})
	return fields, err
}

// Serialize converts value into an element. declared is the static type
// value is known by; the element records the runtime type when it differs.
// A nil declared type means the runtime type of value.
func (c *Classifier[E]) Serialize(value any, declared reflect.Type) (E, error) {
	s := &serializer[E]{
		c:    c,
		seen: make(map[identity]struct{}),
		refs: make(map[identity]int),
	}
	return s.run(&node[E]{v: reflect.ValueOf(value), declared: declared, hooks: true})
}

// Deserialize rebuilds a value of type declared from elem. parent is handed
// to the fields tagged as parent fields of the root object.
func (c *Classifier[E]) Deserialize(declared reflect.Type, elem E, parent any) (any, error) {
	if declared == nil {
		return nil, NewInvalidTargetError("declared type cannot be nil")
	}
	d := c.newDeserializer()
	v, err := d.run(&frame[E]{
		declared: declared,
		elem:     elem,
		parent:   reflect.ValueOf(parent),
		enforce:  c.opts.EnforceEnums,
	})
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// DeserializeIntoObject populates the value target points to from elem
// instead of constructing a new one. Fields absent from elem keep their
// current values. A null element leaves target untouched.
func (c *Classifier[E]) DeserializeIntoObject(elem E, target any, parent any) error {
	p := reflect.ValueOf(target)
	if !p.IsValid() || p.Kind() != reflect.Pointer || p.IsNil() {
		return NewInvalidTargetError("target must be a non-nil pointer")
	}
	if c.format.IsNull(elem) {
		return nil
	}
	if c.format.IsReference(elem) {
		return NewInvalidTargetError("cannot deserialize a reference into an object")
	}
	d := c.newDeserializer()
	v, err := d.run(&frame[E]{
		declared: p.Type(),
		elem:     elem,
		existing: p,
		parent:   reflect.ValueOf(parent),
		enforce:  c.opts.EnforceEnums,
	})
	if err != nil {
		return err
	}
	if v.IsValid() && v.Kind() == reflect.Pointer && !v.IsNil() && v.Pointer() != p.Pointer() {
		p.Elem().Set(v.Elem())
	}
	return nil
}

// Encode serializes value and writes the element to w.
func (c *Classifier[E]) Encode(w io.Writer, value any, declared reflect.Type) error {
	elem, err := c.Serialize(value, declared)
	if err != nil {
		return err
	}
	return c.format.Write(w, elem)
}

// Decode reads an element from r and deserializes it as declared.
func (c *Classifier[E]) Decode(r io.Reader, declared reflect.Type, parent any) (any, error) {
	elem, err := c.format.Read(r)
	if err != nil {
		return nil, err
	}
	return c.Deserialize(declared, elem, parent)
}

// DecodeInto reads an element from r and populates target from it.
func (c *Classifier[E]) DecodeInto(r io.Reader, target any, parent any) error {
	elem, err := c.format.Read(r)
	if err != nil {
		return err
	}
	return c.DeserializeIntoObject(elem, target, parent)
}
