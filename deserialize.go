package classify

import (
	"fmt"
	"reflect"
)

// frame is one pending node of a deserialization. Frames are processed by
// an explicit stack instead of recursion: a frame is prepared, then each of
// its children is processed, then the frame finishes.
type frame[E any] struct {
	declared reflect.Type
	subst    *Substitution
	elem     E
	existing reflect.Value
	parent   reflect.Value
	enforce  bool
	// inner frames share their element with a pointer frame that has
	// already dealt with null, reference and referable markers.
	inner   bool
	tagDone bool

	rt       reflect.Type
	core     reflect.Value
	children []*frame[E]
	next     int
	finish   func() error

	raw      *lazyValue
	result   *lazyValue
	inPlace  bool
	rejected bool
}

type remembered struct {
	before *lazyValue
	after  *lazyValue
}

// deserializer holds the state of one Deserialize call.
type deserializer[E any] struct {
	c          *Classifier[E]
	types      *TypeRegistry
	remembered map[int]remembered
	referenced []int
	atEnd      []func() error
	hooks      []func() error
}

func (c *Classifier[E]) newDeserializer() *deserializer[E] {
	return &deserializer[E]{c: c, types: c.opts.Types.scope(), remembered: make(map[int]remembered)}
}

// run processes root and its descendants, then applies the deferred
// mutations in registration order, then the after-deserialize hooks.
func (d *deserializer[E]) run(root *frame[E]) (reflect.Value, error) {
	d.types.RegisterReachable(root.declared)
	if err := d.prepare(root); err != nil {
		return reflect.Value{}, err
	}
	stack := []*frame[E]{root}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if f.next < len(f.children) {
			child := f.children[f.next]
			f.next++
			if err := d.prepare(child); err != nil {
				return reflect.Value{}, err
			}
			stack = append(stack, child)
			continue
		}
		if f.finish != nil {
			if err := f.finish(); err != nil {
				return reflect.Value{}, err
			}
		}
		stack = stack[:len(stack)-1]
	}
	for _, id := range d.referenced {
		if _, ok := d.remembered[id]; !ok {
			return reflect.Value{}, d.c.format.MissingReferable(id)
		}
	}
	for _, fn := range d.atEnd {
		if err := fn(); err != nil {
			return reflect.Value{}, err
		}
	}
	for _, fn := range d.hooks {
		if err := fn(); err != nil {
			return reflect.Value{}, err
		}
	}
	return root.result.get()
}

func (d *deserializer[E]) prepare(f *frame[E]) error {
	c, fm := d.c, d.c.format
	if !f.inner {
		if fm.IsNull(f.elem) {
			f.result = eager(reflect.Zero(f.declared))
			return nil
		}
		if fm.IsReference(f.elem) {
			id, err := fm.GetReferenceID(f.elem)
			if err != nil {
				return err
			}
			d.referenced = append(d.referenced, id)
			f.result = d.reference(id, f.declared)
			return nil
		}
	}

	sub := f.subst
	if sub == nil {
		sub = c.opts.substitution(f.declared)
	}
	st := f.declared
	if sub != nil {
		st = sub.Type
		f.existing = reflect.Value{}
	}
	f.rt = st
	if !f.tagDone {
		if name, full, ok := fm.GetType(f.elem); ok {
			t, err := d.types.Lookup(name, full, st)
			if err != nil {
				return err
			}
			switch {
			case t.AssignableTo(st):
				d.types.RegisterReachable(t)
				f.rt = t
				f.tagDone = true
			case st.Kind() != reflect.Pointer:
				return NewTypeMismatchError(st, t)
			}
		}
	}

	refID := -1
	if !f.inner && fm.IsReferable(f.elem) {
		id, err := fm.GetReferenceID(f.elem)
		if err != nil {
			return err
		}
		refID = id
	}

	if err := d.prepareKind(f); err != nil {
		return err
	}
	c.beforeDeserialize(f.rt, f.core, f.elem)

	raw := f.raw
	declared := f.declared
	if sub != nil {
		f.result = lazy(func() (reflect.Value, error) {
			if f.rejected {
				return reflect.Zero(declared), nil
			}
			v, err := raw.get()
			if err != nil {
				return v, err
			}
			return substituteFrom(sub, v, declared)
		})
	} else {
		f.result = raw
	}
	if refID >= 0 {
		before := raw
		if f.core.IsValid() {
			before = eager(f.core)
		}
		d.remembered[refID] = remembered{before: before, after: f.result}
	}
	return nil
}

// reference resolves to the object remembered under id once the whole tree
// has been walked: the substituted object when it fits declared, else the
// object before substitution.
func (d *deserializer[E]) reference(id int, declared reflect.Type) *lazyValue {
	return lazy(func() (reflect.Value, error) {
		r, ok := d.remembered[id]
		if !ok {
			return reflect.Value{}, d.c.format.MissingReferable(id)
		}
		after, err := r.after.get()
		if err != nil {
			return after, err
		}
		if after.IsValid() && after.Type().AssignableTo(declared) {
			return after, nil
		}
		before, err := r.before.get()
		if err != nil {
			return before, err
		}
		if before.IsValid() && before.Type().AssignableTo(declared) {
			return before, nil
		}
		if !after.IsValid() {
			return reflect.Zero(declared), nil
		}
		return reflect.Value{}, NewTypeMismatchError(declared, after.Type())
	})
}

func (d *deserializer[E]) prepareKind(f *frame[E]) error {
	switch kindOf(f.rt, d.c.self) {
	case kindSelf:
		el, err := d.c.format.GetSelfValue(f.elem)
		if err != nil {
			return err
		}
		f.raw = eager(reflect.ValueOf(el))
	case kindSimple:
		return d.prepareSimple(f)
	case kindRaw:
		b, err := d.c.format.GetRawData(f.elem)
		if err != nil {
			return err
		}
		v := reflect.New(f.rt).Elem()
		v.SetBytes(b)
		f.raw = eager(v)
	case kindPointer:
		return d.preparePointer(f)
	case kindTuple:
		items, err := d.c.format.GetList(f.elem, tupleArity(f.rt))
		if err != nil {
			return err
		}
		if n := tupleArity(f.rt); len(items) < n {
			return NewArityMismatchError(f.rt, n, len(items))
		}
		return d.prepareFields(f, items)
	case kindKeyValue:
		key, val, err := d.c.format.GetKeyValuePair(f.elem)
		if err != nil {
			return err
		}
		return d.prepareFields(f, []E{key, val})
	case kindDictionary:
		return d.prepareDictionary(f)
	case kindPairList:
		return d.preparePairList(f)
	case kindCollection:
		return d.prepareCollection(f)
	case kindSlice:
		return d.prepareSlice(f)
	case kindArray:
		return d.prepareArray(f)
	case kindStruct:
		return d.prepareStruct(f)
	case kindInterface:
		return d.prepareInterface(f)
	default:
		return NewUnsupportedTypeError(f.rt)
	}
	return nil
}

func (d *deserializer[E]) prepareSimple(f *frame[E]) error {
	x, err := d.c.format.GetSimpleValue(f.elem)
	if err != nil {
		return err
	}
	v, err := fromSimple(x, f.rt)
	if err != nil {
		return err
	}
	if f.enforce && d.c.opts.enumRejects(v) {
		f.rejected = true
		v = reflect.Zero(f.rt)
	}
	f.raw = eager(v)
	d.queueHooks(f, v)
	return nil
}

func (d *deserializer[E]) preparePointer(f *frame[E]) error {
	var p reflect.Value
	if f.existing.IsValid() && f.existing.Type() == f.rt && !f.existing.IsNil() {
		p = f.existing
	} else {
		v, err := d.construct(f.rt.Elem())
		if err != nil {
			return err
		}
		p = v.Addr()
	}
	f.core = p
	inner := &frame[E]{
		declared: f.rt.Elem(),
		elem:     f.elem,
		existing: p.Elem(),
		parent:   f.parent,
		enforce:  f.enforce,
		inner:    true,
		tagDone:  f.tagDone,
	}
	f.children = []*frame[E]{inner}
	rt := f.rt
	f.raw = lazy(func() (reflect.Value, error) {
		if f.rejected {
			return reflect.Zero(rt), nil
		}
		return p, nil
	})
	f.finish = func() error {
		if inner.rejected {
			f.rejected = true
			return nil
		}
		if !inner.inPlace {
			d.atEnd = append(d.atEnd, func() error {
				v, err := inner.result.get()
				if err != nil {
					return err
				}
				p.Elem().Set(v)
				return nil
			})
		}
		return nil
	}
	return nil
}

// prepareFields handles tuples and key/value pairs: items[i] populates the
// i-th field.
func (d *deserializer[E]) prepareFields(f *frame[E], items []E) error {
	obj, inPlace, err := d.reuseOrConstruct(f)
	if err != nil {
		return err
	}
	f.core, f.inPlace = obj, inPlace
	n := obj.NumField()
	for i := 0; i < n && i < len(items); i++ {
		f.children = append(f.children, &frame[E]{
			declared: f.rt.Field(i).Type,
			elem:     items[i],
			existing: obj.Field(i),
			parent:   f.parent,
			enforce:  f.enforce,
		})
	}
	f.raw = eager(obj)
	f.finish = func() error {
		children := f.children
		d.atEnd = append(d.atEnd, func() error {
			for i, child := range children {
				if child.inPlace {
					continue
				}
				v, err := child.result.get()
				if err != nil {
					return err
				}
				obj.Field(i).Set(v)
			}
			return nil
		})
		d.queueHooks(f, obj)
		return nil
	}
	return nil
}

func (d *deserializer[E]) prepareDictionary(f *frame[E]) error {
	entries, err := d.c.format.GetDictionary(f.elem)
	if err != nil {
		return err
	}
	m := d.reuseMap(f, len(entries))
	keys := make([]reflect.Value, 0, len(entries))
	for _, e := range entries {
		key, err := fromSimple(e.Key, f.rt.Key())
		if err != nil {
			return err
		}
		if f.enforce && d.c.opts.enumRejects(key) {
			continue
		}
		keys = append(keys, key)
		f.children = append(f.children, &frame[E]{
			declared: f.rt.Elem(),
			elem:     e.Value,
			parent:   f.parent,
			enforce:  f.enforce,
		})
	}
	f.raw = eager(m)
	f.finish = func() error {
		children := f.children
		d.atEnd = append(d.atEnd, func() error {
			for i, child := range children {
				if child.rejected {
					continue
				}
				v, err := child.result.get()
				if err != nil {
					return err
				}
				m.SetMapIndex(keys[i], v)
			}
			return nil
		})
		d.queueHooks(f, m)
		return nil
	}
	return nil
}

func (d *deserializer[E]) preparePairList(f *frame[E]) error {
	items, err := d.c.format.GetList(f.elem, -1)
	if err != nil {
		return err
	}
	m := d.reuseMap(f, len(items))
	for _, item := range items {
		key, val, err := d.c.format.GetKeyValuePair(item)
		if err != nil {
			return err
		}
		f.children = append(f.children,
			&frame[E]{declared: f.rt.Key(), elem: key, parent: f.parent, enforce: f.enforce},
			&frame[E]{declared: f.rt.Elem(), elem: val, parent: f.parent, enforce: f.enforce},
		)
	}
	f.raw = eager(m)
	f.finish = func() error {
		children := f.children
		d.atEnd = append(d.atEnd, func() error {
			for i := 0; i+1 < len(children); i += 2 {
				kf, vf := children[i], children[i+1]
				if kf.rejected || vf.rejected {
					continue
				}
				k, err := kf.result.get()
				if err != nil {
					return err
				}
				v, err := vf.result.get()
				if err != nil {
					return err
				}
				m.SetMapIndex(k, v)
			}
			return nil
		})
		d.queueHooks(f, m)
		return nil
	}
	return nil
}

// reuseMap returns the existing map of the frame, cleared, or a new one.
func (d *deserializer[E]) reuseMap(f *frame[E], size int) reflect.Value {
	var m reflect.Value
	if f.existing.IsValid() && f.existing.Type() == f.rt && !f.existing.IsNil() {
		m = f.existing
		m.Clear()
		f.inPlace = true
	} else {
		m = reflect.MakeMapWithSize(f.rt, size)
	}
	f.core = m
	return m
}

func (d *deserializer[E]) prepareCollection(f *frame[E]) error {
	items, err := d.c.format.GetList(f.elem, -1)
	if err != nil {
		return err
	}
	elemType, _ := collectionElem(f.rt)
	obj, inPlace, err := d.reuseOrConstruct(f)
	if err != nil {
		return err
	}
	if inPlace {
		obj.Addr().MethodByName("Clear").Call(nil)
	}
	f.core, f.inPlace = obj, inPlace
	for _, item := range items {
		f.children = append(f.children, &frame[E]{
			declared: elemType,
			elem:     item,
			parent:   f.parent,
			enforce:  f.enforce,
		})
	}
	f.raw = eager(obj)
	f.finish = func() error {
		children := f.children
		d.atEnd = append(d.atEnd, func() error {
			add := obj.Addr().MethodByName("Add")
			for _, child := range children {
				if child.rejected {
					continue
				}
				v, err := child.result.get()
				if err != nil {
					return err
				}
				add.Call([]reflect.Value{v})
			}
			return nil
		})
		d.queueHooks(f, obj)
		return nil
	}
	return nil
}

func (d *deserializer[E]) prepareSlice(f *frame[E]) error {
	items, err := d.c.format.GetList(f.elem, -1)
	if err != nil {
		return err
	}
	n := len(items)
	var s reflect.Value
	if f.existing.IsValid() && f.existing.Type() == f.rt && !f.existing.IsNil() && f.existing.Len() == n {
		s = f.existing
	} else {
		s = reflect.MakeSlice(f.rt, n, n)
	}
	for i, item := range items {
		f.children = append(f.children, &frame[E]{
			declared: f.rt.Elem(),
			elem:     item,
			existing: s.Index(i),
			parent:   f.parent,
			enforce:  f.enforce,
		})
	}
	final := s
	f.raw = lazy(func() (reflect.Value, error) { return final, nil })
	f.finish = func() error {
		children := f.children
		d.atEnd = append(d.atEnd, func() error {
			kept := 0
			for i, child := range children {
				if child.rejected {
					continue
				}
				if !child.inPlace {
					v, err := child.result.get()
					if err != nil {
						return err
					}
					s.Index(i).Set(v)
				}
				kept++
			}
			if kept < len(children) {
				out := reflect.MakeSlice(f.rt, 0, kept)
				for i, child := range children {
					if !child.rejected {
						out = reflect.Append(out, s.Index(i))
					}
				}
				final = out
			}
			return nil
		})
		d.hooks = append(d.hooks, func() error {
			d.c.afterDeserialize(final, f.elem)
			return nil
		})
		return nil
	}
	return nil
}

func (d *deserializer[E]) prepareArray(f *frame[E]) error {
	items, err := d.c.format.GetList(f.elem, -1)
	if err != nil {
		return err
	}
	a, inPlace, err := d.reuseOrConstruct(f)
	if err != nil {
		return err
	}
	f.core, f.inPlace = a, inPlace
	for i := 0; i < len(items) && i < a.Len(); i++ {
		f.children = append(f.children, &frame[E]{
			declared: f.rt.Elem(),
			elem:     items[i],
			existing: a.Index(i),
			parent:   f.parent,
			enforce:  f.enforce,
		})
	}
	f.raw = eager(a)
	f.finish = func() error {
		children := f.children
		d.atEnd = append(d.atEnd, func() error {
			for i, child := range children {
				if child.inPlace && !child.rejected {
					continue
				}
				v, err := child.result.get()
				if err != nil {
					return err
				}
				a.Index(i).Set(v)
			}
			return nil
		})
		d.queueHooks(f, a)
		return nil
	}
	return nil
}

func (d *deserializer[E]) prepareStruct(f *frame[E]) error {
	c, fm := d.c, d.c.format
	obj, inPlace, err := d.reuseOrConstruct(f)
	if err != nil {
		return err
	}
	f.core, f.inPlace = obj, inPlace
	fields, err := c.fieldsOf(f.rt)
	if err != nil {
		return err
	}
	self := obj.Addr()
	var targets []reflect.Value
	for _, fd := range fields {
		if fd.ignore {
			continue
		}
		fv := fieldValue(obj, fd.index)
		if fd.parent {
			if parent := f.parent; parent.IsValid() && parent.Type().AssignableTo(fd.typ) {
				d.atEnd = append(d.atEnd, func() error {
					fv.Set(parent)
					return nil
				})
			}
			continue
		}
		declaring := fd.declaringName()
		if !fm.HasField(f.elem, fd.name, declaring) {
			continue
		}
		fe, err := fm.GetField(f.elem, fd.name, declaring)
		if err != nil {
			return err
		}
		if fd.notNull && fm.IsNull(fe) {
			continue
		}
		f.children = append(f.children, &frame[E]{
			declared: fd.typ,
			subst:    fd.subst,
			elem:     fe,
			existing: fv,
			parent:   self,
			enforce:  f.enforce || fd.enforceEnums,
		})
		targets = append(targets, fv)
	}
	f.raw = eager(obj)
	f.finish = func() error {
		children := f.children
		d.atEnd = append(d.atEnd, func() error {
			for i, child := range children {
				if child.inPlace && !child.rejected {
					continue
				}
				v, err := child.result.get()
				if err != nil {
					return fmt.Errorf("%s: %w", f.rt, err)
				}
				targets[i].Set(v)
			}
			return nil
		})
		d.queueHooks(f, obj)
		return nil
	}
	return nil
}

// prepareInterface handles an interface without a type tag: the element
// is taken as a plain scalar, or as itself when it fits.
func (d *deserializer[E]) prepareInterface(f *frame[E]) error {
	if x, err := d.c.format.GetSimpleValue(f.elem); err == nil && x != nil {
		if v := reflect.ValueOf(x); v.Type().AssignableTo(f.rt) {
			f.raw = eager(v)
			return nil
		}
	}
	if d.c.self.AssignableTo(f.rt) {
		f.raw = eager(reflect.ValueOf(f.elem))
		return nil
	}
	return fmt.Errorf("%w: element for %s carries no type", ErrUnresolvableType, f.rt)
}

func (d *deserializer[E]) queueHooks(f *frame[E], v reflect.Value) {
	elem := f.elem
	d.hooks = append(d.hooks, func() error {
		d.c.afterDeserialize(v, elem)
		return nil
	})
}

// reuseOrConstruct returns the existing value of the frame when it has
// exactly the serialized type, else a new addressable value.
func (d *deserializer[E]) reuseOrConstruct(f *frame[E]) (reflect.Value, bool, error) {
	if f.existing.IsValid() && f.existing.Type() == f.rt && f.existing.CanAddr() {
		return f.existing, true, nil
	}
	v, err := d.construct(f.rt)
	return v, false, err
}

// construct returns a new addressable value of t, built by the New function
// of its TypeOptions when there is one.
func (d *deserializer[E]) construct(t reflect.Type) (v reflect.Value, err error) {
	to := d.c.opts.typeOptions(t)
	if to == nil || to.New == nil {
		return reflect.New(t).Elem(), nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = NewConstructionError(t, r)
		}
	}()
	made := reflect.ValueOf(to.New())
	if !made.IsValid() {
		return reflect.Value{}, NewConstructionError(t, "New returned nil")
	}
	switch {
	case made.Type() == reflect.PointerTo(t) && !made.IsNil():
		return made.Elem(), nil
	case made.Type() == t:
		c := reflect.New(t).Elem()
		c.Set(made)
		return c, nil
	}
	return reflect.Value{}, NewConstructionError(t, fmt.Sprintf("New returned %s", made.Type()))
}

func substituteFrom(sub *Substitution, v reflect.Value, declared reflect.Type) (out reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewSubstitutionError(declared, r)
		}
	}()
	var in any
	if v.IsValid() {
		in = v.Interface()
	}
	x, err := sub.From(in)
	if err != nil {
		return reflect.Value{}, NewSubstitutionError(declared, err)
	}
	rv := reflect.ValueOf(x)
	if !rv.IsValid() {
		return reflect.Zero(declared), nil
	}
	if !rv.Type().AssignableTo(declared) {
		return reflect.Value{}, NewTypeMismatchError(declared, rv.Type())
	}
	return rv, nil
}
