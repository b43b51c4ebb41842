package classify

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// identity is the key of a value whose address matters: a pointer or a map.
type identity struct {
	t reflect.Type
	p uintptr
}

// serializer holds the state of one Serialize call.
type serializer[E any] struct {
	c      *Classifier[E]
	seen   map[identity]struct{}
	refs   map[identity]int
	nextID int
}

// node is one value of a serialization. The graph is walked with an explicit
// stack: every node is prepared in depth-first order, which assigns reference
// ids, then the elements are built bottom up. No element is built before the
// whole graph has been walked, so every reference id is known by then.
type node[E any] struct {
	v        reflect.Value
	declared reflect.Type
	f        *field
	hooks    bool
	// label is the Go field name errors below this node are prefixed with.
	label  string
	parent *node[E]

	children []*node[E]
	next     int
	build    func(elems []E) (E, error)

	done bool
	elem E
}

func (n *node[E]) child(v reflect.Value, declared reflect.Type) *node[E] {
	c := &node[E]{v: v, declared: declared, hooks: true, parent: n}
	n.children = append(n.children, c)
	return c
}

func (n *node[E]) finish(elem E) {
	n.elem = elem
	n.done = true
}

// run walks the graph below root, then builds its element.
func (s *serializer[E]) run(root *node[E]) (E, error) {
	var zero E
	if err := s.prepare(root); err != nil {
		return zero, err
	}
	stack := []*node[E]{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		if n.next < len(n.children) {
			child := n.children[n.next]
			n.next++
			if err := s.prepare(child); err != nil {
				return zero, labelled(child, err)
			}
			stack = append(stack, child)
			continue
		}
		stack = stack[:len(stack)-1]
	}

	stack = append(stack, root)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		if n.done {
			stack = stack[:len(stack)-1]
			continue
		}
		pending := false
		for i := len(n.children) - 1; i >= 0; i-- {
			if !n.children[i].done {
				stack = append(stack, n.children[i])
				pending = true
			}
		}
		if pending {
			continue
		}
		elems := make([]E, len(n.children))
		for i, child := range n.children {
			elems[i] = child.elem
		}
		elem, err := n.build(elems)
		if err != nil {
			return zero, err
		}
		n.finish(elem)
		n.children, n.build = nil, nil
		stack = stack[:len(stack)-1]
	}
	return root.elem, nil
}

// labelled prefixes err with the field names leading from the root to n.
func labelled[E any](n *node[E], err error) error {
	for ; n != nil; n = n.parent {
		if n.label != "" {
			err = fmt.Errorf("%s: %w", n.label, err)
		}
	}
	return err
}

// prepare handles null, substitution and references of n, then lays out its
// children. The hooks of a value behind a pointer run at the pointer level
// so that they see the final element.
func (s *serializer[E]) prepare(n *node[E]) error {
	c := s.c
	v := unwrapInterface(n.v)
	if isNil(v) {
		n.finish(c.format.FormatNull())
		return nil
	}
	declared := n.declared
	if declared == nil {
		declared = v.Type()
	}

	sub := c.opts.substitution(declared)
	if n.f != nil && n.f.subst != nil {
		sub = n.f.subst
	}
	if sub != nil {
		converted, err := substituteTo(sub, v)
		if err != nil {
			return err
		}
		declared = sub.Type
		v = unwrapInterface(converted)
		if isNil(v) {
			n.finish(c.format.FormatNull())
			return nil
		}
	}

	rt := v.Type()
	k := kindOf(rt, c.self)
	if k == kindUnsupported {
		return NewUnsupportedTypeError(rt)
	}

	var id identity
	tracked := false
	if k != kindSelf && hasIdentity(rt) {
		id = identity{t: rt, p: v.Pointer()}
		if _, ok := s.seen[id]; ok {
			n.finish(s.reference(id))
			return nil
		}
		s.seen[id] = struct{}{}
		tracked = true
	}

	switch k {
	case kindStruct, kindArray, kindCollection, kindTuple, kindKeyValue:
		v = addressable(v)
	}

	hv := v
	if k == kindPointer {
		hv = v.Elem()
	}
	hooks := n.hooks
	if hooks {
		c.beforeSerialize(hv)
	}

	build, err := s.prepareKind(n, v, rt, k)
	if err != nil {
		return err
	}

	var tagName string
	var tagFull, tagged bool
	if rt != declared && !kindOf(declared, c.self).isContainer() && k != kindSelf {
		tagName, tagFull = typeName(rt, declared)
		tagged = true
	}

	n.build = func(elems []E) (E, error) {
		elem, err := build(elems)
		if err != nil {
			return elem, err
		}
		if tagged {
			elem = c.format.FormatWithType(elem, tagName, tagFull)
		}
		if tracked {
			if ref, ok := s.refs[id]; ok {
				elem = c.format.FormatReferable(elem, ref)
			}
		}
		if hooks {
			c.afterSerialize(hv, elem)
		}
		return elem, nil
	}
	return nil
}

// reference returns a reference element for a value seen before, assigning
// it an id on first use.
func (s *serializer[E]) reference(id identity) E {
	n, ok := s.refs[id]
	if !ok {
		n = s.nextID
		s.nextID++
		s.refs[id] = n
	}
	return s.c.format.FormatReference(n)
}

// prepareKind adds the children of n and returns the function building the
// element of v from theirs.
func (s *serializer[E]) prepareKind(n *node[E], v reflect.Value, rt reflect.Type, k kind) (func([]E) (E, error), error) {
	fm := s.c.format
	switch k {
	case kindSelf:
		return leaf(fm.FormatSelfValue(v.Interface().(E))), nil

	case kindSimple:
		x, err := toSimple(v)
		if err != nil {
			return nil, err
		}
		elem, err := fm.FormatSimpleValue(x)
		if err != nil {
			return nil, err
		}
		return leaf(elem), nil

	case kindRaw:
		return leaf(fm.FormatRawData(append([]byte(nil), v.Bytes()...))), nil

	case kindPointer:
		n.child(v.Elem(), rt.Elem()).hooks = false
		return func(elems []E) (E, error) { return elems[0], nil }, nil

	case kindTuple:
		for i := range tupleArity(rt) {
			n.child(v.Field(i), rt.Field(i).Type)
		}
		return func(elems []E) (E, error) { return fm.FormatList(true, elems), nil }, nil

	case kindKeyValue:
		n.child(v.Field(0), rt.Field(0).Type)
		n.child(v.Field(1), rt.Field(1).Type)
		return func(elems []E) (E, error) { return fm.FormatKeyValuePair(elems[0], elems[1]), nil }, nil

	case kindDictionary:
		type entry struct {
			key any
			val reflect.Value
		}
		entries := make([]entry, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key, err := toSimple(iter.Key())
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry{key: key, val: iter.Value()})
		}
		slices.SortFunc(entries, func(a, b entry) int { return compareKeys(a.key, b.key) })
		for _, e := range entries {
			n.child(e.val, rt.Elem())
		}
		return func(elems []E) (E, error) {
			out := make([]DictEntry[E], len(entries))
			for i, e := range entries {
				out[i] = DictEntry[E]{Key: e.key, Value: elems[i]}
			}
			return fm.FormatDictionary(out), nil
		}, nil

	case kindPairList:
		iter := v.MapRange()
		for iter.Next() {
			n.child(iter.Key(), rt.Key())
			n.child(iter.Value(), rt.Elem())
		}
		return func(elems []E) (E, error) {
			out := make([]E, 0, len(elems)/2)
			for i := 0; i < len(elems); i += 2 {
				out = append(out, fm.FormatKeyValuePair(elems[i], elems[i+1]))
			}
			return fm.FormatList(false, out), nil
		}, nil

	case kindCollection:
		elemType, _ := collectionElem(rt)
		for _, item := range collectionItems(v) {
			n.child(item, elemType)
		}
		return func(elems []E) (E, error) { return fm.FormatList(false, elems), nil }, nil

	case kindSlice, kindArray:
		for i := range v.Len() {
			n.child(v.Index(i), rt.Elem())
		}
		return func(elems []E) (E, error) { return fm.FormatList(false, elems), nil }, nil

	case kindStruct:
		return s.prepareStruct(n, v, rt)
	}
	return nil, NewUnsupportedTypeError(rt)
}

func (s *serializer[E]) prepareStruct(n *node[E], v reflect.Value, rt reflect.Type) (func([]E) (E, error), error) {
	fields, err := s.c.fieldsOf(rt)
	if err != nil {
		return nil, err
	}
	members := make([]*field, 0, len(fields))
	for _, f := range fields {
		if !f.ignore && !f.parent && kindOf(f.typ, s.c.self) == kindUnsupported {
			return nil, NewUnsupportedFieldError(rt, f.goName, f.typ)
		}
		fv := fieldValue(v, f.index)
		if f.skip(fv) {
			continue
		}
		child := n.child(fv, f.typ)
		child.f = f
		child.label = f.goName
		members = append(members, f)
	}
	return func(elems []E) (E, error) {
		out := make([]ObjectField[E], len(members))
		for i, f := range members {
			out[i] = ObjectField[E]{Name: f.name, DeclaringType: f.declaringName(), Value: elems[i]}
		}
		return s.c.format.FormatObject(out), nil
	}, nil
}

func leaf[E any](elem E) func([]E) (E, error) {
	return func([]E) (E, error) { return elem, nil }
}

func unwrapInterface(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return v.IsNil()
	}
	return false
}

// hasIdentity reports whether values of t are tracked by address. Pointers
// to zero-sized values may share an address and are not.
func hasIdentity(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Map:
		return true
	case reflect.Pointer:
		return t.Elem().Size() != 0
	}
	return false
}

func substituteTo(sub *Substitution, v reflect.Value) (out reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewSubstitutionError(v.Type(), r)
		}
	}()
	x, err := sub.To(v.Interface())
	if err != nil {
		return reflect.Value{}, NewSubstitutionError(v.Type(), err)
	}
	return reflect.ValueOf(x), nil
}

func compareKeys(a, b any) int {
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case uint64:
		if y, ok := b.(uint64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case float32:
		if y, ok := b.(float32); ok {
			return cmp.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
