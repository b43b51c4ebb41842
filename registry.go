package classify

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

var builtinTypes = map[string]reflect.Type{
	"bool":       reflect.TypeFor[bool](),
	"string":     reflect.TypeFor[string](),
	"int":        reflect.TypeFor[int](),
	"int8":       reflect.TypeFor[int8](),
	"int16":      reflect.TypeFor[int16](),
	"int32":      reflect.TypeFor[int32](),
	"int64":      reflect.TypeFor[int64](),
	"uint":       reflect.TypeFor[uint](),
	"uint8":      reflect.TypeFor[uint8](),
	"uint16":     reflect.TypeFor[uint16](),
	"uint32":     reflect.TypeFor[uint32](),
	"uint64":     reflect.TypeFor[uint64](),
	"float32":    reflect.TypeFor[float32](),
	"float64":    reflect.TypeFor[float64](),
	"complex64":  reflect.TypeFor[complex64](),
	"complex128": reflect.TypeFor[complex128](),
	"byte":       reflect.TypeFor[byte](),
	"rune":       reflect.TypeFor[rune](),
	"any":        reflect.TypeFor[any](),
	"error":      reflect.TypeFor[error](),
}

// TypeRegistry maps the names written into type tags back to types. Named
// types are known by their full name (import path and type name) and by
// their short name.
type TypeRegistry struct {
	mu      sync.RWMutex
	byFull  map[string]reflect.Type
	byShort map[string][]reflect.Type
	walked  map[reflect.Type]struct{}
	// base is also searched by a scope. It is only ever read.
	base *TypeRegistry
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byFull:  make(map[string]reflect.Type),
		byShort: make(map[string][]reflect.Type),
		walked:  make(map[reflect.Type]struct{}),
	}
}

// scope returns an empty registry resolving names against its own types and
// those of r. What is registered into a scope never reaches r, so a short
// name resolves the same way in every call sharing r.
func (r *TypeRegistry) scope() *TypeRegistry {
	s := NewTypeRegistry()
	s.base = r
	return s
}

// Register makes the named types t is built from resolvable.
func (r *TypeRegistry) Register(types ...reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		r.register(t)
	}
}

func (r *TypeRegistry) register(t reflect.Type) {
	for {
		if t.Name() != "" && t.PkgPath() != "" {
			full := t.PkgPath() + "." + t.Name()
			if _, ok := r.full(full); !ok {
				r.byFull[full] = t
				r.byShort[t.Name()] = append(r.byShort[t.Name()], t)
			}
			return
		}
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		case reflect.Map:
			r.register(t.Key())
			t = t.Elem()
		default:
			return
		}
	}
}

// RegisterReachable registers t and every type reachable through its
// fields and elements.
func (r *TypeRegistry) RegisterReachable(t reflect.Type) {
	r.mu.RLock()
	_, done := r.walked[t]
	r.mu.RUnlock()
	if done {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.walk(t)
}

func (r *TypeRegistry) walk(t reflect.Type) {
	if _, ok := r.walked[t]; ok {
		return
	}
	r.walked[t] = struct{}{}
	r.register(t)
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array:
		r.walk(t.Elem())
	case reflect.Map:
		r.walk(t.Key())
		r.walk(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			r.walk(t.Field(i).Type)
		}
	}
}

// Lookup resolves a type tag. Short names are searched in the package of
// relativeTo first, then among every registered type.
func (r *TypeRegistry) Lookup(name string, isFullName bool, relativeTo reflect.Type) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pkg := leafPackage(relativeTo)
	t, rest, err := parseTypeName(name, func(leaf string) (reflect.Type, error) {
		return r.resolveLeaf(leaf, isFullName, pkg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w (in '%s')", err, name)
	}
	if rest != "" {
		return nil, NewUnresolvableTypeError(name)
	}
	return t, nil
}

func (r *TypeRegistry) resolveLeaf(leaf string, isFullName bool, pkg string) (reflect.Type, error) {
	if t, ok := builtinTypes[leaf]; ok {
		return t, nil
	}
	if isFullName {
		if t, ok := r.full(leaf); ok {
			return t, nil
		}
		// the type may have moved to another package
		return r.uniqueShort(shortName(leaf))
	}
	if pkg != "" {
		if t, ok := r.full(pkg + "." + leaf); ok {
			return t, nil
		}
	}
	return r.uniqueShort(leaf)
}

// full finds a type by full name. The caller holds r.mu.
func (r *TypeRegistry) full(name string) (reflect.Type, bool) {
	if t, ok := r.byFull[name]; ok {
		return t, true
	}
	if r.base == nil {
		return nil, false
	}
	r.base.mu.RLock()
	defer r.base.mu.RUnlock()
	return r.base.full(name)
}

// short lists the types with the given short name. The caller holds r.mu.
func (r *TypeRegistry) short(name string) []reflect.Type {
	if r.base == nil {
		return r.byShort[name]
	}
	r.base.mu.RLock()
	out := append([]reflect.Type(nil), r.base.short(name)...)
	r.base.mu.RUnlock()
	return append(out, r.byShort[name]...)
}

func (r *TypeRegistry) uniqueShort(name string) (reflect.Type, error) {
	candidates := r.short(name)
	switch len(candidates) {
	case 0:
		return nil, NewUnresolvableTypeError(name)
	case 1:
		return candidates[0], nil
	default:
		return nil, fmt.Errorf("%w: short name '%s' is ambiguous among %d types", ErrUnresolvableType, name, len(candidates))
	}
}

// shortName strips the import path from a full leaf name.
func shortName(leaf string) string {
	head := leaf
	if i := strings.IndexByte(leaf, '['); i >= 0 {
		head = leaf[:i]
	}
	if i := strings.LastIndexByte(head, '.'); i >= 0 {
		return leaf[i+1:]
	}
	return leaf
}

// parseTypeName parses the composite syntax of type tags: *T, []T, [N]T and
// map[K]V. Anything else is a leaf handed to resolve.
func parseTypeName(s string, resolve func(string) (reflect.Type, error)) (reflect.Type, string, error) {
	switch {
	case strings.HasPrefix(s, "*"):
		elem, rest, err := parseTypeName(s[1:], resolve)
		if err != nil {
			return nil, "", err
		}
		return reflect.PointerTo(elem), rest, nil
	case strings.HasPrefix(s, "[]"):
		elem, rest, err := parseTypeName(s[2:], resolve)
		if err != nil {
			return nil, "", err
		}
		return reflect.SliceOf(elem), rest, nil
	case strings.HasPrefix(s, "["):
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, "", NewUnresolvableTypeError(s)
		}
		n, err := strconv.Atoi(s[1:end])
		if err != nil || n < 0 {
			return nil, "", NewUnresolvableTypeError(s)
		}
		elem, rest, err := parseTypeName(s[end+1:], resolve)
		if err != nil {
			return nil, "", err
		}
		return reflect.ArrayOf(n, elem), rest, nil
	case strings.HasPrefix(s, "map["):
		key, rest, err := parseTypeName(s[4:], resolve)
		if err != nil {
			return nil, "", err
		}
		if !strings.HasPrefix(rest, "]") {
			return nil, "", NewUnresolvableTypeError(s)
		}
		if !key.Comparable() {
			return nil, "", fmt.Errorf("%w: map key %s is not comparable", ErrUnresolvableType, key)
		}
		elem, rest, err := parseTypeName(rest[1:], resolve)
		if err != nil {
			return nil, "", err
		}
		return reflect.MapOf(key, elem), rest, nil
	}
	depth, i := 0, 0
loop:
	for ; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				break loop
			}
			depth--
		}
	}
	if i == 0 {
		return nil, "", NewUnresolvableTypeError(s)
	}
	t, err := resolve(s[:i])
	if err != nil {
		return nil, "", err
	}
	return t, s[i:], nil
}

// typeName formats the tag for t as seen from a value declared as
// relativeTo. The short form is used when every named type involved is
// builtin or non-generic and lives in the package of relativeTo.
func typeName(t, relativeTo reflect.Type) (string, bool) {
	if isShortNameable(t, leafPackage(relativeTo)) {
		return formatTypeName(t, false), false
	}
	return formatTypeName(t, true), true
}

func isShortNameable(t reflect.Type, pkg string) bool {
	for {
		if t.Name() != "" {
			if t.PkgPath() == "" {
				return true
			}
			return pkg != "" && t.PkgPath() == pkg && !strings.Contains(t.Name(), "[")
		}
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		case reflect.Map:
			if !isShortNameable(t.Key(), pkg) {
				return false
			}
			t = t.Elem()
		default:
			return true
		}
	}
}

func formatTypeName(t reflect.Type, full bool) string {
	if t.Name() != "" {
		if full && t.PkgPath() != "" {
			return t.PkgPath() + "." + t.Name()
		}
		return t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + formatTypeName(t.Elem(), full)
	case reflect.Slice:
		return "[]" + formatTypeName(t.Elem(), full)
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + formatTypeName(t.Elem(), full)
	case reflect.Map:
		return "map[" + formatTypeName(t.Key(), full) + "]" + formatTypeName(t.Elem(), full)
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return "any"
		}
	}
	return t.String()
}

// leafPackage is the package of the named type t is built from.
func leafPackage(t reflect.Type) string {
	for t != nil {
		if t.Name() != "" {
			return t.PkgPath()
		}
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
			t = t.Elem()
		default:
			return ""
		}
	}
	return ""
}

// Implementations lists the registered types, or pointers to them, that
// implement the interface iface.
func (r *TypeRegistry) Implementations(iface reflect.Type) []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []reflect.Type
	if r.base != nil {
		out = r.base.Implementations(iface)
	}
	for _, t := range r.byFull {
		switch {
		case t.Implements(iface):
			out = append(out, t)
		case reflect.PointerTo(t).Implements(iface):
			out = append(out, reflect.PointerTo(t))
		}
	}
	return out
}
