package classify

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unsafe"
)

// TagName is the struct tag key read by Classifier.
const TagName = "classify"

// fieldTag is the parsed form of a classify struct tag.
type fieldTag struct {
	name            string
	ignore          bool
	ignoreIfDefault bool
	ignoreIfEmpty   bool
	enforceEnums    bool
	notNull         bool
	parent          bool
	hasEqual        bool
	ignoreIfEqual   string
	substitute      string
}

func parseFieldTag(tag string) (fieldTag, error) {
	var ft fieldTag
	if tag == "-" {
		ft.ignore = true
		return ft, nil
	}
	parts := strings.Split(tag, ",")
	ft.name = strings.TrimSpace(parts[0])
	for _, part := range parts[1:] {
		key, value, hasValue := strings.Cut(strings.TrimSpace(part), "=")
		switch key {
		case "":
		case "ignore":
			ft.ignore = true
		case "ignoreIfDefault":
			ft.ignoreIfDefault = true
		case "ignoreIfEmpty":
			ft.ignoreIfEmpty = true
		case "enforceEnums":
			ft.enforceEnums = true
		case "notNull":
			ft.notNull = true
		case "parent":
			ft.parent = true
		case "ignoreIfEqual":
			if !hasValue {
				return ft, fmt.Errorf("ignoreIfEqual needs a value")
			}
			ft.hasEqual = true
			ft.ignoreIfEqual = value
		case "substitute":
			if value == "" {
				return ft, fmt.Errorf("substitute needs a name")
			}
			ft.substitute = value
		default:
			return ft, fmt.Errorf("unknown option '%s'", key)
		}
	}
	return ft, nil
}

// structField is a field of a struct, embedded structs flattened, before
// any Options are applied.
type structField struct {
	index     []int
	goName    string
	typ       reflect.Type
	declaring reflect.Type
	tag       fieldTag
}

type structFieldsEntry struct {
	fields []structField
	err    error
}

var structFieldsCache sync.Map // reflect.Type -> structFieldsEntry

func structFields(t reflect.Type) ([]structField, error) {
	if e, ok := structFieldsCache.Load(t); ok {
		entry := e.(structFieldsEntry)
		return entry.fields, entry.err
	}
	var fields []structField
	err := collectFields(t, nil, &fields)
	structFieldsCache.Store(t, structFieldsEntry{fields: fields, err: err})
	return fields, err
}

func collectFields(t reflect.Type, prefix []int, out *[]structField) error {
	for i := range t.NumField() {
		sf := t.Field(i)
		if sf.Name == "_" {
			continue
		}
		ft, err := parseFieldTag(sf.Tag.Get(TagName))
		if err != nil {
			return NewInvalidTagError(t, sf.Name, err.Error())
		}
		index := append(append([]int(nil), prefix...), i)
		if sf.Anonymous && !ft.ignore && ft.name == "" && classifyType(sf.Type) == kindStruct {
			if err := collectFields(sf.Type, index, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, structField{
			index:     index,
			goName:    sf.Name,
			typ:       sf.Type,
			declaring: t,
			tag:       ft,
		})
	}
	return nil
}

// field is a structField with the Options of a Classifier applied.
type field struct {
	index           []int
	goName          string
	name            string
	typ             reflect.Type
	declaring       reflect.Type
	collides        bool
	ignore          bool
	ignoreIfDefault bool
	ignoreIfEmpty   bool
	enforceEnums    bool
	notNull         bool
	parent          bool
	equal           reflect.Value
	subst           *Substitution
	// qualified is set when another field of the same name is declared by a
	// different type with the same short name.
	qualified bool
}

func (f *field) declaringName() string {
	if !f.collides {
		return ""
	}
	if f.qualified {
		return f.declaring.PkgPath() + "." + f.declaring.Name()
	}
	return f.declaring.Name()
}

// fieldsFor builds the serializable fields of struct type t.
func fieldsFor(o *Options, t reflect.Type) ([]*field, error) {
	raw, err := structFields(t)
	if err != nil {
		return nil, err
	}
	fields := make([]*field, 0, len(raw))
	counts := make(map[string]int, len(raw))
	for _, sf := range raw {
		f := &field{
			index:           sf.index,
			goName:          sf.goName,
			name:            fieldName(sf.goName, sf.tag.name),
			typ:             sf.typ,
			declaring:       sf.declaring,
			ignore:          sf.tag.ignore,
			ignoreIfDefault: sf.tag.ignoreIfDefault,
			ignoreIfEmpty:   sf.tag.ignoreIfEmpty,
			enforceEnums:    sf.tag.enforceEnums,
			notNull:         sf.tag.notNull,
			parent:          sf.tag.parent,
		}
		if sf.tag.hasEqual {
			eq, err := fromSimple(sf.tag.ignoreIfEqual, sf.typ)
			if err != nil || classifyType(sf.typ) != kindSimple {
				return nil, NewInvalidTagError(sf.declaring, sf.goName, fmt.Sprintf("cannot compare %s with '%s'", sf.typ, sf.tag.ignoreIfEqual))
			}
			f.equal = eq
		}
		if sf.tag.substitute != "" {
			s, ok := o.Substitutions[sf.tag.substitute]
			if !ok {
				return nil, NewInvalidTagError(sf.declaring, sf.goName, fmt.Sprintf("no substitution named '%s'", sf.tag.substitute))
			}
			f.subst = s
		}
		if to := o.typeOptions(sf.declaring); to != nil {
			f.ignoreIfDefault = f.ignoreIfDefault || to.IgnoreIfDefault
			f.ignoreIfEmpty = f.ignoreIfEmpty || to.IgnoreIfEmpty
			if fo, ok := to.Fields[sf.goName]; ok {
				if err := f.apply(fo); err != nil {
					return nil, NewInvalidTagError(sf.declaring, sf.goName, err.Error())
				}
			}
		}
		if f.parent && f.typ.Kind() != reflect.Pointer && f.typ.Kind() != reflect.Interface {
			return nil, NewInvalidTagError(sf.declaring, sf.goName, "parent fields must be pointers or interfaces")
		}
		counts[f.name]++
		fields = append(fields, f)
	}
	type declKey struct{ field, declaring string }
	declarers := make(map[declKey]reflect.Type)
	ambiguous := make(map[declKey]bool)
	for _, f := range fields {
		f.collides = counts[f.name] > 1
		if !f.collides {
			continue
		}
		key := declKey{f.name, f.declaring.Name()}
		if t, ok := declarers[key]; ok && t != f.declaring {
			ambiguous[key] = true
		}
		declarers[key] = f.declaring
	}
	for _, f := range fields {
		f.qualified = f.collides && ambiguous[declKey{f.name, f.declaring.Name()}]
	}
	return fields, nil
}

func (f *field) apply(fo FieldOptions) error {
	if fo.Name != "" {
		f.name = fo.Name
	}
	f.ignore = f.ignore || fo.Ignore
	f.ignoreIfDefault = f.ignoreIfDefault || fo.IgnoreIfDefault
	f.ignoreIfEmpty = f.ignoreIfEmpty || fo.IgnoreIfEmpty
	f.enforceEnums = f.enforceEnums || fo.EnforceEnums
	f.notNull = f.notNull || fo.NotNull
	f.parent = f.parent || fo.Parent
	if fo.Substitution != nil {
		f.subst = fo.Substitution
	}
	if fo.IgnoreIfEqual != nil {
		eq := reflect.ValueOf(fo.IgnoreIfEqual)
		if !eq.Type().ConvertibleTo(f.typ) {
			return fmt.Errorf("cannot compare %s with %v", f.typ, fo.IgnoreIfEqual)
		}
		f.equal = eq.Convert(f.typ)
	}
	return nil
}

// fieldName derives the serialized name of a field: the tag name if any,
// else the Go name without one leading underscore.
func fieldName(goName, tagName string) string {
	if tagName != "" {
		return tagName
	}
	return strings.TrimPrefix(goName, "_")
}

// fieldValue returns the field at index inside the addressable struct v,
// made settable even when unexported.
func fieldValue(v reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		v = v.Field(i)
		if !v.CanSet() && v.CanAddr() {
			v = reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
		}
	}
	return v
}

// skip reports whether the field holding v is left out of the output. The
// rules are checked in order: ignore, ignore if equal, ignore if default,
// ignore if empty.
func (f *field) skip(v reflect.Value) bool {
	if f.ignore || f.parent {
		return true
	}
	if f.equal.IsValid() && reflect.DeepEqual(v.Interface(), f.equal.Interface()) {
		return true
	}
	if f.ignoreIfDefault && v.IsZero() {
		return true
	}
	if f.ignoreIfEmpty && isEmpty(v) {
		return true
	}
	return false
}

func isEmpty(v reflect.Value) bool {
	if _, ok := collectionElem(v.Type()); ok {
		return len(collectionItems(addressable(v))) == 0
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	}
	return false
}

// addressable returns v itself when it can be addressed, else an
// addressable copy.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}
