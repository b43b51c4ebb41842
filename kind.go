package classify

import (
	"encoding"
	"reflect"
	"sync"
)

// kind is the shape category a type falls into. Serialization and
// deserialization both dispatch on it.
type kind int

const (
	kindUnsupported kind = iota
	kindSelf
	kindSimple
	kindRaw
	kindPointer
	kindTuple
	kindKeyValue
	kindDictionary
	kindPairList
	kindCollection
	kindSlice
	kindArray
	kindStruct
	kindInterface
)

var kindNames = [...]string{
	kindUnsupported: "unsupported",
	kindSelf:        "self",
	kindSimple:      "simple",
	kindRaw:         "raw",
	kindPointer:     "pointer",
	kindTuple:       "tuple",
	kindKeyValue:    "keyvalue",
	kindDictionary:  "dictionary",
	kindPairList:    "pairlist",
	kindCollection:  "collection",
	kindSlice:       "slice",
	kindArray:       "array",
	kindStruct:      "struct",
	kindInterface:   "interface",
}

func (k kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// isContainer reports whether polymorphism is ignored for values declared
// with this kind.
func (k kind) isContainer() bool {
	switch k {
	case kindDictionary, kindPairList, kindCollection, kindSlice, kindArray:
		return true
	}
	return false
}

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	tupleType           = reflect.TypeFor[tupleMarker]()
	keyValueType        = reflect.TypeFor[keyValueMarker]()

	kindCache sync.Map // reflect.Type -> kind
)

// kindOf classifies t. self is the element type of the format in use.
func kindOf(t, self reflect.Type) kind {
	if t == self {
		return kindSelf
	}
	if k, ok := kindCache.Load(t); ok {
		return k.(kind)
	}
	k := classifyType(t)
	kindCache.Store(t, k)
	return k
}

func classifyType(t reflect.Type) kind {
	switch t.Kind() {
	case reflect.Pointer:
		return kindPointer
	case reflect.Interface:
		return kindInterface
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Uintptr:
		return kindUnsupported
	}
	if isText(t) {
		return kindSimple
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return kindSimple
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return kindRaw
	}
	if t.Implements(keyValueType) {
		return kindKeyValue
	}
	if t.Implements(tupleType) {
		return kindTuple
	}
	if t.Kind() == reflect.Map && classifyType(t.Key()) == kindSimple {
		return kindDictionary
	}
	if _, ok := collectionElem(t); ok {
		return kindCollection
	}
	switch t.Kind() {
	case reflect.Map:
		return kindPairList
	case reflect.Slice:
		return kindSlice
	case reflect.Array:
		return kindArray
	case reflect.Struct:
		return kindStruct
	}
	return kindUnsupported
}

// isText reports whether t round-trips through its text form.
func isText(t reflect.Type) bool {
	pt := reflect.PointerTo(t)
	return pt.Implements(textUnmarshalerType) &&
		(t.Implements(textMarshalerType) || pt.Implements(textMarshalerType))
}

// collectionElem reports the element type of a custom collection: a type
// whose pointer has the methods All() iter.Seq[T], Add(T) and Clear().
func collectionElem(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return nil, false
	}
	pt := reflect.PointerTo(t)
	all, ok := pt.MethodByName("All")
	if !ok || all.Type.NumIn() != 1 || all.Type.NumOut() != 1 {
		return nil, false
	}
	seq := all.Type.Out(0)
	if seq.Kind() != reflect.Func || seq.NumIn() != 1 || seq.NumOut() != 0 {
		return nil, false
	}
	yield := seq.In(0)
	if yield.Kind() != reflect.Func || yield.NumIn() != 1 || yield.NumOut() != 1 || yield.Out(0).Kind() != reflect.Bool {
		return nil, false
	}
	elem := yield.In(0)
	add, ok := pt.MethodByName("Add")
	if !ok || add.Type.NumIn() != 2 || add.Type.NumOut() != 0 || add.Type.In(1) != elem {
		return nil, false
	}
	clr, ok := pt.MethodByName("Clear")
	if !ok || clr.Type.NumIn() != 1 || clr.Type.NumOut() != 0 {
		return nil, false
	}
	return elem, true
}

// collectionItems drains the All iterator of a custom collection. v must be
// addressable.
func collectionItems(v reflect.Value) []reflect.Value {
	all := v.Addr().MethodByName("All").Call(nil)[0]
	yieldType := all.Type().In(0)
	var items []reflect.Value
	yield := reflect.MakeFunc(yieldType, func(args []reflect.Value) []reflect.Value {
		items = append(items, args[0])
		return []reflect.Value{reflect.ValueOf(true)}
	})
	all.Call([]reflect.Value{yield})
	return items
}

// tupleArity reports how many items a tuple type holds.
func tupleArity(t reflect.Type) int {
	return reflect.Zero(t).Interface().(tupleMarker).tupleArity()
}
