package classifyjson

import (
	"slices"
	"strconv"
)

// Kind is the JSON type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return "unknown"
	}
}

// Value is a JSON tree node. Dictionaries keep the order their keys were
// inserted in and numbers keep their literal, so a parsed document is
// written back unchanged. A nil *Value is treated as null.
type Value struct {
	kind Kind
	b    bool
	s    string // string contents or number literal
	list []*Value
	keys []string
	dict map[string]*Value
}

func Null() *Value { return &Value{kind: KindNull} }

func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }

func String(s string) *Value { return &Value{kind: KindString, s: s} }

func Int(i int64) *Value { return &Value{kind: KindNumber, s: strconv.FormatInt(i, 10)} }

func Uint(u uint64) *Value { return &Value{kind: KindNumber, s: strconv.FormatUint(u, 10)} }

func Float(f float64) *Value { return &Value{kind: KindNumber, s: strconv.FormatFloat(f, 'g', -1, 64)} }

// Number creates a number from its JSON literal. The literal is not validated.
func Number(literal string) *Value { return &Value{kind: KindNumber, s: literal} }

func List(items ...*Value) *Value {
	if items == nil {
		items = []*Value{}
	}
	return &Value{kind: KindList, list: items}
}

func NewDict() *Value {
	return &Value{kind: KindDict, dict: make(map[string]*Value)}
}

func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

func (v *Value) IsNull() bool { return v.Kind() == KindNull }

func (v *Value) AsBool() (bool, bool) {
	if v.Kind() != KindBool {
		return false, false
	}
	return v.b, true
}

func (v *Value) AsString() (string, bool) {
	if v.Kind() != KindString {
		return "", false
	}
	return v.s, true
}

// Literal returns the literal of a number.
func (v *Value) Literal() (string, bool) {
	if v.Kind() != KindNumber {
		return "", false
	}
	return v.s, true
}

func (v *Value) Int64() (int64, bool) {
	if v.Kind() != KindNumber {
		return 0, false
	}
	i, err := strconv.ParseInt(v.s, 10, 64)
	return i, err == nil
}

func (v *Value) Uint64() (uint64, bool) {
	if v.Kind() != KindNumber {
		return 0, false
	}
	u, err := strconv.ParseUint(v.s, 10, 64)
	return u, err == nil
}

func (v *Value) Float64() (float64, bool) {
	if v.Kind() != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.s, 64)
	return f, err == nil
}

// Items returns the items of a list.
func (v *Value) Items() []*Value {
	if v.Kind() != KindList {
		return nil
	}
	return v.list
}

// Append adds items to a list.
func (v *Value) Append(items ...*Value) {
	if v.Kind() == KindList {
		v.list = append(v.list, items...)
	}
}

// Len is the number of items of a list or keys of a dictionary.
func (v *Value) Len() int {
	switch v.Kind() {
	case KindList:
		return len(v.list)
	case KindDict:
		return len(v.keys)
	}
	return 0
}

// Keys returns the keys of a dictionary in order.
func (v *Value) Keys() []string {
	if v.Kind() != KindDict {
		return nil
	}
	return slices.Clone(v.keys)
}

func (v *Value) Get(key string) (*Value, bool) {
	if v.Kind() != KindDict {
		return nil, false
	}
	x, ok := v.dict[key]
	return x, ok
}

func (v *Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Set stores x under key. A new key goes last, an existing key keeps its
// position.
func (v *Value) Set(key string, x *Value) {
	if v.Kind() != KindDict {
		return
	}
	if _, ok := v.dict[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.dict[key] = x
}

// insert stores x under a new key at position i.
func (v *Value) insert(i int, key string, x *Value) {
	if _, ok := v.dict[key]; ok {
		v.dict[key] = x
		return
	}
	v.keys = slices.Insert(v.keys, i, key)
	v.dict[key] = x
}

func (v *Value) Delete(key string) {
	if v.Kind() != KindDict {
		return
	}
	if _, ok := v.dict[key]; !ok {
		return
	}
	delete(v.dict, key)
	v.keys = slices.DeleteFunc(v.keys, func(k string) bool { return k == key })
}

// Equal reports whether v and x hold the same tree. Dictionaries compare
// equal regardless of key order.
func (v *Value) Equal(x *Value) bool {
	if v.Kind() != x.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNull:
		return true
	case KindBool:
		return v.b == x.b
	case KindString:
		return v.s == x.s
	case KindNumber:
		if v.s == x.s {
			return true
		}
		a, okA := v.Float64()
		b, okB := x.Float64()
		return okA && okB && a == b
	case KindList:
		return slices.EqualFunc(v.list, x.list, (*Value).Equal)
	case KindDict:
		if len(v.keys) != len(x.keys) {
			return false
		}
		for k, a := range v.dict {
			b, ok := x.dict[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

func (v *Value) String() string {
	b, err := Marshal(v)
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return string(b)
}
