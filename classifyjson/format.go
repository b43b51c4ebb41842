package classifyjson

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hengadev/classify"
)

// Keys beginning with a colon are reserved for metadata. Object fields and
// dictionary keys that begin with a colon are written with a second one.
const (
	KeyType           = ":type"
	KeyFullType       = ":fulltype"
	KeyRef            = ":ref"
	KeyRefID          = ":refid"
	KeyValue          = ":value"
	KeyDeclaringTypes = ":declaringTypes"
)

// Format is the classify.Format of JSON trees. Metadata is stored in
// dictionaries under the reserved keys; a node that is not a dictionary is
// wrapped in one, under KeyValue, when it needs metadata.
type Format struct {
	indent bool
}

var _ classify.Format[*Value] = (*Format)(nil)

type FormatOption func(*Format)

// Compact makes Write produce JSON without indentation.
func Compact() FormatOption {
	return func(f *Format) { f.indent = false }
}

func NewFormat(opts ...FormatOption) *Format {
	f := &Format{indent: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Format) Read(r io.Reader) (*Value, error) {
	return ReadFrom(r)
}

func (f *Format) Write(w io.Writer, elem *Value) error {
	var data []byte
	var err error
	if f.indent {
		data, err = MarshalIndent(elem)
	} else {
		data, err = Marshal(elem)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func (f *Format) IsNull(elem *Value) bool {
	return elem.IsNull()
}

func (f *Format) GetSelfValue(elem *Value) (*Value, error) {
	return elem, nil
}

func (f *Format) GetSimpleValue(elem *Value) (any, error) {
	elem = unwrap(elem)
	switch elem.Kind() {
	case KindBool:
		return elem.b, nil
	case KindString:
		return elem.s, nil
	case KindNumber:
		if i, ok := elem.Int64(); ok {
			return i, nil
		}
		if u, ok := elem.Uint64(); ok {
			return u, nil
		}
		if x, ok := elem.Float64(); ok {
			return x, nil
		}
		return nil, classify.NewInvalidFormatError("a number", elem.s)
	case KindNull:
		return nil, nil
	}
	return nil, classify.NewInvalidFormatError("a simple value", elem.Kind())
}

func (f *Format) GetList(elem *Value, tupleSize int) ([]*Value, error) {
	elem = unwrap(elem)
	if elem.Kind() != KindList {
		return nil, classify.NewInvalidFormatError("a list", elem.Kind())
	}
	return elem.list, nil
}

func (f *Format) GetKeyValuePair(elem *Value) (*Value, *Value, error) {
	elem = unwrap(elem)
	if elem.Kind() != KindDict {
		return nil, nil, classify.NewInvalidFormatError("a key/value pair", elem.Kind())
	}
	key, okKey := elem.Get("key")
	val, okVal := elem.Get("value")
	if !okKey || !okVal {
		return nil, nil, classify.NewInvalidFormatError("a dictionary with 'key' and 'value'", elem.Keys())
	}
	return key, val, nil
}

func (f *Format) GetDictionary(elem *Value) ([]classify.DictEntry[*Value], error) {
	elem = unwrap(elem)
	if elem.Kind() != KindDict {
		return nil, classify.NewInvalidFormatError("a dictionary", elem.Kind())
	}
	entries := make([]classify.DictEntry[*Value], 0, len(elem.keys))
	for _, k := range elem.keys {
		if isMetaKey(k) {
			continue
		}
		entries = append(entries, classify.DictEntry[*Value]{Key: unescapeKey(k), Value: elem.dict[k]})
	}
	return entries, nil
}

func (f *Format) HasField(elem *Value, name, declaringType string) bool {
	_, ok := lookupField(elem, name, declaringType)
	return ok
}

func (f *Format) GetField(elem *Value, name, declaringType string) (*Value, error) {
	v, ok := lookupField(elem, name, declaringType)
	if !ok {
		return nil, classify.NewInvalidFormatError(fmt.Sprintf("a field named '%s'", name), elem.Keys())
	}
	return v, nil
}

// lookupField finds a field, disambiguated by KeyDeclaringTypes when the
// object has several fields of that name.
func lookupField(elem *Value, name, declaringType string) (*Value, bool) {
	if elem.Kind() != KindDict {
		return nil, false
	}
	key := escapeKey(name)
	v, ok := elem.Get(key)
	if !ok {
		return nil, false
	}
	decl, ok := elem.Get(KeyDeclaringTypes)
	if !ok {
		return v, true
	}
	types, ok := decl.Get(key)
	if !ok {
		return v, true
	}
	items := v.Items()
	for i, t := range types.Items() {
		if s, _ := t.AsString(); (declaringType == "" || s == declaringType) && i < len(items) {
			return items[i], true
		}
	}
	return nil, false
}

func (f *Format) GetRawData(elem *Value) ([]byte, error) {
	elem = unwrap(elem)
	s, ok := elem.AsString()
	if !ok {
		return nil, classify.NewInvalidFormatError("a base64 string", elem.Kind())
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classify.ErrInvalidFormat, err)
	}
	return b, nil
}

func (f *Format) IsReference(elem *Value) bool {
	return elem.Has(KeyRef)
}

func (f *Format) IsReferable(elem *Value) bool {
	return elem.Has(KeyRefID)
}

func (f *Format) GetReferenceID(elem *Value) (int, error) {
	v, ok := elem.Get(KeyRef)
	if !ok {
		v, ok = elem.Get(KeyRefID)
	}
	if !ok {
		return 0, classify.NewInvalidFormatError("a reference id", elem.Keys())
	}
	id, ok := v.Int64()
	if !ok {
		if s, isString := v.AsString(); isString {
			n, err := strconv.Atoi(s)
			if err != nil {
				return 0, fmt.Errorf("%w: reference id %q: %v", classify.ErrInvalidFormat, s, err)
			}
			return n, nil
		}
		return 0, classify.NewInvalidFormatError("an integer reference id", v)
	}
	return int(id), nil
}

func (f *Format) GetType(elem *Value) (string, bool, bool) {
	if v, ok := elem.Get(KeyFullType); ok {
		s, isString := v.AsString()
		return s, true, isString
	}
	if v, ok := elem.Get(KeyType); ok {
		s, isString := v.AsString()
		return s, false, isString
	}
	return "", false, false
}

func (f *Format) FormatNull() *Value {
	return Null()
}

func (f *Format) FormatSelfValue(value *Value) *Value {
	if value == nil {
		return Null()
	}
	return value
}

func (f *Format) FormatSimpleValue(value any) (*Value, error) {
	switch x := value.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case int64:
		return Int(x), nil
	case uint64:
		return Uint(x), nil
	case float32:
		return Number(strconv.FormatFloat(float64(x), 'g', -1, 32)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	}
	return nil, fmt.Errorf("%w: %T is not a simple value", classify.ErrInvalidFormat, value)
}

func (f *Format) FormatList(isTuple bool, items []*Value) *Value {
	return List(items...)
}

func (f *Format) FormatKeyValuePair(key, value *Value) *Value {
	d := NewDict()
	d.Set("key", key)
	d.Set("value", value)
	return d
}

func (f *Format) FormatDictionary(entries []classify.DictEntry[*Value]) *Value {
	d := NewDict()
	for _, e := range entries {
		d.Set(escapeKey(keyString(e.Key)), e.Value)
	}
	return d
}

func (f *Format) FormatObject(fields []classify.ObjectField[*Value]) *Value {
	d := NewDict()
	var decl *Value
	for _, fd := range fields {
		key := escapeKey(fd.Name)
		if fd.DeclaringType == "" {
			d.Set(key, fd.Value)
			continue
		}
		if decl == nil {
			decl = NewDict()
		}
		if _, ok := d.Get(key); !ok {
			d.Set(key, List())
			decl.Set(key, List())
		}
		list, _ := d.Get(key)
		list.Append(fd.Value)
		types, _ := decl.Get(key)
		types.Append(String(fd.DeclaringType))
	}
	if decl != nil {
		d.Set(KeyDeclaringTypes, decl)
	}
	return d
}

func (f *Format) FormatRawData(data []byte) *Value {
	return String(base64.StdEncoding.EncodeToString(data))
}

func (f *Format) FormatReference(id int) *Value {
	d := NewDict()
	d.Set(KeyRef, Int(int64(id)))
	return d
}

func (f *Format) FormatReferable(elem *Value, id int) *Value {
	return withMeta(elem, KeyRefID, Int(int64(id)))
}

func (f *Format) FormatWithType(elem *Value, typeName string, isFullName bool) *Value {
	key := KeyType
	if isFullName {
		key = KeyFullType
	}
	return withMeta(elem, key, String(typeName))
}

func (f *Format) MissingReferable(id int) error {
	return classify.NewDanglingReferenceError(id)
}

// withMeta stores a metadata entry on elem, after the metadata it already
// carries. Nodes other than dictionaries are wrapped first.
func withMeta(elem *Value, key string, v *Value) *Value {
	if elem.Kind() != KindDict {
		wrapped := NewDict()
		wrapped.Set(KeyValue, elem)
		elem = wrapped
	}
	i := 0
	for i < len(elem.keys) && isMetaKey(elem.keys[i]) && elem.keys[i] != KeyValue {
		i++
	}
	elem.insert(i, key, v)
	return elem
}

// unwrap returns the node wrapped under KeyValue, if any.
func unwrap(elem *Value) *Value {
	if v, ok := elem.Get(KeyValue); ok {
		return v
	}
	return elem
}

func isMetaKey(k string) bool {
	return strings.HasPrefix(k, ":") && !strings.HasPrefix(k, "::")
}

func escapeKey(k string) string {
	if strings.HasPrefix(k, ":") {
		return ":" + k
	}
	return k
}

func unescapeKey(k string) string {
	if strings.HasPrefix(k, "::") {
		return k[1:]
	}
	return k
}

func keyString(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case bool:
		return strconv.FormatBool(k)
	case int64:
		return strconv.FormatInt(k, 10)
	case uint64:
		return strconv.FormatUint(k, 10)
	case float32:
		return strconv.FormatFloat(float64(k), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(k, 'g', -1, 64)
	}
	return fmt.Sprint(key)
}
