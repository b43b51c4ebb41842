package classify

import "io"

// DictEntry is one entry of a dictionary node. Key holds a plain scalar
// (bool, int64, uint64, float32, float64 or string), never an element.
type DictEntry[E any] struct {
	Key   any
	Value E
}

// ObjectField is one field of an object node. DeclaringType is empty unless
// several fields of the object share Name. It holds the short name of the
// type declaring the field, prefixed with its package path when two of
// those types share a short name.
type ObjectField[E any] struct {
	Name          string
	DeclaringType string
	Value         E
}

// Format is implemented by every concrete wire format. The engine only ever
// touches elements through it.
type Format[E any] interface {
	Read(r io.Reader) (E, error)
	Write(w io.Writer, elem E) error

	IsNull(elem E) bool
	GetSelfValue(elem E) (E, error)
	GetSimpleValue(elem E) (any, error)
	// GetList returns the items of a list node. tupleSize is the arity
	// expected by a tuple type, or -1 for ordinary collections.
	GetList(elem E, tupleSize int) ([]E, error)
	GetKeyValuePair(elem E) (key, value E, err error)
	GetDictionary(elem E) ([]DictEntry[E], error)
	HasField(elem E, name, declaringType string) bool
	GetField(elem E, name, declaringType string) (E, error)
	GetRawData(elem E) ([]byte, error)
	IsReference(elem E) bool
	IsReferable(elem E) bool
	GetReferenceID(elem E) (int, error)
	GetType(elem E) (name string, isFullName bool, ok bool)

	FormatNull() E
	FormatSelfValue(value E) E
	FormatSimpleValue(value any) (E, error)
	FormatList(isTuple bool, items []E) E
	FormatKeyValuePair(key, value E) E
	FormatDictionary(entries []DictEntry[E]) E
	FormatObject(fields []ObjectField[E]) E
	FormatRawData(data []byte) E
	FormatReference(id int) E
	FormatReferable(elem E, id int) E
	FormatWithType(elem E, typeName string, isFullName bool) E

	// MissingReferable builds the error returned when a reference id has
	// no referable element anywhere in the tree.
	MissingReferable(id int) error
}
