// Package classify converts object graphs to and from a generic tree form
// and back again, independently of the wire format the tree is written in.
//
// A Classifier is bound to a Format, the adapter that knows how to build and
// read the element type of one tree representation. The classifyjson
// package provides a JSON-shaped Format; any other representation only has
// to implement the Format interface.
//
// # Quick Start
//
//	type Config struct {
//	    Name    string
//	    Retries int               `classify:"retries,ignoreIfDefault"`
//	    Labels  map[string]string `classify:",ignoreIfEmpty"`
//	    Owner   *User
//	}
//
//	c, err := classify.New[*classifyjson.Value](classifyjson.NewFormat())
//	if err != nil {
//	    return err
//	}
//	elem, err := c.Serialize(cfg, reflect.TypeFor[Config]())
//	...
//	v, err := c.Deserialize(reflect.TypeFor[Config](), elem, nil)
//
// # What gets serialized
//
// Scalars (booleans, numbers, strings, complex numbers and types that
// implement encoding.TextMarshaler and encoding.TextUnmarshaler) become
// simple values. Maps with scalar keys become dictionaries, other maps
// become lists of key/value pairs. Slices, arrays and types with All, Add
// and Clear methods become lists. Tuple2 to Tuple8 and KeyValue become
// fixed-size lists and pairs. Every other struct becomes an object whose
// members are its fields, unexported fields included and embedded structs
// flattened.
//
// # References
//
// Pointers and maps keep their identity. A value reached a second time is
// written as a reference to the first occurrence, which is marked
// referable. Shared and cyclic graphs therefore survive a round trip.
//
// # Polymorphism
//
// When the runtime type of a value differs from the declared type, the
// element is tagged with the runtime type name. Types have to be known to
// the TypeRegistry to be resolved again: every type reachable from the
// declared type is resolvable during that call, others are registered with
// WithTypes. A call never adds types to the registry of its Options.
//
// # Struct tags
//
//	classify:"name,option,option=value"
//
// Supported options are ignore, ignoreIfDefault, ignoreIfEmpty,
// ignoreIfEqual=<literal>, enforceEnums, notNull, parent and
// substitute=<name of a registered Substitution>. A tag of "-" ignores the
// field.
//
// # Safety check
//
// Check walks a type graph ahead of time and reports the fields a
// Classifier could not handle. It is intended for tests and tooling.
package classify
