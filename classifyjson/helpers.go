package classifyjson

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"

	"github.com/hengadev/classify"
)

// NewClassifier creates a Classifier for JSON trees.
func NewClassifier(opts ...classify.Option) (*classify.Classifier[*Value], error) {
	return classify.New[*Value](NewFormat(), opts...)
}

// Serialize converts v, declared as T, into a JSON tree.
func Serialize[T any](v T, opts ...classify.Option) (*Value, error) {
	c, err := NewClassifier(opts...)
	if err != nil {
		return nil, err
	}
	return c.Serialize(v, reflect.TypeFor[T]())
}

// Deserialize rebuilds a T from a JSON tree.
func Deserialize[T any](tree *Value, opts ...classify.Option) (T, error) {
	var zero T
	c, err := NewClassifier(opts...)
	if err != nil {
		return zero, err
	}
	v, err := c.Deserialize(reflect.TypeFor[T](), tree, nil)
	if err != nil || v == nil {
		return zero, err
	}
	return v.(T), nil
}

// DeserializeInto populates the value target points to from a JSON tree.
func DeserializeInto(tree *Value, target any, opts ...classify.Option) error {
	c, err := NewClassifier(opts...)
	if err != nil {
		return err
	}
	return c.DeserializeIntoObject(tree, target, nil)
}

// SerializeToFile writes v as JSON to path. Relative paths are resolved
// against the base directory of the options, when one is set.
func SerializeToFile[T any](path string, v T, opts ...classify.Option) error {
	c, err := NewClassifier(opts...)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf, v, reflect.TypeFor[T]()); err != nil {
		return err
	}
	path = resolve(c.Options(), path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// DeserializeFile reads a T from the JSON file at path.
func DeserializeFile[T any](path string, opts ...classify.Option) (T, error) {
	var zero T
	c, err := NewClassifier(opts...)
	if err != nil {
		return zero, err
	}
	f, err := os.Open(resolve(c.Options(), path))
	if err != nil {
		return zero, err
	}
	defer f.Close()
	v, err := c.Decode(f, reflect.TypeFor[T](), nil)
	if err != nil || v == nil {
		return zero, err
	}
	return v.(T), nil
}

// DeserializeFileInto populates the value target points to from the JSON
// file at path.
func DeserializeFileInto(path string, target any, opts ...classify.Option) error {
	c, err := NewClassifier(opts...)
	if err != nil {
		return err
	}
	f, err := os.Open(resolve(c.Options(), path))
	if err != nil {
		return err
	}
	defer f.Close()
	return c.DecodeInto(f, target, nil)
}

func resolve(o *classify.Options, path string) string {
	if filepath.IsAbs(path) || o.BaseDir == "" {
		return path
	}
	return filepath.Join(o.BaseDir, path)
}

// writeFileAtomic replaces path so that readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
