package classify

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"golang.org/x/exp/constraints"
)

// Options configures a Classifier. Once a Classifier has been built from it,
// an Options value must not be modified.
type Options struct {
	// BaseDir is the directory relative file paths are resolved against.
	BaseDir string
	// EnforceEnums rejects values of registered enum types that are not
	// among their declared members.
	EnforceEnums bool
	// TypeOptions holds per-type configuration.
	TypeOptions map[reflect.Type]*TypeOptions
	// Substitutions holds the substitutions struct tags can refer to by
	// name with `classify:",substitute=name"`.
	Substitutions map[string]*Substitution
	// Types resolves the type tags found in serialized trees.
	Types *TypeRegistry

	enums map[reflect.Type]*enumInfo
}

// TypeOptions is the configuration attached to one type.
type TypeOptions struct {
	// Substitution serializes the type as another one.
	Substitution *Substitution
	// New constructs a fresh instance, either a T or a *T. It is used in
	// place of the zero value when deserializing into a new T.
	New func() any
	// IgnoreIfDefault and IgnoreIfEmpty apply to every field the type
	// declares.
	IgnoreIfDefault bool
	IgnoreIfEmpty   bool
	// Fields overrides the struct tags of individual fields, keyed by Go
	// field name.
	Fields map[string]FieldOptions

	BeforeSerialize   func(obj any)
	AfterSerialize    func(obj any, elem any)
	BeforeDeserialize func(elem any)
	AfterDeserialize  func(obj any, elem any)
}

// FieldOptions mirrors the options of the classify struct tag.
type FieldOptions struct {
	Name            string
	Ignore          bool
	IgnoreIfDefault bool
	IgnoreIfEmpty   bool
	IgnoreIfEqual   any
	EnforceEnums    bool
	NotNull         bool
	Parent          bool
	Substitution    *Substitution
}

// Substitution converts a type to and from a substitute type.
type Substitution struct {
	Type reflect.Type
	To   func(any) (any, error)
	From func(any) (any, error)
}

// Substitute builds a Substitution between T and S from a pair of total
// conversion functions.
func Substitute[T, S any](to func(T) S, from func(S) T) *Substitution {
	return &Substitution{
		Type: reflect.TypeFor[S](),
		To: func(v any) (any, error) {
			t, ok := v.(T)
			if !ok {
				return nil, NewTypeMismatchError(reflect.TypeFor[T](), reflect.TypeOf(v))
			}
			return to(t), nil
		},
		From: func(v any) (any, error) {
			s, ok := v.(S)
			if !ok {
				return nil, NewTypeMismatchError(reflect.TypeFor[S](), reflect.TypeOf(v))
			}
			return from(s), nil
		},
	}
}

// Option represents a configuration option for creating a Classifier
type Option func(*Options) error

// DefaultOptions returns a fresh set of options with nothing registered.
func DefaultOptions() *Options {
	return &Options{
		TypeOptions:   make(map[reflect.Type]*TypeOptions),
		Substitutions: make(map[string]*Substitution),
		Types:         NewTypeRegistry(),
		enums:         make(map[reflect.Type]*enumInfo),
	}
}

// NewOptions applies opts on top of DefaultOptions.
func NewOptions(opts ...Option) (*Options, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithBaseDir sets the directory relative file paths are resolved against
func WithBaseDir(dir string) Option {
	return func(o *Options) error {
		if strings.TrimSpace(dir) == "" {
			return NewInvalidConfigurationError("base directory cannot be empty")
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		o.BaseDir = abs
		return nil
	}
}

// WithEnforceEnums turns enum enforcement on or off for every value
func WithEnforceEnums(enforce bool) Option {
	return func(o *Options) error {
		o.EnforceEnums = enforce
		return nil
	}
}

// WithTypeOptions attaches options to t
func WithTypeOptions(t reflect.Type, to *TypeOptions) Option {
	return func(o *Options) error {
		if t == nil {
			return NewInvalidConfigurationError("type cannot be nil")
		}
		if to == nil {
			return NewInvalidConfigurationError(fmt.Sprintf("type options for %s cannot be nil", t))
		}
		if err := validateSubstitution(t, to.Substitution); err != nil {
			return err
		}
		for name, fo := range to.Fields {
			if t.Kind() != reflect.Struct {
				return NewInvalidConfigurationError(fmt.Sprintf("%s has no fields", t))
			}
			if _, ok := t.FieldByName(name); !ok {
				return NewInvalidConfigurationError(fmt.Sprintf("%s has no field %s", t, name))
			}
			if fo.Substitution != nil && fo.Substitution.Type == nil {
				return NewInvalidConfigurationError(fmt.Sprintf("substitution of %s.%s has no type", t, name))
			}
		}
		o.TypeOptions[t] = to
		o.Types.Register(t)
		return nil
	}
}

// WithTypeOptionsFor attaches options to T
func WithTypeOptionsFor[T any](to *TypeOptions) Option {
	return WithTypeOptions(reflect.TypeFor[T](), to)
}

// WithSubstitution registers a substitution that struct tags can name
func WithSubstitution(name string, s *Substitution) Option {
	return func(o *Options) error {
		if strings.TrimSpace(name) == "" {
			return NewInvalidConfigurationError("substitution name cannot be empty")
		}
		if s == nil || s.Type == nil || s.To == nil || s.From == nil {
			return NewInvalidConfigurationError(fmt.Sprintf("substitution %q is incomplete", name))
		}
		o.Substitutions[name] = s
		return nil
	}
}

// WithTypes registers the types of the given samples so that type tags
// naming them can be resolved.
func WithTypes(samples ...any) Option {
	return func(o *Options) error {
		for _, s := range samples {
			if s == nil {
				return NewInvalidConfigurationError("cannot register the type of nil")
			}
			t, ok := s.(reflect.Type)
			if !ok {
				t = reflect.TypeOf(s)
			}
			o.Types.Register(t)
		}
		return nil
	}
}

// WithEnum declares the members of the enum type T
func WithEnum[T constraints.Integer](members ...T) Option {
	return withEnum(false, members)
}

// WithFlagsEnum declares the members of the flags enum type T. Any bitwise
// union of members is valid.
func WithFlagsEnum[T constraints.Integer](members ...T) Option {
	return withEnum(true, members)
}

func withEnum[T constraints.Integer](flags bool, members []T) Option {
	return func(o *Options) error {
		t := reflect.TypeFor[T]()
		if len(members) == 0 {
			return NewInvalidConfigurationError(fmt.Sprintf("enum %s has no members", t))
		}
		info := &enumInfo{flags: flags, members: make(map[uint64]struct{}, len(members))}
		for _, m := range members {
			info.add(enumBits(reflect.ValueOf(m)))
		}
		o.enums[t] = info
		o.Types.Register(t)
		return nil
	}
}

func validateSubstitution(t reflect.Type, s *Substitution) error {
	if s == nil {
		return nil
	}
	if s.Type == nil || s.To == nil || s.From == nil {
		return NewInvalidConfigurationError(fmt.Sprintf("substitution for %s is incomplete", t))
	}
	if s.Type == t {
		return NewInvalidConfigurationError(fmt.Sprintf("%s cannot be substituted by itself", t))
	}
	return nil
}

func (o *Options) typeOptions(t reflect.Type) *TypeOptions {
	if o == nil || t == nil {
		return nil
	}
	return o.TypeOptions[t]
}

func (o *Options) substitution(t reflect.Type) *Substitution {
	if to := o.typeOptions(t); to != nil {
		return to.Substitution
	}
	return nil
}
