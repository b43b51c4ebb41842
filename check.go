package classify

import (
	"fmt"
	"reflect"

	"github.com/hengadev/errsx"
)

// Check walks every type reachable from roots, substitutions applied, and
// reports what a Classifier configured with opts could not handle: fields
// of unsupported types that are not ignored, invalid struct tags, New
// functions that fail, and interfaces no registered type implements.
// Findings are keyed by type or by "Type.Field". Check never runs as part
// of Serialize or Deserialize, and leaves opts untouched.
func Check(opts *Options, roots ...reflect.Type) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	base := opts.Types
	if base == nil {
		base = NewTypeRegistry()
	}
	ck := &checker{opts: opts, types: base.scope(), visited: make(map[reflect.Type]struct{})}
	for _, t := range roots {
		if t == nil {
			continue
		}
		ck.types.RegisterReachable(t)
		ck.visit(t, t.String())
	}
	return ck.errs.AsError()
}

type checker struct {
	opts    *Options
	types   *TypeRegistry
	visited map[reflect.Type]struct{}
	errs    errsx.Map
}

func (ck *checker) visit(t reflect.Type, key string) {
	if _, ok := ck.visited[t]; ok {
		return
	}
	ck.visited[t] = struct{}{}

	to := ck.opts.typeOptions(t)
	if to != nil && to.Substitution != nil {
		if err := validateSubstitution(t, to.Substitution); err != nil {
			ck.errs.Set(key, err)
			return
		}
		ck.visit(to.Substitution.Type, key)
		return
	}
	if to != nil && to.New != nil {
		ck.checkNew(t, to.New)
	}

	switch classifyType(t) {
	case kindUnsupported:
		ck.errs.Set(key, NewUnsupportedTypeError(t))
	case kindPointer, kindSlice, kindArray:
		ck.visit(t.Elem(), key)
	case kindDictionary, kindPairList:
		ck.visit(t.Key(), key)
		ck.visit(t.Elem(), key)
	case kindCollection:
		elem, _ := collectionElem(t)
		ck.visit(elem, key)
	case kindTuple, kindKeyValue:
		for i := range t.NumField() {
			ck.visit(t.Field(i).Type, key)
		}
	case kindInterface:
		if t.NumMethod() > 0 && len(ck.types.Implementations(t)) == 0 {
			ck.errs.Set(key, fmt.Errorf("%w: no registered type implements %s", ErrUnresolvableType, t))
		}
	case kindStruct:
		ck.visitStruct(t)
	}
}

func (ck *checker) visitStruct(t reflect.Type) {
	fields, err := fieldsFor(ck.opts, t)
	if err != nil {
		ck.errs.Set(t.String(), err)
		return
	}
	for _, f := range fields {
		if f.ignore || f.parent {
			continue
		}
		key := t.String() + "." + f.goName
		if classifyType(f.typ) == kindUnsupported {
			ck.errs.Set(key, NewUnsupportedFieldError(t, f.goName, f.typ))
			continue
		}
		if f.subst != nil {
			ck.visit(f.subst.Type, key)
			continue
		}
		ck.visit(f.typ, key)
	}
}

func (ck *checker) checkNew(t reflect.Type, newFn func() any) {
	defer func() {
		if r := recover(); r != nil {
			ck.errs.Set(t.String(), NewConstructionError(t, r))
		}
	}()
	made := reflect.ValueOf(newFn())
	if !made.IsValid() || (made.Type() != t && made.Type() != reflect.PointerTo(t)) {
		ck.errs.Set(t.String(), NewConstructionError(t, "New must return a "+t.String()+" or a pointer to one"))
	}
}
