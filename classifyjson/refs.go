package classifyjson

import (
	"fmt"

	"github.com/hengadev/errsx"

	"github.com/hengadev/classify"
)

// RefSummary counts the reference markers of a tree.
type RefSummary struct {
	Referables int
	References int
}

// CheckReferences verifies the reference markers of a tree without
// deserializing it: every reference must name a referable node and no id
// may be declared twice. All problems are reported together.
func CheckReferences(tree *Value) (RefSummary, error) {
	var sum RefSummary
	var errs errsx.Map
	declared := make(map[int]struct{})
	var used []int
	f := NewFormat()

	var walk func(v *Value, path string)
	walk = func(v *Value, path string) {
		switch v.Kind() {
		case KindList:
			for i, item := range v.list {
				walk(item, fmt.Sprintf("%s[%d]", path, i))
			}
		case KindDict:
			if f.IsReference(v) || f.IsReferable(v) {
				id, err := f.GetReferenceID(v)
				switch {
				case err != nil:
					errs.Set(path, err)
				case f.IsReference(v):
					sum.References++
					used = append(used, id)
				default:
					sum.Referables++
					if _, dup := declared[id]; dup {
						errs.Set(path, fmt.Errorf("%w: reference id %d is declared twice", classify.ErrInvalidFormat, id))
					}
					declared[id] = struct{}{}
				}
			}
			for _, k := range v.keys {
				walk(v.dict[k], path+"."+k)
			}
		}
	}
	walk(tree, "$")

	for _, id := range used {
		if _, ok := declared[id]; !ok {
			errs.Set(fmt.Sprintf("%s %d", KeyRef, id), classify.NewDanglingReferenceError(id))
		}
	}
	return sum, errs.AsError()
}
