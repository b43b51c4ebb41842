package classifyjson

import (
	"bytes"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/hengadev/classify"
)

var (
	compactAPI = jsoniter.Config{EscapeHTML: false}.Froze()
	indentAPI  = jsoniter.Config{EscapeHTML: false, IndentionStep: 2}.Froze()
)

// Parse reads a JSON document.
func Parse(data []byte) (*Value, error) {
	it := jsoniter.ParseBytes(compactAPI, data)
	v := readValue(it)
	if it.Error != nil && it.Error != io.EOF {
		return nil, fmt.Errorf("%w: %v", classify.ErrInvalidFormat, it.Error)
	}
	if next := it.WhatIsNext(); next != jsoniter.InvalidValue {
		return nil, fmt.Errorf("%w: trailing data after the document", classify.ErrInvalidFormat)
	}
	return v, nil
}

// ReadFrom parses the JSON document r holds.
func ReadFrom(r io.Reader) (*Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", classify.ErrInvalidFormat)
	}
	return Parse(data)
}

func readValue(it *jsoniter.Iterator) *Value {
	switch it.WhatIsNext() {
	case jsoniter.NilValue:
		it.ReadNil()
		return Null()
	case jsoniter.BoolValue:
		return Bool(it.ReadBool())
	case jsoniter.NumberValue:
		return Number(string(it.ReadNumber()))
	case jsoniter.StringValue:
		return String(it.ReadString())
	case jsoniter.ArrayValue:
		list := List()
		it.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			list.list = append(list.list, readValue(it))
			return it.Error == nil
		})
		return list
	case jsoniter.ObjectValue:
		d := NewDict()
		it.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			d.Set(key, readValue(it))
			return it.Error == nil
		})
		return d
	default:
		it.ReportError("readValue", "unexpected token")
		return nil
	}
}

// Marshal writes v as compact JSON.
func Marshal(v *Value) ([]byte, error) {
	return marshal(compactAPI, v)
}

// MarshalIndent writes v as JSON indented by two spaces.
func MarshalIndent(v *Value) ([]byte, error) {
	return marshal(indentAPI, v)
}

func marshal(api jsoniter.API, v *Value) ([]byte, error) {
	st := api.BorrowStream(nil)
	defer api.ReturnStream(st)
	writeValue(st, v)
	if st.Error != nil {
		return nil, st.Error
	}
	return append([]byte(nil), st.Buffer()...), nil
}

func writeValue(st *jsoniter.Stream, v *Value) {
	switch v.Kind() {
	case KindNull:
		st.WriteNil()
	case KindBool:
		st.WriteBool(v.b)
	case KindNumber:
		st.WriteRaw(v.s)
	case KindString:
		st.WriteString(v.s)
	case KindList:
		if len(v.list) == 0 {
			st.WriteEmptyArray()
			return
		}
		st.WriteArrayStart()
		for i, item := range v.list {
			if i > 0 {
				st.WriteMore()
			}
			writeValue(st, item)
		}
		st.WriteArrayEnd()
	case KindDict:
		if len(v.keys) == 0 {
			st.WriteEmptyObject()
			return
		}
		st.WriteObjectStart()
		for i, k := range v.keys {
			if i > 0 {
				st.WriteMore()
			}
			st.WriteObjectField(k)
			writeValue(st, v.dict[k])
		}
		st.WriteObjectEnd()
	}
}

func (v *Value) MarshalJSON() ([]byte, error) {
	return Marshal(v)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = *parsed
	return nil
}
