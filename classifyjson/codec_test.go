package classifyjson

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsOrderAndLiterals(t *testing.T) {
	input := `{"z":1,"a":[true,null,"s",1.50,-2e3,18446744073709551615],"m":{}}`
	v, err := Parse([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "a", "m"}, v.Keys())
	out, err := Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, input, string(out))

	list, _ := v.Get("a")
	items := list.Items()
	require.Len(t, items, 6)
	assert.Equal(t, KindBool, items[0].Kind())
	assert.True(t, items[1].IsNull())
	lit, _ := items[3].Literal()
	assert.Equal(t, "1.50", lit)
	u, ok := items[5].Uint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(18446744073709551615), u)
	_, ok = items[5].Int64()
	assert.False(t, ok)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"truncated", `{"a":`},
		{"trailing", `1 2`},
		{"bad token", `{"a":nope}`},
		{"unclosed list", `[1,2`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrom(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestMarshalIndent(t *testing.T) {
	v := NewDict()
	v.Set("name", String("x"))
	v.Set("list", List(Int(1), Int(2)))
	v.Set("empty", List())

	out, err := MarshalIndent(v)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"x\",\n  \"list\": [\n    1,\n    2\n  ],\n  \"empty\": []\n}", string(out))
}

func TestStandardLibraryInterop(t *testing.T) {
	type doc struct {
		Payload *Value `json:"payload"`
	}
	var d doc
	require.NoError(t, json.Unmarshal([]byte(`{"payload":{"b":1,"a":"<x>"}}`), &d))
	assert.Equal(t, []string{"b", "a"}, d.Payload.Keys())

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"payload":{"b":1,"a":"<x>"}}`, string(out))
}

func TestValueEditing(t *testing.T) {
	d := NewDict()
	d.Set("a", Int(1))
	d.Set("b", Int(2))
	d.Set("a", Int(3))
	assert.Equal(t, []string{"a", "b"}, d.Keys())
	d.Delete("a")
	assert.Equal(t, []string{"b"}, d.Keys())
	assert.Equal(t, 1, d.Len())

	x := NewDict()
	x.Set("b", Float(2))
	assert.True(t, d.Equal(x), "2 and 2.0 are the same number")
	assert.False(t, d.Equal(List()))

	var nilValue *Value
	assert.True(t, nilValue.IsNull())
	assert.Equal(t, "null", nilValue.String())
}
