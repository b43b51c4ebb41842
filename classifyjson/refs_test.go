package classifyjson

import (
	"reflect"
	"testing"

	"github.com/hengadev/errsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReferences(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RefSummary
		errKeys []string
	}{
		{
			name:  "no references",
			input: `{"a":[1,2],"b":{"c":null}}`,
		},
		{
			name:  "resolved",
			input: `{":refid":0,"next":{":ref":0},"list":[{":refid":1,":value":[]},{":ref":1},{":ref":0}]}`,
			want:  RefSummary{Referables: 2, References: 3},
		},
		{
			name:    "dangling",
			input:   `[{":ref":3}]`,
			want:    RefSummary{References: 1},
			errKeys: []string{":ref 3"},
		},
		{
			name:    "declared twice",
			input:   `[{":refid":1},{":refid":1}]`,
			want:    RefSummary{Referables: 2},
			errKeys: []string{"$[1]"},
		},
		{
			name:    "bad id",
			input:   `{"x":{":ref":true}}`,
			errKeys: []string{"$.x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Parse([]byte(tt.input))
			require.NoError(t, err)

			sum, err := CheckReferences(tree)
			assert.Equal(t, tt.want, sum)
			if len(tt.errKeys) == 0 {
				assert.NoError(t, err)
				return
			}
			errs, ok := err.(errsx.Map)
			require.True(t, ok, "expected errsx.Map, got %T", err)
			assert.Len(t, errs, len(tt.errKeys))
			for _, key := range tt.errKeys {
				assert.Contains(t, errs, key)
			}
		})
	}
}

func TestCheckReferencesOnSerializedGraph(t *testing.T) {
	a := &server{Host: "a"}
	b := &server{Host: "b", Peers: []*server{a}}
	a.Peers = []*server{b, b}

	tree, err := Serialize(a)
	require.NoError(t, err)
	sum, err := CheckReferences(tree)
	require.NoError(t, err)
	assert.Equal(t, RefSummary{Referables: 2, References: 2}, sum)

	c, err := NewClassifier()
	require.NoError(t, err)
	_, err = c.Deserialize(reflect.TypeFor[*server](), tree, nil)
	assert.NoError(t, err)
}
