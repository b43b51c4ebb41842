package classify

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type level int

const (
	levelLow level = iota
	levelMid
	levelHigh
)

type perm uint8

const (
	permRead perm = 1 << iota
	permWrite
	permExec
)

func TestEnumRejects(t *testing.T) {
	o, err := NewOptions(
		WithEnum(levelLow, levelMid, levelHigh),
		WithFlagsEnum(permRead, permWrite, permExec),
	)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"member", levelMid, false},
		{"out of range", level(7), true},
		{"negative", level(-1), true},
		{"single flag", permWrite, false},
		{"union of flags", permRead | permExec, false},
		{"no flags", perm(0), false},
		{"unknown bit", perm(8), true},
		{"unknown bit with members", permRead | perm(16), true},
		{"not an enum", 42, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.enumRejects(reflect.ValueOf(tt.value)))
		})
	}
}

func TestWithEnumRequiresMembers(t *testing.T) {
	_, err := NewOptions(WithEnum[level]())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
