package classify_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/classify"
	"github.com/hengadev/classify/classifyjson"
)

type Journal struct {
	Title string
	Next  *Journal
	Count int `classify:"-"`

	log []string `classify:"-"`
}

func (j *Journal) BeforeSerialize() {
	j.log = append(j.log, "before-serialize")
}

func (j *Journal) AfterSerialize(elem *classifyjson.Value) {
	_, referable := elem.Get(classifyjson.KeyRefID)
	if referable {
		j.log = append(j.log, "after-serialize referable")
		return
	}
	j.log = append(j.log, "after-serialize")
}

func (j *Journal) BeforeDeserialize(elem *classifyjson.Value) {
	j.log = append(j.log, "before-deserialize")
}

func (j *Journal) AfterDeserialize(elem *classifyjson.Value) {
	// the whole graph is linked by the time hooks run
	if j.Next != nil && j.Next.Next != nil {
		j.Count = len(j.Next.Next.Title)
	}
	j.log = append(j.log, "after-deserialize")
}

func TestObjectHooks(t *testing.T) {
	c := newClassifier(t)
	a := &Journal{Title: "a"}
	b := &Journal{Title: "bb", Next: a}
	a.Next = b

	elem, err := c.Serialize(a, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"before-serialize", "after-serialize referable"}, a.log)
	assert.Equal(t, []string{"before-serialize", "after-serialize"}, b.log, "hooks run once per object")

	out, err := c.Deserialize(reflect.TypeFor[*Journal](), elem, nil)
	require.NoError(t, err)
	got := out.(*Journal)
	assert.Equal(t, []string{"before-deserialize", "after-deserialize"}, got.log)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, 2, got.Next.Count)
}

type Counter struct {
	N int
}

func TestTypeHooks(t *testing.T) {
	var events []string
	c := newClassifier(t, classify.WithTypeOptionsFor[Counter](&classify.TypeOptions{
		BeforeSerialize: func(obj any) {
			obj.(*Counter).N++
			events = append(events, "before-serialize")
		},
		AfterSerialize: func(obj any, elem any) {
			events = append(events, "after-serialize "+elem.(*classifyjson.Value).String())
		},
		BeforeDeserialize: func(elem any) {
			events = append(events, "before-deserialize")
		},
		AfterDeserialize: func(obj any, elem any) {
			obj.(*Counter).N *= 10
			events = append(events, "after-deserialize")
		},
	}))

	counter := &Counter{N: 1}
	elem, err := c.Serialize(counter, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, counter.N)
	assert.Equal(t, `{"N":2}`, elem.String())

	out, err := c.Deserialize(reflect.TypeFor[*Counter](), elem, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, out.(*Counter).N)
	assert.Equal(t, []string{
		"before-serialize",
		`after-serialize {"N":2}`,
		"before-deserialize",
		"after-deserialize",
	}, events)
}

type Registry struct {
	Entries []*Entry
	ready   bool
}

func (r *Registry) AfterDeserialize() {
	r.ready = true
	for _, e := range r.Entries {
		e.seenByParent = e.indexed
	}
}

type Entry struct {
	Key          string
	indexed      bool
	seenByParent bool
}

func (e *Entry) AfterDeserialize() { e.indexed = true }

func TestHookOrder(t *testing.T) {
	c := newClassifier(t)
	got, _ := roundTrip(t, c, &Registry{Entries: []*Entry{{Key: "a"}, {Key: "b"}}})
	assert.True(t, got.ready)
	for _, e := range got.Entries {
		assert.True(t, e.indexed)
		assert.True(t, e.seenByParent, "children are notified before their parent")
	}
}
