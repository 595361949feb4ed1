package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEstimatedSize(t *testing.T) {
	cases := []struct {
		name string
		v    *Value
		want int
	}{
		{"string", NewString("hello"), 5},
		{"list", NewList(NewDequeFrom([]string{"ab", "cde"})), 2 + 3 + 2*8},
		{"hash", NewHash(map[string]string{"f": "val"}), 1 + 3 + 16},
		{"set", NewSet(map[string]struct{}{"aa": {}, "bb": {}}), 2 + 2 + 2*8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.v.EstimatedSize())
		})
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	d := NewDeque()
	d.PushBack("foo")
	d.PushFront("bar")

	values := []*Value{
		NewString("hello"),
		NewList(d),
		NewHash(map[string]string{"f1": "v1", "f2": "v2"}),
		NewSet(map[string]struct{}{"m1": {}, "m2": {}}),
	}

	for _, v := range values {
		data, err := json.Marshal(v)
		require.NoError(t, err)

		var out Value
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, v.Kind, out.Kind)

		switch v.Kind {
		case KindString:
			assert.Equal(t, v.Str, out.Str)
		case KindList:
			assert.Equal(t, v.List.Slice(), out.List.Slice())
		case KindHash:
			assert.Equal(t, v.Hash, out.Hash)
		case KindSet:
			assert.Equal(t, v.SetMembers(), out.SetMembers())
		}
	}
}

func TestDequeOperations(t *testing.T) {
	d := NewDeque()
	d.PushBack("b")
	d.PushFront("a")
	d.PushBack("c")
	assert.Equal(t, []string{"a", "b", "c"}, d.Slice())

	front, ok := d.PopFront()
	require.True(t, ok)
	assert.Equal(t, "a", front)

	back, ok := d.PopBack()
	require.True(t, ok)
	assert.Equal(t, "c", back)

	assert.Equal(t, 1, d.Len())
	v, ok := d.At(0)
	require.True(t, ok)
	assert.Equal(t, "b", v)

	assert.True(t, d.SetAt(0, "z"))
	assert.False(t, d.SetAt(5, "nope"))
	assert.Equal(t, []string{"z"}, d.Slice())
}

func TestMetadataAccessAndModify(t *testing.T) {
	m := NewMetadata(10)
	assert.Equal(t, int64(1), m.AccessCount)

	m.Access()
	assert.Equal(t, int64(2), m.AccessCount)

	m.Modify(20)
	assert.Equal(t, int64(3), m.AccessCount)
	assert.Equal(t, 20, m.SizeEstimate)
}
