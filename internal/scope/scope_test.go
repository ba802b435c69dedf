package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestVisible(t *testing.T) {
	a := ptr("a")
	b := ptr("b")

	tests := []struct {
		name string
		sel  Selection
		row  *string
		want bool
	}{
		{"all shows unassigned", All(), nil, true},
		{"all shows bound", All(), a, true},
		{"unassigned shows null", Unassigned(), nil, true},
		{"unassigned hides bound", Unassigned(), a, false},
		{"property shows match", Property("a"), a, true},
		{"property hides other", Property("a"), b, false},
		{"property hides null", Property("a"), nil, false},
		{"property without id hides all", Selection{Mode: ModeProperty}, a, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.Visible(tt.row))
		})
	}
}

func TestSQL(t *testing.T) {
	frag, args := All().SQL("property_id")
	assert.Empty(t, frag)
	assert.Nil(t, args)

	frag, _ = Unassigned().SQL("property_id")
	assert.Equal(t, "property_id IS NULL", frag)

	frag, args = Property("p1").SQL("property_id")
	assert.Equal(t, "property_id = ?", frag)
	assert.Equal(t, []any{"p1"}, args)
}

func TestFilter(t *testing.T) {
	type row struct {
		name string
		pid  *string
	}
	rows := []row{{"x", nil}, {"y", ptr("p1")}, {"z", ptr("p2")}}
	get := func(r row) *string { return r.pid }

	assert.Len(t, Filter(All(), rows, get), 3)
	got := Filter(Unassigned(), rows, get)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].name)
	got = Filter(Property("p2"), rows, get)
	require.Len(t, got, 1)
	assert.Equal(t, "z", got[0].name)
}

func TestParseModeAndValidate(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)

	_, err = ParseMode("everything")
	assert.Error(t, err)

	assert.Error(t, Selection{Mode: ModeProperty}.Validate())
	assert.NoError(t, Property("p").Validate())
	assert.NoError(t, All().Validate())
}

func TestRestriction(t *testing.T) {
	var open Restriction
	assert.True(t, open.Allows(ptr("x")))
	frag, args := open.SQL("property_id")
	assert.Empty(t, frag)
	assert.Empty(t, args)

	none := Restrict(nil)
	require.NotNil(t, none)
	assert.True(t, none.Allows(nil), "shared rows stay reachable")
	assert.False(t, none.Allows(ptr("a")))
	frag, args = none.SQL("property_id")
	assert.Equal(t, "property_id IS NULL", frag)
	assert.Empty(t, args)

	some := Restrict([]string{"a", "b"})
	assert.True(t, some.Allows(ptr("b")))
	assert.False(t, some.Allows(ptr("c")))
	frag, args = some.SQL("property_id")
	assert.Equal(t, "(property_id IS NULL OR property_id IN (?,?))", frag)
	assert.Equal(t, []any{"a", "b"}, args)
}
