package viewstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigatorStartsOnList(t *testing.T) {
	assert.Equal(t, List{}, NewNavigator().Current())
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		name string
		from View
		to   View
		ok   bool
	}{
		{"list to add", List{}, Add{}, true},
		{"list to edit", List{}, Edit{ID: "t1"}, true},
		{"list to history", List{}, History{}, true},
		{"list to detail", List{}, Detail{ID: "t1"}, true},
		{"detail to edit same", Detail{ID: "t1"}, Edit{ID: "t1"}, true},
		{"detail to edit other", Detail{ID: "t1"}, Edit{ID: "t2"}, false},
		{"history to detail", History{TemplateID: "t1"}, Detail{ID: "r1"}, true},
		{"add to edit", Add{}, Edit{ID: "t1"}, false},
		{"edit to add", Edit{ID: "t1"}, Add{}, false},
		{"add to list", Add{}, List{}, true},
		{"edit to list", Edit{ID: "t1"}, List{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, allowed(tc.from, tc.to))
		})
	}
}

func TestGoRejectsInvalid(t *testing.T) {
	n := NewNavigator()
	require.NoError(t, n.Go(Add{}))

	err := n.Go(Edit{ID: "t1"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Add{}, n.Current())

	assert.Error(t, n.Go(Detail{}))
}

func TestBackWalksTheStack(t *testing.T) {
	n := NewNavigator()
	require.NoError(t, n.Go(History{TemplateID: "t1"}))
	require.NoError(t, n.Go(Detail{ID: "r1"}))
	require.NoError(t, n.Go(Edit{ID: "r1"}))

	assert.Equal(t, Detail{ID: "r1"}, n.Back())
	assert.Equal(t, History{TemplateID: "t1"}, n.Back())
	assert.Equal(t, List{}, n.Back())
	assert.Equal(t, List{}, n.Back())
}

func TestListClearsStack(t *testing.T) {
	n := NewNavigator()
	require.NoError(t, n.Go(Detail{ID: "a"}))
	require.NoError(t, n.Go(List{}))
	assert.Equal(t, List{}, n.Back())
}

func TestOpenJumpsFromAnywhere(t *testing.T) {
	n := NewNavigator()
	require.NoError(t, n.Go(Add{}))

	require.NoError(t, n.Open(Detail{ID: "t1"}))
	assert.Equal(t, Detail{ID: "t1"}, n.Current())
	assert.Equal(t, List{}, n.Back())

	err := n.Open(Detail{})
	assert.Error(t, err)
	assert.Equal(t, List{}, n.Current(), "invalid view leaves the navigator alone")
}

func TestEncodeDecode(t *testing.T) {
	for _, v := range []View{List{}, Add{}, Edit{ID: "e"}, History{TemplateID: "h"}, History{}, Detail{ID: "d"}} {
		raw, err := Encode(v)
		require.NoError(t, err)
		got, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	raw, err := Encode(Edit{ID: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"edit","id":"x"}`, string(raw))
}

func TestParseRejects(t *testing.T) {
	_, err := Parse("settings", "")
	assert.Error(t, err)
	_, err = Parse("edit", "")
	assert.Error(t, err)
	_, err = Decode([]byte("{"))
	assert.Error(t, err)
}
