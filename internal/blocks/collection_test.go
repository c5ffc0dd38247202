package blocks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockdoc/internal/blocks"
	"blockdoc/internal/domain"
)

func block(id, parent string) *domain.Block {
	return &domain.Block{ID: id, Tool: "paragraph", Data: domain.Data{"text": id}, ParentID: parent}
}

func build(t *testing.T, specs ...[2]string) *blocks.Collection {
	t.Helper()
	c := blocks.New()
	for _, s := range specs {
		_, _, err := c.Insert(block(s[0], s[1]), c.Len(), false)
		require.NoError(t, err)
	}
	c.RefreshAll()
	require.NoError(t, c.Validate())
	return c
}

func ids(c *blocks.Collection) []string {
	var out []string
	for _, b := range c.Blocks() {
		out = append(out, b.ID)
	}
	return out
}

func TestInsert_Bounds(t *testing.T) {
	c := build(t, [2]string{"a", ""})

	tests := []struct {
		name    string
		at      int
		wantErr bool
	}{
		{"negative", -1, true},
		{"past end", 2, true},
		{"front", 0, false},
		{"end", 2, false}, // length grew to 2 after "front"
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := c.Insert(block(tc.name, ""), tc.at, false)
			if tc.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidIndex)
				return
			}
			require.NoError(t, err)
		})
	}
	assert.Equal(t, []string{"front", "a", "end"}, ids(c))
	require.NoError(t, c.Validate())
}

func TestInsert_ReplaceAdoptsChildren(t *testing.T) {
	c := build(t, [2]string{"p", ""}, [2]string{"c", "p"})

	_, old, err := c.Insert(block("q", ""), 0, true)
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.Equal(t, "p", old.ID)

	child, _ := c.Get("c")
	assert.Equal(t, "q", child.ParentID)
	q, _ := c.Get("q")
	assert.Equal(t, []string{"c"}, q.ChildIDs)
	require.NoError(t, c.Validate())
}

func TestInsert_DuplicateID(t *testing.T) {
	c := build(t, [2]string{"a", ""})
	_, _, err := c.Insert(block("a", ""), 1, false)
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestRemove_ReparentsToGrandparent(t *testing.T) {
	c := build(t, [2]string{"a", ""}, [2]string{"b", "a"}, [2]string{"c", "b"}, [2]string{"d", "b"})

	removed, err := c.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.ID)

	a, _ := c.Get("a")
	assert.Equal(t, []string{"c", "d"}, a.ChildIDs)
	assert.Equal(t, 1, c.Depth("c"))
	require.NoError(t, c.Validate())

	_, err = c.Remove(3)
	require.ErrorIs(t, err, domain.ErrInvalidIndex)
}

func TestMove_KeepsIndexContiguous(t *testing.T) {
	c := build(t, [2]string{"a", ""}, [2]string{"b", ""}, [2]string{"c", ""}, [2]string{"d", ""})

	require.NoError(t, c.Move(0, 2))
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids(c))
	require.NoError(t, c.Move(3, 0))
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(c))
	require.NoError(t, c.Move(1, 1))

	for i := 0; i < c.Len(); i++ {
		b, _ := c.At(i)
		assert.Equal(t, i, c.IndexOf(b.ID))
	}
	require.ErrorIs(t, c.Move(0, 4), domain.ErrInvalidIndex)
	require.NoError(t, c.Validate())
}

func TestMove_RefreshesChildOrder(t *testing.T) {
	c := build(t, [2]string{"p", ""}, [2]string{"x", "p"}, [2]string{"y", "p"})
	require.NoError(t, c.Move(2, 1))
	p, _ := c.Get("p")
	assert.Equal(t, []string{"y", "x"}, p.ChildIDs)
	require.NoError(t, c.Validate())
}

func TestSetParent(t *testing.T) {
	c := build(t, [2]string{"a", ""}, [2]string{"b", ""}, [2]string{"c", ""})

	require.NoError(t, c.SetParent("b", "a"))
	require.NoError(t, c.SetParent("c", "b"))
	assert.Equal(t, 2, c.Depth("c"))
	require.Error(t, c.SetParent("a", "c"), "cycle")
	require.ErrorIs(t, c.SetParent("a", "ghost"), domain.ErrNotFound)
	require.ErrorIs(t, c.SetParent("ghost", ""), domain.ErrNotFound)

	require.NoError(t, c.SetParent("c", ""))
	b, _ := c.Get("b")
	assert.Empty(t, b.ChildIDs)
	require.NoError(t, c.Validate())
}

func TestDescendants_StopAtSiblingOrShallower(t *testing.T) {
	c := build(t,
		[2]string{"l1", ""},
		[2]string{"l1a", "l1"},
		[2]string{"l1a1", "l1a"},
		[2]string{"l1b", "l1"},
		[2]string{"l2", ""},
	)
	var got []string
	for _, b := range c.Descendants("l1a") {
		got = append(got, b.ID)
	}
	assert.Equal(t, []string{"l1a1"}, got)
	assert.Len(t, c.Descendants("l1"), 3)
	assert.Empty(t, c.Descendants("l2"))
	assert.Nil(t, c.Descendants("ghost"))
}

func TestChildrenOf_FollowsSequenceOrder(t *testing.T) {
	c := build(t, [2]string{"p", ""}, [2]string{"a", "p"}, [2]string{"x", ""}, [2]string{"b", "p"})
	var got []string
	for _, b := range c.ChildrenOf("p") {
		got = append(got, b.ID)
	}
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Nil(t, c.ChildrenOf(""))
}

func TestValidate_DetectsCorruption(t *testing.T) {
	c := build(t, [2]string{"p", ""}, [2]string{"a", "p"})

	a, _ := c.Get("a")
	a.ParentID = "ghost"
	require.ErrorIs(t, c.Validate(), domain.ErrInvariant)

	a.ParentID = "p"
	p, _ := c.Get("p")
	p.ChildIDs = nil
	require.ErrorIs(t, c.Validate(), domain.ErrInvariant)

	c.RefreshAll()
	require.NoError(t, c.Validate())
}
