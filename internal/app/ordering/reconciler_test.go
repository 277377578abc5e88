package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func children(n int) []Item {
	items := make([]Item, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, Item{ID: string(rune('a' + i - 1)), Position: i})
	}
	return items
}

// apply plays a plan (plus optional extra insert) against the items so the
// invariant can be checked on the outcome.
func apply(items []Item, plan Plan) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	for _, ch := range plan {
		for i := range out {
			if out[i].ID == ch.ID {
				out[i].Position = ch.NewPosition
			}
		}
	}
	return out
}

func TestInsertAtAppends(t *testing.T) {
	pos, plan := InsertAt(children(2), 3)
	assert.Equal(t, 3, pos)
	assert.Empty(t, plan)
}

func TestInsertAtShiftsTail(t *testing.T) {
	items := children(4)
	pos, plan := InsertAt(items, 2)
	require.Equal(t, 2, pos)

	got := apply(items, plan)
	got = append(got, Item{ID: "new", Position: pos})
	require.NoError(t, Validate(got))

	// a stays at 1, everything from b on shifts by one.
	assert.ElementsMatch(t, Plan{
		{ID: "b", NewPosition: 3},
		{ID: "c", NewPosition: 4},
		{ID: "d", NewPosition: 5},
	}, plan)
}

func TestInsertAtClamps(t *testing.T) {
	pos, _ := InsertAt(children(3), 0)
	assert.Equal(t, 1, pos)

	pos, plan := InsertAt(children(3), 99)
	assert.Equal(t, 4, pos)
	assert.Empty(t, plan)

	pos, _ = InsertAt(nil, 7)
	assert.Equal(t, 1, pos)
}

func TestMoveForward(t *testing.T) {
	items := children(4)
	plan, err := MoveWithinParent(items, "a", 3)
	require.NoError(t, err)

	got := apply(items, plan)
	require.NoError(t, Validate(got))

	want := map[string]int{"a": 3, "b": 1, "c": 2, "d": 4}
	for _, it := range got {
		assert.Equal(t, want[it.ID], it.Position, "item %s", it.ID)
	}
	// Only the window between the old and new slot moves.
	assert.Len(t, plan, 3)
}

func TestMoveBackward(t *testing.T) {
	items := children(5)
	plan, err := MoveWithinParent(items, "d", 2)
	require.NoError(t, err)

	got := apply(items, plan)
	require.NoError(t, Validate(got))

	want := map[string]int{"a": 1, "b": 3, "c": 4, "d": 2, "e": 5}
	for _, it := range got {
		assert.Equal(t, want[it.ID], it.Position, "item %s", it.ID)
	}
}

func TestMoveToCurrentPositionIsNoop(t *testing.T) {
	plan, err := MoveWithinParent(children(3), "b", 2)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestMoveClamps(t *testing.T) {
	items := children(3)

	plan, err := MoveWithinParent(items, "c", 99)
	require.NoError(t, err)
	assert.Empty(t, plan, "clamped to current tail position")

	plan, err = MoveWithinParent(items, "b", 0)
	require.NoError(t, err)
	got := apply(items, plan)
	require.NoError(t, Validate(got))
	for _, it := range got {
		if it.ID == "b" {
			assert.Equal(t, 1, it.Position)
		}
	}
}

func TestMoveUnknownItem(t *testing.T) {
	_, err := MoveWithinParent(children(2), "zz", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveAtCompacts(t *testing.T) {
	items := children(3)
	plan := RemoveAt(items, 2)

	assert.ElementsMatch(t, Plan{{ID: "c", NewPosition: 2}}, plan)

	remaining := apply(items, plan)
	var out []Item
	for _, it := range remaining {
		if it.ID != "b" {
			out = append(out, it)
		}
	}
	assert.NoError(t, Validate(out))
}

func TestMoveAcrossParents(t *testing.T) {
	src := []Item{{ID: "a1", Position: 1}, {ID: "a2", Position: 2}, {ID: "a3", Position: 3}}
	dst := []Item{{ID: "b1", Position: 1}, {ID: "b2", Position: 2}}

	srcPlan, dstPlan, pos, err := MoveAcrossParents(src, dst, "a2", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	assert.ElementsMatch(t, Plan{{ID: "a3", NewPosition: 2}}, srcPlan)
	assert.ElementsMatch(t, Plan{
		{ID: "b1", NewPosition: 2},
		{ID: "b2", NewPosition: 3},
	}, dstPlan)

	// Source keeps {1,2}, destination becomes {1,2,3} with the mover at 1.
	srcAfter := apply(src, srcPlan)
	var srcOut []Item
	for _, it := range srcAfter {
		if it.ID != "a2" {
			srcOut = append(srcOut, it)
		}
	}
	require.NoError(t, Validate(srcOut))

	dstAfter := apply(dst, dstPlan)
	dstAfter = append(dstAfter, Item{ID: "a2", Position: pos})
	require.NoError(t, Validate(dstAfter))
}

func TestMoveAcrossParentsUnknownItem(t *testing.T) {
	_, _, _, err := MoveAcrossParents(children(2), nil, "zz", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

// Random-ish command sequences keep the invariant after every step.
func TestInvariantUnderCommandSequence(t *testing.T) {
	items := []Item{}
	nextID := 0

	insert := func(at int) {
		pos, plan := InsertAt(items, at)
		items = apply(items, plan)
		nextID++
		items = append(items, Item{ID: string(rune('A' + nextID)), Position: pos})
		require.NoError(t, Validate(items))
	}
	move := func(idx, to int) {
		plan, err := MoveWithinParent(items, items[idx].ID, to)
		require.NoError(t, err)
		items = apply(items, plan)
		require.NoError(t, Validate(items))
	}
	remove := func(idx int) {
		victim := items[idx]
		plan := RemoveAt(items, victim.Position)
		items = append(items[:idx], items[idx+1:]...)
		items = apply(items, plan)
		require.NoError(t, Validate(items))
	}

	insert(1)
	insert(1)
	insert(99)
	insert(2)
	move(0, 4)
	move(3, 1)
	remove(2)
	insert(0)
	move(1, 3)
	remove(0)
	remove(0)
	insert(2)
	require.NoError(t, Validate(items))
}
