// Package ordering computes the position renumbering required to keep a
// parent's children dense and gap-free ({1..n}) across inserts, moves and
// removals. All functions are pure: they read the current child set and
// return a plan; applying the plan is the store's job.
package ordering

import "errors"

// ErrItemNotFound is returned when the referenced item is not among the
// parent's children.
var ErrItemNotFound = errors.New("ordering: item not in parent")

// Item is the position-bearing view of a child entity.
type Item struct {
	ID       string
	Position int
}

// Change assigns a new position to one entity.
type Change struct {
	ID          string
	NewPosition int
}

// Plan is the set of position writes restoring the ordering invariant after a
// mutation. An empty plan means nothing needs to move.
type Plan []Change

// InsertAt computes the plan for inserting a new child at the requested
// position. The request is clamped to [1, n+1]; siblings at or after the slot
// shift forward by one. The returned position is the clamped slot for the new
// item, which is not part of the plan because it does not exist yet.
func InsertAt(items []Item, requested int) (int, Plan) {
	pos := clamp(requested, 1, len(items)+1)

	var plan Plan
	for _, it := range items {
		if it.Position >= pos {
			plan = append(plan, Change{ID: it.ID, NewPosition: it.Position + 1})
		}
	}
	return pos, plan
}

// MoveWithinParent computes the plan for moving an existing child to the
// requested position, clamped to [1, n]. Only the window between the old and
// new positions shifts, so the cost is proportional to the distance moved.
// Moving an item onto its current position yields an empty plan.
func MoveWithinParent(items []Item, id string, requested int) (Plan, error) {
	current, ok := positionOf(items, id)
	if !ok {
		return nil, ErrItemNotFound
	}

	target := clamp(requested, 1, len(items))
	if target == current {
		return nil, nil
	}

	var plan Plan
	for _, it := range items {
		if it.ID == id {
			continue
		}
		switch {
		case target > current && it.Position > current && it.Position <= target:
			plan = append(plan, Change{ID: it.ID, NewPosition: it.Position - 1})
		case target < current && it.Position >= target && it.Position < current:
			plan = append(plan, Change{ID: it.ID, NewPosition: it.Position + 1})
		}
	}
	plan = append(plan, Change{ID: id, NewPosition: target})
	return plan, nil
}

// RemoveAt computes the compaction plan after the child at the given position
// has been removed: every sibling past it shifts back by one.
func RemoveAt(items []Item, position int) Plan {
	var plan Plan
	for _, it := range items {
		if it.Position > position {
			plan = append(plan, Change{ID: it.ID, NewPosition: it.Position - 1})
		}
	}
	return plan
}

// MoveAcrossParents computes both sides of a reparenting move: a removal plan
// for the source and an insertion plan for the destination, plus the clamped
// destination position for the moved item. Both plans must be applied in the
// same transaction.
func MoveAcrossParents(src, dst []Item, id string, requested int) (Plan, Plan, int, error) {
	current, ok := positionOf(src, id)
	if !ok {
		return nil, nil, 0, ErrItemNotFound
	}

	srcPlan := RemoveAt(src, current)
	pos, dstPlan := InsertAt(dst, requested)
	return srcPlan, dstPlan, pos, nil
}

// Validate reports whether the items' positions are exactly {1..n}. Used by
// tests and as a store sanity hook.
func Validate(items []Item) error {
	seen := make(map[int]string, len(items))
	for _, it := range items {
		if it.Position < 1 || it.Position > len(items) {
			return errors.New("ordering: position out of range")
		}
		if _, dup := seen[it.Position]; dup {
			return errors.New("ordering: duplicate position")
		}
		seen[it.Position] = it.ID
	}
	if len(seen) != len(items) {
		return errors.New("ordering: gap in positions")
	}
	return nil
}

func positionOf(items []Item, id string) (int, bool) {
	for _, it := range items {
		if it.ID == id {
			return it.Position, true
		}
	}
	return 0, false
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
