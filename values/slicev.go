package values

import "github.com/scinapse-labs/monty/heap"

// SlicePayload is the boxed result of a slice literal `a:b:c`, distinct from
// the (start, stop, step) triple already normalized against a concrete
// sequence length — this one carries the raw, possibly-None bounds as built
// by BUILD_SLICE, and gets normalized per-target by Indices.
type SlicePayload struct {
	Start, Stop, Step Value
}

func NewSlice(start, stop, step Value) *SlicePayload {
	return &SlicePayload{Start: start, Stop: stop, Step: step}
}

func (p *SlicePayload) ContainsRefs() bool { return false }
func (p *SlicePayload) WalkRefs(func(heap.Ref)) {}

// Indices normalizes (start, stop, step) against a sequence of the given
// length, following the same rules as Python's slice.indices(). step == 0 is
// rejected by the caller before Indices is invoked (it is a ValueError, not
// something this payload can signal on its own).
func Indices(start, stop, step, length int) (int, int, int) {
	if step == 0 {
		step = 1
	}
	if step > 0 {
		if start < 0 {
			start += length
			if start < 0 {
				start = 0
			}
		} else if start > length {
			start = length
		}
		if stop < 0 {
			stop += length
			if stop < 0 {
				stop = 0
			}
		} else if stop > length {
			stop = length
		}
	} else {
		if start < 0 {
			start += length
			if start < -1 {
				start = -1
			}
		} else if start >= length {
			start = length - 1
		}
		if stop < 0 {
			stop += length
			if stop < -1 {
				stop = -1
			}
		} else if stop >= length {
			stop = length - 1
		}
	}
	return start, stop, step
}
