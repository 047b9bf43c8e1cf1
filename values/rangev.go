package values

import "github.com/scinapse-labs/monty/heap"

// RangePayload is an immutable arithmetic progression. Unlike a tuple it
// never contains heap references (its bounds are plain int64 fields, never
// promoted to LongInt; NewRange accepts only int64 bounds).
type RangePayload struct {
	Start, Stop, Step int64
}

func NewRange(start, stop, step int64) *RangePayload {
	return &RangePayload{Start: start, Stop: stop, Step: step}
}

func (p *RangePayload) ContainsRefs() bool      { return false }
func (p *RangePayload) WalkRefs(func(heap.Ref)) {}

func (p *RangePayload) Len() int {
	if p.Step > 0 {
		if p.Stop <= p.Start {
			return 0
		}
		return int((p.Stop - p.Start + p.Step - 1) / p.Step)
	}
	if p.Step < 0 {
		if p.Stop >= p.Start {
			return 0
		}
		return int((p.Start - p.Stop - p.Step - 1) / -p.Step)
	}
	return 0
}

func (p *RangePayload) At(idx int) (int64, bool) {
	n := p.Len()
	if idx < 0 || idx >= n {
		return 0, false
	}
	return p.Start + int64(idx)*p.Step, true
}

func (p *RangePayload) Contains(v int64) bool {
	if p.Step > 0 {
		if v < p.Start || v >= p.Stop {
			return false
		}
	} else {
		if v > p.Start || v <= p.Stop {
			return false
		}
	}
	return (v-p.Start)%p.Step == 0
}

func (p *RangePayload) Repr() string {
	return reprRange(p.Start, p.Stop, p.Step)
}

func reprRange(start, stop, step int64) string {
	if step == 1 {
		return "range(" + itoa64(start) + ", " + itoa64(stop) + ")"
	}
	return "range(" + itoa64(start) + ", " + itoa64(stop) + ", " + itoa64(step) + ")"
}

func itoa64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
