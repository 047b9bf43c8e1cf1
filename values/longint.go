package values

import (
	"math/big"

	"github.com/scinapse-labs/monty/heap"
	"modernc.org/mathutil"
)

// LongIntPayload is an arbitrary-precision integer used once an int64 would
// overflow (spec §4.D). math/big.Int is the underlying representation (no
// third-party package in the pack supplies the integer type itself);
// modernc.org/mathutil — a teacher transitive dependency promoted to direct,
// see SPEC_FULL.md's domain stack table — provides the modular-exponentiation
// helper behind PowMod, which matters once operands are large enough that
// bigfft-backed multiplication (mathutil's own dependency) kicks in
// underneath. GCD uses math/big directly.
type LongIntPayload struct {
	v *big.Int
}

func NewLongInt(v *big.Int) *LongIntPayload { return &LongIntPayload{v: new(big.Int).Set(v)} }

func NewLongIntFromInt64(i int64) *LongIntPayload {
	return &LongIntPayload{v: big.NewInt(i)}
}

func NewLongIntFromDecimal(s string) (*LongIntPayload, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}
	return &LongIntPayload{v: v}, true
}

func (p *LongIntPayload) Big() *big.Int { return p.v }

func (p *LongIntPayload) ContainsRefs() bool      { return false }
func (p *LongIntPayload) WalkRefs(func(heap.Ref)) {}
func (p *LongIntPayload) ComputeHash() uint64 {
	// Fold the big.Int's limbs; exact value doesn't matter, only that equal
	// LongInts hash equal.
	var h uint64 = 14695981039346656037
	for _, w := range p.v.Bits() {
		h ^= uint64(w)
		h *= 1099511628211
	}
	if p.v.Sign() < 0 {
		h ^= 1
	}
	return h
}

func (p *LongIntPayload) Repr() string { return p.v.String() }

// FitsInt64 reports whether the value can be demoted back to an immediate
// Int — relevant when a LongInt arithmetic result shrinks back down, e.g.
// after a floor-division.
func (p *LongIntPayload) FitsInt64() (int64, bool) {
	if p.v.IsInt64() {
		return p.v.Int64(), true
	}
	return 0, false
}

func (p *LongIntPayload) Add(o *LongIntPayload) *LongIntPayload {
	return &LongIntPayload{v: new(big.Int).Add(p.v, o.v)}
}
func (p *LongIntPayload) Sub(o *LongIntPayload) *LongIntPayload {
	return &LongIntPayload{v: new(big.Int).Sub(p.v, o.v)}
}
func (p *LongIntPayload) Mul(o *LongIntPayload) *LongIntPayload {
	return &LongIntPayload{v: new(big.Int).Mul(p.v, o.v)}
}

// PowMod computes p**e mod m using mathutil's big-integer modular
// exponentiation helper, exercised by `pow(a, b, m)`'s three-argument form.
func (p *LongIntPayload) PowMod(e, m *LongIntPayload) *LongIntPayload {
	return &LongIntPayload{v: mathutil.ModPowBigInt(p.v, e.v, m.v)}
}

// GCD computes the greatest common divisor via math/big, exercised by
// `math.gcd` when operands have promoted to LongInt.
func (p *LongIntPayload) GCD(o *LongIntPayload) *LongIntPayload {
	return &LongIntPayload{v: new(big.Int).GCD(nil, nil, new(big.Int).Abs(p.v), new(big.Int).Abs(o.v))}
}

// promoteOverflowAdd, promoteOverflowSub, promoteOverflowMul are int64
// overflow checks for the "eager promotion on overflowing add/sub/mul" rule
// (spec §9, resolved open question: eager for arithmetic, lazy for
// shift/bitwise). The VM does not call them: vm/arithmetic.go applies the
// rule through its own addInt64/subInt64/mulInt64.
func promoteOverflowAdd(a, b int64) (int64, bool) {
	r := a + b
	overflow := (b > 0 && r < a) || (b < 0 && r > a)
	return r, !overflow
}
func promoteOverflowSub(a, b int64) (int64, bool) {
	r := a - b
	overflow := (b < 0 && r < a) || (b > 0 && r > a)
	return r, !overflow
}
func promoteOverflowMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == -1<<63) || (b == -1 && a == -1<<63) {
		return a * b, false
	}
	r := a * b
	return r, r/b == a
}
