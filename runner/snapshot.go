package runner

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/values"
)

// Snapshot format (spec §6): "compact, position-independent, byte-stable
// within a major version... strings/bytes length-prefixed; integers as
// varints... sets/dicts serialize their entries in insertion order; hash
// tables rebuilt on load." Grounded on the teacher's pkg/fastcgi/params.go
// length-prefixed record style, using encoding/binary's stdlib varint
// helpers in place of that file's bespoke 7-bit length scheme — no
// ecosystem varint codec appears anywhere in the example corpus, so this is
// one of the few places this module reaches for the standard library where
// a third-party library might otherwise have served.
const snapshotMagic = "MNTY"
const snapshotVersion = 1

// payload type tags, stable within a major version (spec §6).
const (
	tagNone byte = iota
	tagEllipsis
	tagBool
	tagInt
	tagFloat
	tagInternStr
	tagInternBytes
	tagInternLongInt
	tagFunction
	tagBuiltin
	tagExternalFunction
	tagRef
	tagUndefined
)

const (
	payloadStr byte = iota
	payloadBytes
	payloadList
	payloadTuple
	payloadDict
	payloadSet
	payloadLongInt
	payloadSlice
	payloadRange
	payloadDataclass
	payloadCell
	payloadObject
	payloadCoroutine
	payloadGather
	payloadClass
	payloadException
	payloadIter
)

type encoder struct{ buf bytes.Buffer }

func (e *encoder) uvarint(v uint64) { var tmp [binary.MaxVarintLen64]byte; n := binary.PutUvarint(tmp[:], v); e.buf.Write(tmp[:n]) }
func (e *encoder) varint(v int64)   { var tmp [binary.MaxVarintLen64]byte; n := binary.PutVarint(tmp[:], v); e.buf.Write(tmp[:n]) }
func (e *encoder) byte_(b byte)     { e.buf.WriteByte(b) }
func (e *encoder) bytesField(b []byte) {
	e.uvarint(uint64(len(b)))
	e.buf.Write(b)
}
func (e *encoder) str(s string) { e.bytesField([]byte(s)) }
func (e *encoder) float(f float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
	e.buf.Write(tmp[:])
}
func (e *encoder) bool_(b bool) {
	if b {
		e.byte_(1)
	} else {
		e.byte_(0)
	}
}

type decoder struct {
	b   []byte
	pos int
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.b[d.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("runner: truncated snapshot (uvarint)")
	}
	d.pos += n
	return v, nil
}
func (d *decoder) varint() (int64, error) {
	v, n := binary.Varint(d.b[d.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("runner: truncated snapshot (varint)")
	}
	d.pos += n
	return v, nil
}
func (d *decoder) byte_() (byte, error) {
	if d.pos >= len(d.b) {
		return 0, fmt.Errorf("runner: truncated snapshot (byte)")
	}
	b := d.b[d.pos]
	d.pos++
	return b, nil
}
func (d *decoder) bytesField() ([]byte, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.b) {
		return nil, fmt.Errorf("runner: truncated snapshot (bytes field)")
	}
	out := d.b[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return out, nil
}
func (d *decoder) str() (string, error) {
	b, err := d.bytesField()
	return string(b), err
}
func (d *decoder) float() (float64, error) {
	if d.pos+8 > len(d.b) {
		return 0, fmt.Errorf("runner: truncated snapshot (float)")
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(d.b[d.pos : d.pos+8]))
	d.pos += 8
	return v, nil
}
func (d *decoder) bool_() (bool, error) {
	b, err := d.byte_()
	return b != 0, err
}
func (d *decoder) rawBytes(n int) ([]byte, error) {
	if d.pos+n > len(d.b) {
		return nil, fmt.Errorf("runner: truncated snapshot (raw bytes)")
	}
	out := d.b[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

// Dump serializes every part of a session's dynamic execution graph: the
// interned literal tables, every live heap slot, the global namespace, the
// scheduler's task table and gather joins, and the host-call bookkeeping
// pending/issued hold (spec §4.H "a dump captures the heap, interns, frames,
// and scheduler state"). Program (bytecode, functions, classes) is
// deliberately excluded — it is static compiled data the host re-supplies
// to Load, the same way a non-serializable print callback is re-supplied
// rather than dumped.
func (s *State) Dump() ([]byte, error) {
	e := &encoder{}
	e.buf.WriteString(snapshotMagic)
	e.uvarint(snapshotVersion)
	e.str(s.ID.String())

	dumpInterns(e, s.vm.Interns)
	if err := dumpHeap(e, s.vm.Heap); err != nil {
		return nil, err
	}
	dumpNamespace(e, s.vm.Globals)
	if err := s.dumpScheduler(e); err != nil {
		return nil, err
	}
	s.dumpPendingIssued(e)
	dumpDiagnostics(e, s.diag)

	return e.buf.Bytes(), nil
}

func dumpInterns(e *encoder, in *interns.Interns) {
	snap := in.Dump()
	e.uvarint(uint64(len(snap.Strings)))
	for _, v := range snap.Strings {
		e.str(v)
	}
	e.uvarint(uint64(len(snap.ByteLiterals)))
	for _, v := range snap.ByteLiterals {
		e.str(v)
	}
	e.uvarint(uint64(len(snap.LongInts)))
	for _, v := range snap.LongInts {
		e.str(v)
	}
}

func loadInterns(d *decoder) (*interns.Interns, error) {
	var snap interns.Snapshot
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		v, err := d.str()
		if err != nil {
			return nil, err
		}
		snap.Strings = append(snap.Strings, v)
	}
	n, err = d.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		v, err := d.str()
		if err != nil {
			return nil, err
		}
		snap.ByteLiterals = append(snap.ByteLiterals, v)
	}
	n, err = d.uvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		v, err := d.str()
		if err != nil {
			return nil, err
		}
		snap.LongInts = append(snap.LongInts, v)
	}
	return interns.Load(snap), nil
}

func dumpValue(e *encoder, v values.Value) {
	switch v.Type {
	case values.TypeNone:
		e.byte_(tagNone)
	case values.TypeEllipsis:
		e.byte_(tagEllipsis)
	case values.TypeUndefined:
		e.byte_(tagUndefined)
	case values.TypeBool:
		e.byte_(tagBool)
		e.bool_(v.Data.(bool))
	case values.TypeInt:
		e.byte_(tagInt)
		e.varint(v.Data.(int64))
	case values.TypeFloat:
		e.byte_(tagFloat)
		e.float(v.Data.(float64))
	case values.TypeInternString:
		e.byte_(tagInternStr)
		e.uvarint(uint64(v.Data.(interns.StringID)))
	case values.TypeInternBytes:
		e.byte_(tagInternBytes)
		e.uvarint(uint64(v.Data.(interns.BytesID)))
	case values.TypeInternLongInt:
		e.byte_(tagInternLongInt)
		e.uvarint(uint64(v.Data.(interns.LongIntID)))
	case values.TypeFunction:
		e.byte_(tagFunction)
		e.uvarint(uint64(v.Data.(uint32)))
	case values.TypeExternalFunction:
		e.byte_(tagExternalFunction)
		e.uvarint(uint64(v.Data.(interns.StringID)))
	case values.TypeBuiltin:
		e.byte_(tagBuiltin)
		kind, arg := v.Builtin()
		e.uvarint(uint64(kind))
		e.uvarint(uint64(arg))
	case values.TypeRef:
		e.byte_(tagRef)
		e.uvarint(uint64(v.Ref()))
	default:
		e.byte_(tagNone)
	}
}

func loadValue(d *decoder) (values.Value, error) {
	tag, err := d.byte_()
	if err != nil {
		return values.Value{}, err
	}
	switch tag {
	case tagNone:
		return values.None(), nil
	case tagEllipsis:
		return values.EllipsisV(), nil
	case tagUndefined:
		return values.Undefined, nil
	case tagBool:
		b, err := d.bool_()
		return values.Bool(b), err
	case tagInt:
		i, err := d.varint()
		return values.Int(i), err
	case tagFloat:
		f, err := d.float()
		return values.Float(f), err
	case tagInternStr:
		n, err := d.uvarint()
		return values.InternStr(interns.StringID(n)), err
	case tagInternBytes:
		n, err := d.uvarint()
		return values.InternBytesV(interns.BytesID(n)), err
	case tagInternLongInt:
		n, err := d.uvarint()
		return values.InternLongIntV(interns.LongIntID(n)), err
	case tagFunction:
		n, err := d.uvarint()
		return values.FunctionV(uint32(n)), err
	case tagExternalFunction:
		n, err := d.uvarint()
		return values.ExternalFunctionV(interns.StringID(n)), err
	case tagBuiltin:
		k, err := d.uvarint()
		if err != nil {
			return values.Value{}, err
		}
		a, err := d.uvarint()
		return values.BuiltinV(values.BuiltinKind(k), uint32(a)), err
	case tagRef:
		n, err := d.uvarint()
		return values.RefV(heap.Ref(n)), err
	default:
		return values.Value{}, fmt.Errorf("runner: unknown value tag %d", tag)
	}
}

func dumpValueSlice(e *encoder, vs []values.Value) {
	e.uvarint(uint64(len(vs)))
	for _, v := range vs {
		dumpValue(e, v)
	}
}

func loadValueSlice(d *decoder) ([]values.Value, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]values.Value, n)
	for i := range out {
		out[i], err = loadValue(d)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// dumpHeap writes every slot from 1 up to SlotCount in order: a live marker
// plus tagged payload, or a free marker for a gap left by a slot already
// collected when the dump was taken (spec §6 "heap slots with payloads and
// refcounts... hash tables are rebuilt on load, not the bucket layout
// itself"). The empty-tuple singleton's slot id is recorded separately so
// Load can re-arm heap.Heap.SetEmptyTuple without guessing which slot it
// was.
func dumpHeap(e *encoder, h *heap.Heap) error {
	live := make(map[heap.Ref]int32, h.LiveSlots())
	h.ForEachLive(func(id heap.Ref, payload heap.Payload, refcount int32) {
		live[id] = refcount
	})

	e.uvarint(uint64(h.SlotCount()))
	for id := heap.Ref(1); int(id) < h.SlotCount(); id++ {
		refcount, ok := live[id]
		if !ok {
			e.byte_(0)
			continue
		}
		e.byte_(1)
		e.uvarint(uint64(refcount))
		if err := dumpPayload(e, h.Get(id)); err != nil {
			return err
		}
	}
	return nil
}

func loadHeap(d *decoder, in *interns.Interns) (*heap.Heap, error) {
	h := heap.New()
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	for id := heap.Ref(1); uint64(id) < n; id++ {
		marker, err := d.byte_()
		if err != nil {
			return nil, err
		}
		if marker == 0 {
			h.MarkFree(id)
			continue
		}
		refcount, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		payload, err := loadPayload(d)
		if err != nil {
			return nil, err
		}
		h.RestoreSlot(id, payload, int32(refcount))
	}

	// Nested-ref-keyed dict/set indices couldn't be rebuilt while sibling
	// slots might still be missing; now that every slot is live, rebuild
	// them all in one pass using content-derived hashing (py_eq's bit-
	// identical byte/str/int/tuple hashing needs no heap state beyond what
	// is already restored).
	hashFn := func(v values.Value) (uint64, bool) { return values.Env{Heap: h, Interns: in}.Hash(v) }
	h.ForEachLive(func(id heap.Ref, payload heap.Payload, refcount int32) {
		switch p := payload.(type) {
		case *values.DictPayload:
			p.RebuildIndex(hashFn)
		case *values.SetPayload:
			p.RebuildIndex(hashFn)
		}
	})
	return h, nil
}

// dumpPayload writes one heap slot's concrete payload behind its tag.
// Dict/Set entries are dumped in Entries order (tombstones already
// stripped by Items()/Members()) so Load sees exactly the insertion order
// spec §6 requires; the hash index itself is rebuilt, never dumped.
func dumpPayload(e *encoder, payload heap.Payload) error {
	switch p := payload.(type) {
	case *values.StrPayload:
		e.byte_(payloadStr)
		e.str(p.Value())
	case *values.BytesPayload:
		e.byte_(payloadBytes)
		e.bytesField(p.Value())
	case *values.ListPayload:
		e.byte_(payloadList)
		dumpValueSlice(e, p.Elems)
	case *values.TuplePayload:
		e.byte_(payloadTuple)
		dumpValueSlice(e, p.Elems)
	case *values.DictPayload:
		e.byte_(payloadDict)
		items := p.Items()
		e.uvarint(uint64(len(items)))
		for _, it := range items {
			dumpValue(e, it.Key)
			dumpValue(e, it.Val)
		}
		e.bool_(p.ContainsRefs())
	case *values.SetPayload:
		e.byte_(payloadSet)
		members := p.Members()
		e.uvarint(uint64(len(members)))
		for _, m := range members {
			dumpValue(e, m)
		}
		e.bool_(p.ContainsRefs())
	case *values.LongIntPayload:
		e.byte_(payloadLongInt)
		e.str(p.Repr())
	case *values.SlicePayload:
		e.byte_(payloadSlice)
		dumpValue(e, p.Start)
		dumpValue(e, p.Stop)
		dumpValue(e, p.Step)
	case *values.RangePayload:
		e.byte_(payloadRange)
		e.varint(p.Start)
		e.varint(p.Stop)
		e.varint(p.Step)
	case *values.DataclassPayload:
		e.byte_(payloadDataclass)
		e.uvarint(uint64(p.Class))
		dumpValueSlice(e, p.Attrs)
		keys := make([]string, 0, len(p.Extra))
		for k := range p.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.uvarint(uint64(len(keys)))
		for _, k := range keys {
			e.str(k)
			dumpValue(e, p.Extra[k])
		}
	case *values.CellPayload:
		e.byte_(payloadCell)
		dumpValue(e, p.Val)
	case *values.IterPayload:
		e.byte_(payloadIter)
		dumpValue(e, p.Source)
		e.uvarint(uint64(p.Pos))
	case *values.ObjectPayload:
		e.byte_(payloadObject)
		e.str(p.Tag)
	case *values.CoroutinePayload:
		e.byte_(payloadCoroutine)
		e.uvarint(uint64(p.FuncID))
		dumpValueSlice(e, p.Args)
		dumpKwargs(e, p.Kwargs)
		e.bool_(p.Started)
	case *values.GatherPayload:
		e.byte_(payloadGather)
		dumpValueSlice(e, p.Children)
	case *values.ExceptionPayload:
		e.byte_(payloadException)
		dumpException(e, p)
	case *values.ClassPayload:
		e.byte_(payloadClass)
		e.str(p.Name)
		e.uvarint(uint64(len(p.Fields)))
		for _, f := range p.Fields {
			e.str(f)
		}
		e.bool_(p.Frozen)
		keys := make([]string, 0, len(p.Methods))
		for k := range p.Methods {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.uvarint(uint64(len(keys)))
		for _, k := range keys {
			e.str(k)
			dumpValue(e, p.Methods[k])
		}
	default:
		return fmt.Errorf("runner: unknown heap payload type %T", payload)
	}
	return nil
}

func loadPayload(d *decoder) (heap.Payload, error) {
	tag, err := d.byte_()
	if err != nil {
		return nil, err
	}
	switch tag {
	case payloadStr:
		s, err := d.str()
		return values.NewStr(s), err
	case payloadBytes:
		b, err := d.bytesField()
		if err != nil {
			return nil, err
		}
		return values.NewBytes(append([]byte(nil), b...)), nil
	case payloadList:
		elems, err := loadValueSlice(d)
		return values.NewList(elems), err
	case payloadTuple:
		elems, err := loadValueSlice(d)
		return values.NewTuple(elems), err
	case payloadDict:
		n, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		entries := make([]values.DictEntry, n)
		for i := range entries {
			k, err := loadValue(d)
			if err != nil {
				return nil, err
			}
			v, err := loadValue(d)
			if err != nil {
				return nil, err
			}
			entries[i] = values.DictEntry{Key: k, Val: v}
		}
		containsRefs, err := d.bool_()
		if err != nil {
			return nil, err
		}
		return values.RestoreDict(entries, containsRefs), nil
	case payloadSet:
		n, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		entries := make([]values.SetEntry, n)
		for i := range entries {
			k, err := loadValue(d)
			if err != nil {
				return nil, err
			}
			entries[i] = values.SetEntry{Key: k}
		}
		containsRefs, err := d.bool_()
		if err != nil {
			return nil, err
		}
		return values.RestoreSet(entries, containsRefs), nil
	case payloadLongInt:
		s, err := d.str()
		if err != nil {
			return nil, err
		}
		li, ok := values.NewLongIntFromDecimal(s)
		if !ok {
			return nil, fmt.Errorf("runner: invalid long-int literal %q", s)
		}
		return li, nil
	case payloadSlice:
		start, err := loadValue(d)
		if err != nil {
			return nil, err
		}
		stop, err := loadValue(d)
		if err != nil {
			return nil, err
		}
		step, err := loadValue(d)
		if err != nil {
			return nil, err
		}
		return values.NewSlice(start, stop, step), nil
	case payloadRange:
		start, err := d.varint()
		if err != nil {
			return nil, err
		}
		stop, err := d.varint()
		if err != nil {
			return nil, err
		}
		step, err := d.varint()
		if err != nil {
			return nil, err
		}
		return values.NewRange(start, stop, step), nil
	case payloadDataclass:
		classRef, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		attrs, err := loadValueSlice(d)
		if err != nil {
			return nil, err
		}
		n, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		inst := values.NewDataclassInstance(heap.Ref(classRef), attrs)
		for i := uint64(0); i < n; i++ {
			k, err := d.str()
			if err != nil {
				return nil, err
			}
			v, err := loadValue(d)
			if err != nil {
				return nil, err
			}
			inst.SetExtra(k, v)
		}
		return inst, nil
	case payloadCell:
		v, err := loadValue(d)
		return values.NewCell(v), err
	case payloadIter:
		src, err := loadValue(d)
		if err != nil {
			return nil, err
		}
		pos, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		return &values.IterPayload{Source: src, Pos: int(pos)}, nil
	case payloadObject:
		tag, err := d.str()
		return values.NewObject(tag), err
	case payloadCoroutine:
		funcID, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		args, err := loadValueSlice(d)
		if err != nil {
			return nil, err
		}
		kwargs, err := loadKwargs(d)
		if err != nil {
			return nil, err
		}
		started, err := d.bool_()
		if err != nil {
			return nil, err
		}
		c := values.NewCoroutine(uint32(funcID), args, kwargs)
		c.Started = started
		return c, nil
	case payloadGather:
		children, err := loadValueSlice(d)
		return values.NewGather(children), err
	case payloadException:
		exc, err := loadException(d)
		if err != nil {
			return nil, err
		}
		if exc == nil {
			return nil, fmt.Errorf("runner: heap-resident exception payload missing")
		}
		return exc, nil
	case payloadClass:
		name, err := d.str()
		if err != nil {
			return nil, err
		}
		n, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		fields := make([]string, n)
		for i := range fields {
			fields[i], err = d.str()
			if err != nil {
				return nil, err
			}
		}
		frozen, err := d.bool_()
		if err != nil {
			return nil, err
		}
		cls := values.NewClass(name, fields, frozen)
		mn, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < mn; i++ {
			k, err := d.str()
			if err != nil {
				return nil, err
			}
			v, err := loadValue(d)
			if err != nil {
				return nil, err
			}
			cls.Methods[k] = v
		}
		return cls, nil
	default:
		return nil, fmt.Errorf("runner: unknown payload tag %d", tag)
	}
}
