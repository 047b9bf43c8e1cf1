package tracker

import "golang.org/x/exp/constraints"

// orDefault returns v unless it is the zero value, in which case it returns
// def — the "absent config field means apply the default" rule that
// Config.withDefaults uses for the GC watermark fields (spec §6 "any omitted
// field means no limit"; watermark fields instead mean "use the built-in
// default", spelled out once here). AdmitAllocation does not use it; it
// tests each limit against zero directly.
func orDefault[T constraints.Integer](v, def T) T {
	if v == 0 {
		return def
	}
	return v
}
