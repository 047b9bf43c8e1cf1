// Package tracker implements Monty's resource tracker (component E): the
// allocation-admission gate the heap consults on every allocate, a
// wall-clock deadline and recursion cap checked periodically by the VM, and
// the GC-trigger policy that decides when a mark-and-sweep pass is worth
// its cost. NoLimit and Limited both satisfy vm.ResourceTracker (and, by
// extension, heap.Admission) structurally — neither this package nor vm
// imports the other directly.
package tracker

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resource-limit configuration a host supplies when starting
// a session (spec §6 "Resource-limit configuration"). A zero field means no
// limit on that dimension, mirroring the spec's "any omitted field means no
// limit" — so the zero Config is exactly NoLimit's configuration.
type Config struct {
	MaxAllocations    uint64        `yaml:"max_allocations"`
	MaxMemoryBytes    uint64        `yaml:"max_memory_bytes"`
	MaxDuration       time.Duration `yaml:"max_duration"`
	MaxRecursionDepth int           `yaml:"max_recursion_depth"`

	// GCWatermark is the live-slot count above which ShouldGC starts voting
	// yes on every opportunity; below it, GC is voted only when allocations
	// since the last pass cross GCEveryAllocations. Zero picks a sensible
	// default (see NewLimited).
	GCWatermark int `yaml:"gc_watermark"`
	// GCEveryAllocations caps how long the tracker goes between GC votes
	// even under the watermark, so a long-running low-memory script still
	// gets occasional cycle collection. Zero picks a sensible default.
	GCEveryAllocations uint64 `yaml:"gc_every_allocations"`
}

// LoadConfig parses a YAML resource-limit document (spec §6). Every field
// is optional; absent keys keep their zero value, i.e. unlimited.
func LoadConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	c.GCWatermark = orDefault(c.GCWatermark, 50_000)
	c.GCEveryAllocations = orDefault(c.GCEveryAllocations, 4_096)
	return c
}
