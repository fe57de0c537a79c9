// ==============================================================================================
// FILE: gc/gc.go
// ==============================================================================================
// PACKAGE: gc
// PURPOSE: Mark-sweep tracing collector over the arena of heap-allocated objects the vm creates
//          (lists, dicts, sets, instances, closures, cells). Go already reclaims the underlying
//          memory once nothing references an object, but the host embedding surface wants
//          deterministic, inspectable collection cycles and an allocation budget a hosted script
//          cannot exceed, matching wings' own collector design.
// ==============================================================================================

package gc

import "wings/object"

// Root supplies the live object graph's entry points: vm value stack, call
// frame locals/cells, globals, and anything the host has protected.
type Root interface {
	GCRoots() []object.Object
}

// Collector tracks every object it was told about via Track, and frees
// (drops its own reference to) the ones unreachable from the roots at the
// next Collect.
type Collector struct {
	live          map[object.Object]struct{}
	allocSinceGC  int
	triggerFactor float64
	maxObjects    int
	root          Root

	// memoryError is pre-allocated at startup so raising it during a
	// collection never needs to allocate.
	memoryError object.Object
}

const defaultTriggerFactor = 2.0

func New(root Root, maxObjects int, memoryError object.Object) *Collector {
	factor := defaultTriggerFactor
	return &Collector{
		live:          make(map[object.Object]struct{}),
		triggerFactor: factor,
		maxObjects:    maxObjects,
		root:          root,
		memoryError:   memoryError,
	}
}

func (c *Collector) SetTriggerFactor(f float64) {
	if f > 1.0 {
		c.triggerFactor = f
	}
}

// Track registers a newly allocated heap object with the collector and runs
// a collection cycle once the live count reaches triggerFactor times the
// count the previous collection left (never below 64). Returns the
// preallocated memory-error object if the arena is over its hard cap even
// after collecting; nil otherwise.
func (c *Collector) Track(obj object.Object) object.Object {
	c.live[obj] = struct{}{}
	c.allocSinceGC++

	lastCount := len(c.live) - c.allocSinceGC
	threshold := int(float64(lastCount) * c.triggerFactor)
	if threshold < 64 {
		threshold = 64
	}
	if len(c.live) >= threshold {
		c.Collect()
	}

	if c.maxObjects > 0 && len(c.live) > c.maxObjects {
		c.Collect()
		if len(c.live) > c.maxObjects {
			return c.memoryError
		}
	}
	return nil
}

// Collect performs one mark-sweep pass: marks everything reachable from the
// roots, then drops every tracked object that wasn't marked.
func (c *Collector) Collect() {
	marked := make(map[object.Object]struct{}, len(c.live))
	var stack []object.Object
	stack = append(stack, c.root.GCRoots()...)

	for len(stack) > 0 {
		n := len(stack) - 1
		obj := stack[n]
		stack = stack[:n]
		if obj == nil {
			continue
		}
		if _, seen := marked[obj]; seen {
			continue
		}
		marked[obj] = struct{}{}
		if t, ok := obj.(object.Traceable); ok {
			stack = append(stack, t.Refs()...)
		}
	}

	for obj := range c.live {
		if _, ok := marked[obj]; !ok {
			delete(c.live, obj)
		}
	}
	c.allocSinceGC = 0
}

func (c *Collector) LiveCount() int { return len(c.live) }

// ForceCollect runs an immediate collection cycle, exposed to the host
// embedding surface for deterministic GC control.
func (c *Collector) ForceCollect() { c.Collect() }
