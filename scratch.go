package lmx

import "unsafe"

// scratchWords is the scratch region capacity: four machine words, enough
// for two descriptor pairs, which is the most any single engine call needs
// (key in, value in/out).
const scratchWords = 4

// scratchRegion is a fixed-capacity memory block used to marshal
// descriptors into and out of a single engine call without allocating.
// Each transaction allocates one region at begin and releases it at end;
// a region is never shared between transactions and inherits the
// transaction's one-caller-at-a-time discipline, so no locking is needed.
//
// Layout: words 0-1 hold the key descriptor, words 2-3 the value
// descriptor, matching the engine's size-then-address convention.
type scratchRegion struct {
	mem    []byte
	mapped bool
}

// val returns a pointer to descriptor pair i (0 = key, 1 = value) inside
// the region. The pointer is only meaningful while the region is live.
func (s *scratchRegion) val(i int) *Val {
	return (*Val)(unsafe.Pointer(&s.mem[uintptr(i)*2*wordSize]))
}

// set writes descriptor v into pair i.
func (s *scratchRegion) set(i int, v Val) {
	*s.val(i) = v
}

// clear zeroes both descriptor pairs.
func (s *scratchRegion) clear() {
	for i := range s.mem {
		s.mem[i] = 0
	}
}
