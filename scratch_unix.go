//go:build unix

package lmx

import "golang.org/x/sys/unix"

// allocScratch maps an anonymous page for the region so descriptor words
// live at a stable address outside the Go heap for the transaction's
// lifetime. The engine may retain the region's base pointer across the
// whole call, so a heap block the runtime is free to scan mid-call is not
// an option here.
func allocScratch() (*scratchRegion, error) {
	mem, err := unix.Mmap(-1, 0, int(scratchWords*wordSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, WrapError(ErrProblem, err)
	}
	return &scratchRegion{mem: mem, mapped: true}, nil
}

// free releases the region. The owning transaction calls this exactly once
// when it ends.
func (s *scratchRegion) free() {
	if s.mapped && s.mem != nil {
		_ = unix.Munmap(s.mem)
	}
	s.mem = nil
	s.mapped = false
}
