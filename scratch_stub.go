//go:build !unix

package lmx

// Heap-backed fallback for platforms without anonymous mmap support.
func allocScratch() (*scratchRegion, error) {
	return &scratchRegion{mem: make([]byte, scratchWords*wordSize)}, nil
}

func (s *scratchRegion) free() {
	s.mem = nil
}
