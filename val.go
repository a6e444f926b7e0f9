package lmx

import "unsafe"

// Val is the unit of zero-copy exchange across the engine boundary: a
// size+address descriptor occupying two machine words, size first. A Val
// never owns the memory it references.
//
// Two flavors exist. A caller-provided Val (built with Wrap) references a
// buffer the caller allocated; the caller must keep it alive and unchanged
// for the duration of the engine call it is passed to. An engine-provided
// Val references memory inside the engine's mapped region and stays valid
// until the next mutating operation on the same transaction or cursor, or
// until the transaction ends, whichever comes first. Dereferencing an
// engine-provided Val past its window is the critical misuse this layer
// guards against at its higher-level surfaces.
type Val struct {
	Size uintptr
	Base unsafe.Pointer
}

// Wrap builds a caller-provided descriptor over b without copying. A
// zero-length slice, nil or not, collapses to the zero descriptor: the
// boundary does not distinguish an empty value from an absent one, and
// IsNil holds for both.
func Wrap(b []byte) Val {
	if len(b) == 0 {
		return Val{}
	}
	return Val{Size: uintptr(len(b)), Base: unsafe.Pointer(&b[0])}
}

// Bytes returns a zero-copy view of the referenced memory. The view
// inherits the descriptor's validity window.
func (v Val) Bytes() []byte {
	if v.Base == nil {
		return nil
	}
	return unsafe.Slice((*byte)(v.Base), v.Size)
}

// Copy returns a heap copy of the referenced memory, detached from any
// validity window.
func (v Val) Copy() []byte {
	if v.Base == nil {
		return nil
	}
	out := make([]byte, v.Size)
	copy(out, v.Bytes())
	return out
}

// IsNil reports whether the descriptor references nothing.
func (v Val) IsNil() bool {
	return v.Base == nil
}

// wordSize is the machine word size; a Val spans two words.
const wordSize = unsafe.Sizeof(uintptr(0))
