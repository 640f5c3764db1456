// Package unsafehelpers centralises all unavoidable usage of the `unsafe`
// package so the rest of the cache map stays clean and easy to audit. Every
// helper documents its pre/post conditions.
//
// These helpers deliberately step outside the Go memory-safety model for
// zero-copy access to memory-mapped cache regions. They are not part of the
// public API and may change without notice. Misuse leads to subtle data
// races or a corrupted mapped file.
//
// All functions are cgo-free and go:linkname-free.
package unsafehelpers

import "unsafe"

/* -------------------------------------------------------------------------
   1. Zero-copy string/[]byte conversions
   ------------------------------------------------------------------------- */

// BytesToString converts a mutable byte slice to an immutable string without
// allocating. The caller must guarantee b is never modified for the
// lifetime of the resulting string.
//
// Nothing in the module calls it at present: the managers copy keys read
// out of a mapped region into fresh strings.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// StringToBytes re-interprets string data as a byte slice. The slice MUST
// remain read-only.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

/* -------------------------------------------------------------------------
   2. Generic pointer <-> slice helpers over mapped memory
   ------------------------------------------------------------------------- */

// PtrSlice converts an arbitrary *T pointer + element count into a []T
// without copying, for viewing a run of fixed-size mapped records as a
// slice. The region header's JVM-ID slot table is read through
// ByteSliceFrom instead, so nothing calls it at present.
func PtrSlice[T any](ptr *T, n int) []T {
	if n == 0 {
		return nil
	}
	return unsafe.Slice(ptr, n)
}

// ByteSliceFrom returns a []byte view of raw memory starting at ptr with the
// given length. Caller must ensure the underlying mapping is at least
// length bytes past ptr.
func ByteSliceFrom(ptr unsafe.Pointer, length uintptr) []byte {
	if length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), length)
}

// AtBase returns a pointer to base+offset, reinterpreted as *T. Used by
// internal/region to address into a mapped file by byte
// offset without going through a bounds-checked slice index on every field
// access.
func AtBase[T any](base unsafe.Pointer, offset uintptr) *T {
	return (*T)(unsafe.Add(base, offset))
}

/* -------------------------------------------------------------------------
   3. Alignment helpers
   ------------------------------------------------------------------------- */

// AlignUp rounds x up to the nearest multiple of align (which must be a
// power of two). Every cache item and every segment allocation is aligned
// this way before being committed.
func AlignUp(x, align uintptr) uintptr {
	return (x + align - 1) &^ (align - 1)
}

// IsPowerOfTwo returns true if x is a power of two (exactly one bit set).
func IsPowerOfTwo(x uintptr) bool {
	return x != 0 && (x&(x-1)) == 0
}
