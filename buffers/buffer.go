// Package buffers implements the ManagedBuffer family: a uniform
// lock/unlock/load/create-new contract over three different backing
// strategies (an alias into memory the loader does not own, a heap-backed
// allocation the loader owns, and device memory owned by an external
// BufferManager). Grounded on
// original_source/vpux_elf/loader/{include/vpux_headers,src}/managed_buffer.{hpp,cpp}.
package buffers

import (
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

// DefaultSafeAlignment is the alignment DynamicBuffer falls back to when the
// caller does not request a coarser one. Mirrors mDefaultSafeAlignment in
// the original DynamicBuffer.
const DefaultSafeAlignment = 64

// SharableBufferEnabled is the BufferSpecs.ProcFlags bit marking a section
// as eligible for cross-inference sharing.
const SharableBufferEnabled uint64 = 1 << 0

// DeviceBuffer is a CPU/VPU address pair with a size, the unit every
// ManagedBuffer hands back from Buffer().
type DeviceBuffer struct {
	CPUAddr uintptr
	VPUAddr uint64
	Size    uint64
}

// BufferSpecs carries the allocation request for a buffer: how many bytes,
// what alignment, and which processor-visibility flags apply.
type BufferSpecs struct {
	Alignment uint64
	Size      uint64
	ProcFlags uint64
}

// IsSharable reports whether the spec's ProcFlags marks the buffer sharable
// across loader instances bound to the same container.
func (s BufferSpecs) IsSharable() bool {
	return s.ProcFlags&SharableBufferEnabled != 0
}

// ManagedBuffer is the common contract every buffer backing strategy
// satisfies. Lock/Unlock bracket any access that needs the backing memory
// paged in or mapped; for backings that need no such dance they are no-ops.
type ManagedBuffer interface {
	Buffer() DeviceBuffer
	Specs() BufferSpecs
	Lock() error
	Unlock() error
	Load(data []byte) error
	// CreateNew returns a fresh, independently-owned buffer with the same
	// specs — used when a clone needs a private copy of a shared section.
	CreateNew() (ManagedBuffer, error)
}

// ByteBacked is implemented by ManagedBuffer variants whose storage is
// addressable Go memory (Static, Dynamic), letting callers that need raw
// bytes — the reader's section-data accessors, test fixtures — get them
// without resorting to unsafe. AllocatedDeviceBuffer deliberately does not
// implement it: its backing memory may not be host-addressable at all.
type ByteBacked interface {
	Bytes() []byte
}

// LockGuard locks buf on construction and releases it with a deferred
// Unlock, mirroring ElfBufferLockGuard's RAII discipline.
type LockGuard struct {
	buf ManagedBuffer
}

// Lock constructs a LockGuard, locking buf immediately.
func Lock(buf ManagedBuffer) (*LockGuard, error) {
	if err := buf.Lock(); err != nil {
		return nil, err
	}
	return &LockGuard{buf: buf}, nil
}

// Release unlocks the guarded buffer. The buffer is unlocked at most once:
// calls after the first are no-ops. Intended to be deferred.
func (g *LockGuard) Release() error {
	if g == nil || g.buf == nil {
		return nil
	}
	err := g.buf.Unlock()
	g.buf = nil
	return err
}

func checkLoadFits(bufSize uint64, data []byte) error {
	if uint64(len(data)) > bufSize {
		return elferr.RuntimeErr("load: %d bytes does not fit in %d-byte buffer", len(data), bufSize)
	}
	return nil
}
