// Package access implements the AccessManager abstraction: how the loader
// reads bytes out of an ELF binary, whether that binary lives in memory
// (DDR) or on disk. Grounded on
// original_source/vpux_elf/core/{include/vpux_elf/accessor.hpp,src/accessor.cpp}.
//
// Go has no template specialization, so where the original selects a
// DDRAccessManager<EmplaceLogic, BufferFactory> at compile time, this
// package takes an EmplacePolicy and a BufferFactory as ordinary
// interface values at construction time instead.
package access

import (
	"github.com/openvinotoolkit/npu-plugin-elf/buffers"
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

// Manager is the interface every accessor variant satisfies.
//
// ReadInternal may hand back a buffer that aliases the manager's own
// backing storage (an "emplaced" StaticBuffer) when the policy allows it;
// callers that need their own independently-owned copy must use
// ReadExternal, which always copies into a buffer the caller already owns.
type Manager interface {
	Size() uint64
	ReadInternal(offset uint64, specs buffers.BufferSpecs) (buffers.ManagedBuffer, error)
	ReadExternal(offset uint64, buf buffers.ManagedBuffer) error
}

// EmplacePolicy decides whether a read at addr with the given specs can be
// satisfied by aliasing the source buffer directly instead of copying.
type EmplacePolicy interface {
	CanEmplace(addr uintptr, specs buffers.BufferSpecs) bool
}

// StandardEmplace allows emplacing whenever the target address already
// satisfies the requested alignment — full NPU-access compatible when the
// loader runs on the NPU itself, not when it runs on the host CPU.
// Grounded on DDRStandardEmplace.
type StandardEmplace struct{}

func (StandardEmplace) CanEmplace(addr uintptr, specs buffers.BufferSpecs) bool {
	if specs.Alignment == 0 {
		return true
	}
	if !isPowerOfTwo(specs.Alignment) {
		return false
	}
	return uint64(addr)&(specs.Alignment-1) == 0
}

// AlwaysEmplace always aliases the source directly. Not NPU-access
// compatible; intended for host-only CPU simulation. Grounded on
// DDRAlwaysEmplace.
type AlwaysEmplace struct{}

func (AlwaysEmplace) CanEmplace(uintptr, buffers.BufferSpecs) bool { return true }

// NeverEmplace always copies, pairing with an NPU-access-compatible buffer
// factory. Grounded on DDRNeverEmplace.
type NeverEmplace struct{}

func (NeverEmplace) CanEmplace(uintptr, buffers.BufferSpecs) bool { return false }

func isPowerOfTwo(v uint64) bool { return v != 0 && v&(v-1) == 0 }

// BufferFactory allocates a ManagedBuffer for a read that cannot be
// emplaced, and (for DDR managers) wraps an existing address for one that
// can.
type BufferFactory interface {
	EmplacedBuffer(data []byte, specs buffers.BufferSpecs) (buffers.ManagedBuffer, error)
	AllocatedBuffer(specs buffers.BufferSpecs) (buffers.ManagedBuffer, error)
}

// DynamicBufferFactory always allocates heap-backed buffers. Grounded on
// DynamicBufferFactory.
type DynamicBufferFactory struct{}

func (DynamicBufferFactory) EmplacedBuffer(data []byte, specs buffers.BufferSpecs) (buffers.ManagedBuffer, error) {
	return emplacedStatic(data, specs)
}

func (DynamicBufferFactory) AllocatedBuffer(specs buffers.BufferSpecs) (buffers.ManagedBuffer, error) {
	return buffers.NewDynamicBuffer(specs)
}

// AllocatedDeviceBufferFactory always allocates through an external
// BufferManager. Grounded on AllocatedDeviceBufferFactory.
type AllocatedDeviceBufferFactory struct {
	Mgr buffers.BufferManager
}

func (f AllocatedDeviceBufferFactory) EmplacedBuffer(data []byte, specs buffers.BufferSpecs) (buffers.ManagedBuffer, error) {
	return emplacedStatic(data, specs)
}

func (f AllocatedDeviceBufferFactory) AllocatedBuffer(specs buffers.BufferSpecs) (buffers.ManagedBuffer, error) {
	return buffers.NewAllocatedDeviceBuffer(f.Mgr, specs)
}

// HybridBufferFactory allocates device memory for sections an NPU processor
// touches and heap memory for everything else. Grounded on
// HybridBufferFactory.
type HybridBufferFactory struct {
	Mgr buffers.BufferManager
}

func (f HybridBufferFactory) EmplacedBuffer(data []byte, specs buffers.BufferSpecs) (buffers.ManagedBuffer, error) {
	return emplacedStatic(data, specs)
}

func (f HybridBufferFactory) AllocatedBuffer(specs buffers.BufferSpecs) (buffers.ManagedBuffer, error) {
	if hasNPUAccess(specs.ProcFlags) {
		return buffers.NewAllocatedDeviceBuffer(f.Mgr, specs)
	}
	return buffers.NewDynamicBuffer(specs)
}

func hasNPUAccess(flags uint64) bool {
	const execinstr, procDPU, procDMA, procSHAVE = 0x4, 0x10000000, 0x20000000, 0x40000000
	return flags&(execinstr|procDPU|procDMA|procSHAVE) != 0
}

func emplacedStatic(data []byte, specs buffers.BufferSpecs) (buffers.ManagedBuffer, error) {
	if data == nil {
		return nil, elferr.RuntimeErr("emplace: nil buffer")
	}
	return buffers.NewStaticBuffer(data, specs), nil
}
