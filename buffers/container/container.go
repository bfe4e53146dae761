// Package container implements DeviceBufferContainer: the section-index to
// buffer map a VPUXLoader is built from, with the shared/private clone
// semantics described in spec §4.4. Grounded on
// original_source/vpux_elf/loader/{include/vpux_headers,src}/device_buffer_container.{hpp,cpp}.
package container

import (
	"github.com/openvinotoolkit/npu-plugin-elf/buffers"
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

// Info is the per-section bookkeeping entry: BufferDetails plus the buffer
// itself, grounded on buffer_details.hpp.
type Info struct {
	Buffer      buffers.ManagedBuffer
	HasData     bool
	IsShared    bool
	IsProcessed bool
}

// Container holds one Info per section index that the loader has allocated
// or reserved.
type Container struct {
	mgr     buffers.BufferManager
	byIndex map[int]*Info
}

// New returns an empty Container backed by mgr for on-demand device
// allocations (sections with Action::Allocate in the original — NOBITS and
// the like, which need device memory but no file-backed data).
func New(mgr buffers.BufferManager) *Container {
	return &Container{mgr: mgr, byIndex: make(map[int]*Info)}
}

// BuildAllocatedDeviceBuffer allocates a fresh AllocatedDeviceBuffer through
// the container's BufferManager. Grounded on
// DeviceBufferContainer::buildAllocatedDeviceBuffer.
func (c *Container) BuildAllocatedDeviceBuffer(specs buffers.BufferSpecs) (buffers.ManagedBuffer, error) {
	return buffers.NewAllocatedDeviceBuffer(c.mgr, specs)
}

// ReplaceAt unconditionally overwrites (or creates) the Info at index,
// mirroring replaceBufferInfoAtIndex — unlike InitAt, this never errors on
// an existing entry.
func (c *Container) ReplaceAt(index int, info Info) {
	cp := info
	c.byIndex[index] = &cp
}

// InitAt registers a new Info at index. It is a SequenceError to call this
// twice for the same index — the original's safeInitBufferInfoAtIndex
// throws RuntimeError for the analogous condition; spec's taxonomy reserves
// Sequence for "operation invoked out of order", which a double-init is.
func (c *Container) InitAt(index int, info Info) error {
	if _, ok := c.byIndex[index]; ok {
		return elferr.SequenceErr("container: section %d already has a buffer", index)
	}
	cp := info
	c.byIndex[index] = &cp
	return nil
}

// Has reports whether index has a registered Info.
func (c *Container) Has(index int) bool {
	_, ok := c.byIndex[index]
	return ok
}

// At returns the Info for index, or nil if absent.
func (c *Container) At(index int) *Info {
	return c.byIndex[index]
}

// Count returns the number of registered entries.
func (c *Container) Count() int {
	return len(c.byIndex)
}

// Indices returns every registered section index, in ascending order.
func (c *Container) Indices() []int {
	idx := make([]int, 0, len(c.byIndex))
	for i := range c.byIndex {
		idx = append(idx, i)
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && idx[j-1] > idx[j]; j-- {
			idx[j-1], idx[j] = idx[j], idx[j-1]
		}
	}
	return idx
}

// AsSlice returns every registered Info in index order, mirroring
// getBuffersAsVector.
func (c *Container) AsSlice() []*Info {
	idx := make([]int, 0, len(c.byIndex))
	for i := range c.byIndex {
		idx = append(idx, i)
	}
	// simple insertion sort; container sizes are small (section counts).
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && idx[j-1] > idx[j]; j-- {
			idx[j-1], idx[j] = idx[j], idx[j-1]
		}
	}
	out := make([]*Info, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.byIndex[i])
	}
	return out
}

// Clone produces an independent Container: entries marked IsShared keep
// aliasing the same ManagedBuffer (cheap, intentional sharing across loader
// instances), while private entries get a fresh buffer via CreateNew —
// bytes are not copied here; the caller (VPUXLoader.reloadNewBuffers in the
// original) is responsible for re-populating private buffers from the
// backing accessor afterward. Grounded on copyBufferMap.
func (c *Container) Clone() (*Container, error) {
	out := New(c.mgr)
	for idx, info := range c.byIndex {
		if info.IsShared {
			out.byIndex[idx] = &Info{
				Buffer:      info.Buffer,
				HasData:     info.HasData,
				IsShared:    true,
				IsProcessed: info.IsProcessed,
			}
			continue
		}
		fresh, err := info.Buffer.CreateNew()
		if err != nil {
			return nil, elferr.AllocErr("container clone: section %d: %v", idx, err)
		}
		out.byIndex[idx] = &Info{
			Buffer:      fresh,
			HasData:     info.HasData,
			IsShared:    false,
			IsProcessed: false,
		}
	}
	return out, nil
}
