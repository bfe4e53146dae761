package buffers

import "github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"

// AllocatedDeviceBuffer delegates allocation, locking, and copy entirely to
// an external BufferManager — used for sections that must live in actual
// device memory rather than host heap. Grounded on AllocatedDeviceBuffer in
// managed_buffer.{hpp,cpp}.
type AllocatedDeviceBuffer struct {
	mgr   BufferManager
	specs BufferSpecs
	buf   DeviceBuffer
}

// NewAllocatedDeviceBuffer asks mgr to allocate specs and wraps the result.
func NewAllocatedDeviceBuffer(mgr BufferManager, specs BufferSpecs) (*AllocatedDeviceBuffer, error) {
	buf, err := mgr.Allocate(specs)
	if err != nil {
		return nil, elferr.AllocErr("device allocate: %v", err)
	}
	if buf.Size < specs.Size {
		return nil, elferr.AllocErr("device allocate: manager returned %d bytes, wanted %d", buf.Size, specs.Size)
	}
	return &AllocatedDeviceBuffer{mgr: mgr, specs: specs, buf: buf}, nil
}

func (a *AllocatedDeviceBuffer) Buffer() DeviceBuffer { return a.buf }
func (a *AllocatedDeviceBuffer) Specs() BufferSpecs   { return a.specs }
func (a *AllocatedDeviceBuffer) Lock() error          { return a.mgr.Lock(a.buf) }
func (a *AllocatedDeviceBuffer) Unlock() error        { return a.mgr.Unlock(a.buf) }

func (a *AllocatedDeviceBuffer) Load(data []byte) error {
	if err := checkLoadFits(a.buf.Size, data); err != nil {
		return err
	}
	return a.mgr.Copy(a.buf, data)
}

// Deallocate releases the underlying device buffer. The original ties this
// to the C++ destructor; Go callers must call it explicitly when done.
func (a *AllocatedDeviceBuffer) Deallocate() error {
	return a.mgr.Deallocate(a.buf)
}

func (a *AllocatedDeviceBuffer) CreateNew() (ManagedBuffer, error) {
	return NewAllocatedDeviceBuffer(a.mgr, a.specs)
}
