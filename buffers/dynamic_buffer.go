package buffers

import (
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

// DynamicBuffer is a heap-backed buffer the loader owns outright. It
// over-allocates so the usable region can start at an aligned offset, the
// same trick as the original's mData vector plus pointer bump. Grounded on
// DynamicBuffer in managed_buffer.{hpp,cpp}.
type DynamicBuffer struct {
	specs BufferSpecs
	raw   []byte
	data  []byte // aligned sub-slice of raw, length == specs.Size
}

// NewDynamicBuffer allocates a DynamicBuffer. The usable alignment is
// max(DefaultSafeAlignment, specs.Alignment) — a requested alignment at or
// below the default (including zero) is silently raised to the default;
// only a requested alignment greater than the default must itself be a
// power of two, since that is the only case where the requested value is
// actually the one used.
func NewDynamicBuffer(specs BufferSpecs) (*DynamicBuffer, error) {
	align := specs.Alignment
	if align <= DefaultSafeAlignment {
		align = DefaultSafeAlignment
	} else if !isPowerOfTwo(align) {
		return nil, elferr.RuntimeErr("dynamic buffer: alignment %d is not a power of two", align)
	}

	raw := make([]byte, specs.Size+align-1)
	base := dataAddr(raw)
	aligned := alignUp(uint64(base), align) - uint64(base)

	db := &DynamicBuffer{specs: specs, raw: raw}
	if specs.Size > 0 {
		db.data = raw[aligned : aligned+specs.Size]
	} else {
		db.data = raw[aligned:aligned]
	}
	return db, nil
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func (d *DynamicBuffer) Buffer() DeviceBuffer {
	var cpuAddr uintptr
	if len(d.data) > 0 {
		cpuAddr = dataAddr(d.data)
	}
	return DeviceBuffer{CPUAddr: cpuAddr, VPUAddr: uint64(cpuAddr), Size: d.specs.Size}
}

func (d *DynamicBuffer) Specs() BufferSpecs { return d.specs }
func (d *DynamicBuffer) Lock() error        { return nil }
func (d *DynamicBuffer) Unlock() error      { return nil }

func (d *DynamicBuffer) Load(data []byte) error {
	if err := checkLoadFits(d.specs.Size, data); err != nil {
		return err
	}
	copy(d.data, data)
	return nil
}

func (d *DynamicBuffer) CreateNew() (ManagedBuffer, error) {
	return NewDynamicBuffer(d.specs)
}

// Bytes returns the aligned, size-bounded sub-slice of the buffer's
// over-allocation.
func (d *DynamicBuffer) Bytes() []byte { return d.data }
