package buffers

// StaticBuffer aliases memory the loader does not own — e.g. a slice handed
// in by the caller for a user input/output section. Lock/Unlock are no-ops;
// there is nothing to page in because the memory is already CPU-resident.
// Grounded on StaticBuffer in managed_buffer.{hpp,cpp}.
type StaticBuffer struct {
	buf   DeviceBuffer
	specs BufferSpecs
	data  []byte
}

// NewStaticBuffer wraps data as a StaticBuffer whose VPU address equals its
// CPU address, matching the original's convention for buffers that have no
// separate device-side mapping.
func NewStaticBuffer(data []byte, specs BufferSpecs) *StaticBuffer {
	var cpuAddr uintptr
	if len(data) > 0 {
		cpuAddr = uintptr(dataAddr(data))
	}
	return &StaticBuffer{
		data:  data,
		specs: specs,
		buf: DeviceBuffer{
			CPUAddr: cpuAddr,
			VPUAddr: uint64(cpuAddr),
			Size:    uint64(len(data)),
		},
	}
}

func (s *StaticBuffer) Buffer() DeviceBuffer  { return s.buf }
func (s *StaticBuffer) Specs() BufferSpecs    { return s.specs }
func (s *StaticBuffer) Lock() error           { return nil }
func (s *StaticBuffer) Unlock() error         { return nil }

func (s *StaticBuffer) Load(data []byte) error {
	if err := checkLoadFits(s.buf.Size, data); err != nil {
		return err
	}
	copy(s.data, data)
	return nil
}

// CreateNew hands back a DynamicBuffer with the same specs: a clone that
// needs a private copy of a statically-aliased section cannot keep
// aliasing foreign memory, so it gets a heap-backed buffer instead,
// matching StaticBuffer::createNew in the original.
func (s *StaticBuffer) CreateNew() (ManagedBuffer, error) {
	return NewDynamicBuffer(s.specs)
}

// Bytes returns the aliased slice directly.
func (s *StaticBuffer) Bytes() []byte { return s.data }
