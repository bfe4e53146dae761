package access

import (
	"github.com/openvinotoolkit/npu-plugin-elf/buffers"
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

// DDR reads out of an in-memory blob. EmplacePolicy decides whether a read
// can alias the blob directly; BufferFactory supplies both the emplaced and
// the allocated-and-copied buffer implementations. Grounded on
// DDRAccessManagerBase / DDRAccessManager<EmplaceLogic, BufferFactory>.
type DDR struct {
	blob    []byte
	policy  EmplacePolicy
	factory BufferFactory
}

// NewDDR wraps blob for reading. policy and factory default to
// StandardEmplace and DynamicBufferFactory, the original's most general
// specialization, when left nil.
func NewDDR(blob []byte, policy EmplacePolicy, factory BufferFactory) (*DDR, error) {
	if blob == nil {
		return nil, elferr.ArgsErr("ddr accessor: nil blob")
	}
	if policy == nil {
		policy = StandardEmplace{}
	}
	if factory == nil {
		factory = DynamicBufferFactory{}
	}
	return &DDR{blob: blob, policy: policy, factory: factory}, nil
}

func (d *DDR) Size() uint64 { return uint64(len(d.blob)) }

func (d *DDR) checkBounds(offset, size uint64) error {
	if offset+size > d.Size() {
		return elferr.AccessErr("ddr accessor: read of %d bytes at offset %d out of bounds (size %d)", size, offset, d.Size())
	}
	return nil
}

func (d *DDR) ReadInternal(offset uint64, specs buffers.BufferSpecs) (buffers.ManagedBuffer, error) {
	if err := d.checkBounds(offset, specs.Size); err != nil {
		return nil, err
	}
	target := d.blob[offset : offset+specs.Size]

	var addr uintptr
	if specs.Size > 0 {
		addr = dataAddrOf(target)
	}
	if d.policy.CanEmplace(addr, specs) {
		return d.factory.EmplacedBuffer(target, specs)
	}

	buf, err := d.factory.AllocatedBuffer(specs)
	if err != nil {
		return nil, err
	}
	guard, err := buffers.Lock(buf)
	if err != nil {
		return nil, err
	}
	defer guard.Release()
	if err := buf.Load(target); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *DDR) ReadExternal(offset uint64, buf buffers.ManagedBuffer) error {
	if err := d.checkBounds(offset, buf.Specs().Size); err != nil {
		return err
	}
	guard, err := buffers.Lock(buf)
	if err != nil {
		return err
	}
	defer guard.Release()
	return buf.Load(d.blob[offset : offset+buf.Specs().Size])
}
