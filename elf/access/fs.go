package access

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/openvinotoolkit/npu-plugin-elf/buffers"
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

// FS reads an ELF binary off disk. Every read always allocates and copies —
// a file descriptor has nothing to emplace against — so it only needs a
// BufferFactory, not an EmplacePolicy. Grounded on FSAccessManager.
//
// Reads take an advisory shared flock for their duration via
// golang.org/x/sys/unix, guarding against a concurrent writer truncating or
// rewriting the file underneath an in-flight read.
type FS struct {
	f       *os.File
	size    uint64
	factory BufferFactory
}

// OpenFS opens path for reading. factory defaults to DynamicBufferFactory
// when nil, matching the original's default template argument.
func OpenFS(path string, factory BufferFactory) (*FS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, elferr.AccessErr("fs accessor: unable to access binary file %s: %v", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, elferr.AccessErr("fs accessor: stat %s: %v", path, err)
	}
	if factory == nil {
		factory = DynamicBufferFactory{}
	}
	return &FS{f: f, size: uint64(info.Size()), factory: factory}, nil
}

// Close releases the underlying file descriptor.
func (fs *FS) Close() error {
	return fs.f.Close()
}

func (fs *FS) Size() uint64 { return fs.size }

func (fs *FS) checkBounds(offset, size uint64) error {
	if offset+size > fs.size {
		return elferr.AccessErr("fs accessor: read of %d bytes at offset %d out of bounds (size %d)", size, offset, fs.size)
	}
	return nil
}

func (fs *FS) withReadLock(fn func() error) error {
	if err := unix.Flock(int(fs.f.Fd()), unix.LOCK_SH); err != nil {
		return elferr.AccessErr("fs accessor: flock: %v", err)
	}
	defer unix.Flock(int(fs.f.Fd()), unix.LOCK_UN)
	return fn()
}

func (fs *FS) ReadInternal(offset uint64, specs buffers.BufferSpecs) (buffers.ManagedBuffer, error) {
	if err := fs.checkBounds(offset, specs.Size); err != nil {
		return nil, err
	}
	buf, err := fs.factory.AllocatedBuffer(specs)
	if err != nil {
		return nil, err
	}
	guard, err := buffers.Lock(buf)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	data := make([]byte, specs.Size)
	if err := fs.withReadLock(func() error {
		_, err := fs.f.ReadAt(data, int64(offset))
		return err
	}); err != nil {
		return nil, elferr.AccessErr("fs accessor: read at %d: %v", offset, err)
	}
	if err := buf.Load(data); err != nil {
		return nil, err
	}
	return buf, nil
}

func (fs *FS) ReadExternal(offset uint64, buf buffers.ManagedBuffer) error {
	size := buf.Specs().Size
	if err := fs.checkBounds(offset, size); err != nil {
		return err
	}
	guard, err := buffers.Lock(buf)
	if err != nil {
		return err
	}
	defer guard.Release()

	data := make([]byte, size)
	if err := fs.withReadLock(func() error {
		_, err := fs.f.ReadAt(data, int64(offset))
		return err
	}); err != nil {
		return elferr.AccessErr("fs accessor: read at %d: %v", offset, err)
	}
	return buf.Load(data)
}
