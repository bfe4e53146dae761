// Package reader implements Reader: an eager header-and-section-table
// parse over an access.Manager, with section data fetched lazily and
// cached per section. ELF64 only — the vendor dialect never ships 32-bit
// binaries, so unlike the original's Reader<ELF_Bitness>, this Reader is
// not generic over bitness. Grounded on
// original_source/vpux_elf/core/include/vpux_elf/reader.hpp.
package reader

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"

	"github.com/openvinotoolkit/npu-plugin-elf/buffers"
	"github.com/openvinotoolkit/npu-plugin-elf/elf"
	"github.com/openvinotoolkit/npu-plugin-elf/elf/access"
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

// maxSectionsCount mirrors the original's Coverity-driven sanity cap: every
// value of e_shnum except the maximum representable uint16 is accepted.
const maxSectionsCount = 0xffff - 1

// Section is one entry of the section table, with its name resolved and its
// data buffer fetched lazily on first access.
type Section struct {
	accessor access.Manager
	header   elf.SectionHeader
	name     string
	data     buffers.ManagedBuffer
}

// Header returns the section's raw header.
func (s *Section) Header() elf.SectionHeader { return s.header }

// Name returns the section's resolved name.
func (s *Section) Name() string { return s.name }

// EntriesNum returns how many fixed-size entries the section holds,
// e.g. the RELA or symbol-table entry count. It is a SectionError to call
// this on a section whose sh_entsize is zero.
func (s *Section) EntriesNum() (uint64, error) {
	if s.header.EntSize == 0 {
		return 0, elferr.SectionErr("section %q: sh_entsize=0, not a table of fixed-size entries", s.name)
	}
	return s.header.Size / s.header.EntSize, nil
}

// DataBuffer returns the section's backing ManagedBuffer, reading it on
// first call and caching the result. Sections with no file-backed payload
// (SHT_NOBITS, VPU_SHT_CMX_METADATA, VPU_SHT_CMX_WORKSPACE) return a nil
// buffer and no error.
func (s *Section) DataBuffer() (buffers.ManagedBuffer, error) {
	if s.data != nil {
		return s.data, nil
	}
	if !elf.HasMemoryFootprint(s.header.Type) {
		return nil, nil
	}
	buf, err := s.accessor.ReadInternal(s.header.Offset, buffers.BufferSpecs{
		Alignment: s.header.AddrAlign,
		Size:      s.header.Size,
		ProcFlags: s.header.Flags,
	})
	if err != nil {
		return nil, err
	}
	s.data = buf
	return buf, nil
}

// Data returns the section's raw bytes, reading and caching them on first
// call.
func (s *Section) Data() ([]byte, error) {
	buf, err := s.DataBuffer()
	if err != nil || buf == nil {
		return nil, err
	}
	guard, err := buffers.Lock(buf)
	if err != nil {
		return nil, err
	}
	defer guard.Release()
	bb, ok := buf.(buffers.ByteBacked)
	if !ok {
		return nil, elferr.RuntimeErr("section %q: buffer has no host-addressable bytes", s.name)
	}
	return bb.Bytes(), nil
}

// Reader eagerly parses the ELF header and section table out of an
// access.Manager, resolving section names, and lazily fetches each
// section's payload on request.
type Reader struct {
	accessor access.Manager
	header   elf.Header
	shdrs    []elf.SectionHeader
	names    []byte
	cache    map[int]*Section
}

// New parses accessor's ELF64 header and section table, validating the
// structure the same way the original constructor does before anything
// else is trusted.
func New(accessor access.Manager) (*Reader, error) {
	if accessor == nil {
		return nil, elferr.ArgsErr("reader: nil AccessManager")
	}

	r := &Reader{accessor: accessor, cache: make(map[int]*Section)}

	headerBytes := make([]byte, headerSize)
	buf := buffers.NewStaticBuffer(headerBytes, buffers.BufferSpecs{Size: uint64(len(headerBytes))})
	if err := accessor.ReadExternal(0, buf); err != nil {
		return nil, err
	}
	if err := struc.UnpackWithOrder(bytes.NewReader(headerBytes), &r.header, binary.LittleEndian); err != nil {
		return nil, elferr.HeaderErr("reader: unpack ELF header: %v", err)
	}

	if !r.header.CheckMagic() {
		return nil, elferr.HeaderErr("reader: incorrect ELF magic")
	}
	if uint64(r.header.Shentsize) != uint64(sectionHeaderSize) {
		return nil, elferr.HeaderErr("reader: mismatch between expected and received section header size")
	}
	if r.header.Shoff < uint64(headerSize) {
		return nil, elferr.HeaderErr("reader: section table overlaps ELF header")
	}
	if r.header.Shnum == 0 {
		return nil, elferr.HeaderErr("reader: no sections detected, ELF blob without sections is unsupported")
	}
	if r.header.Shstrndx >= r.header.Shnum {
		return nil, elferr.HeaderErr("reader: section name index exceeds section table")
	}

	shBytes := make([]byte, int(r.header.Shnum)*sectionHeaderSize)
	shBuf := buffers.NewStaticBuffer(shBytes, buffers.BufferSpecs{Size: uint64(len(shBytes))})
	if err := accessor.ReadExternal(r.header.Shoff, shBuf); err != nil {
		return nil, err
	}
	r.shdrs = make([]elf.SectionHeader, r.header.Shnum)
	rd := bytes.NewReader(shBytes)
	for i := range r.shdrs {
		if err := struc.UnpackWithOrder(rd, &r.shdrs[i], binary.LittleEndian); err != nil {
			return nil, elferr.HeaderErr("reader: unpack section header %d: %v", i, err)
		}
	}

	if r.header.Shstrndx != 0 {
		namesHdr := r.shdrs[r.header.Shstrndx]
		if namesHdr.Offset+namesHdr.Size > accessor.Size() {
			return nil, elferr.HeaderErr("reader: section name size exceeds buffer size")
		}
		r.names = make([]byte, namesHdr.Size)
		namesBuf := buffers.NewStaticBuffer(r.names, buffers.BufferSpecs{Size: namesHdr.Size})
		if err := accessor.ReadExternal(namesHdr.Offset, namesBuf); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Header returns the parsed ELF header.
func (r *Reader) Header() elf.Header { return r.header }

// SectionsNum returns the section count recorded in the ELF header, after
// the same sanity cap the original applies against a malicious e_shnum.
func (r *Reader) SectionsNum() (int, error) {
	if int(r.header.Shnum) > maxSectionsCount {
		return 0, elferr.ArgsErr("reader: invalid e_shnum %d", r.header.Shnum)
	}
	return int(r.header.Shnum), nil
}

// Section returns the section at index, resolving its name and caching the
// *Section wrapper (not its data, which stays lazy) on first access.
func (r *Reader) Section(index int) (*Section, error) {
	if index < 0 || index >= int(r.header.Shnum) {
		return nil, elferr.RangeErr("reader: section index %d out of bounds", index)
	}
	if s, ok := r.cache[index]; ok {
		return s, nil
	}
	hdr := r.shdrs[index]
	name := nameAt(r.names, hdr.Name)
	s := &Section{accessor: r.accessor, header: hdr, name: name}
	r.cache[index] = s
	return s, nil
}

func nameAt(strtab []byte, offset uint32) string {
	if int(offset) >= len(strtab) {
		return ""
	}
	end := int(offset)
	for end < len(strtab) && strtab[end] != 0 {
		end++
	}
	return string(strtab[offset:end])
}
