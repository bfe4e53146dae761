package loader

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/openvinotoolkit/npu-plugin-elf/elf"
)

// sectionSpec describes one section to embed in a test ELF. data == nil with
// noBits == true produces a NOBITS-style section with no file payload;
// data == nil otherwise produces an empty-but-present section.
type sectionSpec struct {
	name    string
	typ     uint32
	flags   uint64
	data    []byte
	noBits  bool
	size    uint64 // only consulted when noBits
	link    uint32
	info    uint32
	entsize uint64
}

// buildELF assembles a minimal but structurally valid little-endian ELF64
// blob out of specs, in order, prefixed by the mandatory null section and
// an auto-generated .shstrtab (section 1). Returns the blob plus the
// resulting index of each spec (shifted by the two synthetic sections).
func buildELF(t *testing.T, specs []sectionSpec) ([]byte, []int) {
	t.Helper()

	names := []string{"", ".shstrtab"}
	for _, s := range specs {
		names = append(names, s.name)
	}
	strtab := []byte{0}
	nameOffsets := make([]uint32, len(names))
	for i, n := range names {
		if i == 0 {
			continue
		}
		nameOffsets[i] = uint32(len(strtab))
		strtab = append(strtab, []byte(n)...)
		strtab = append(strtab, 0)
	}

	const headerSz = 64
	const shdrSz = 64
	shnum := 2 + len(specs) // null + shstrtab + specs
	shoff := uint64(headerSz)
	strtabOff := shoff + uint64(shnum)*shdrSz

	type laidOut struct {
		offset uint64
		size   uint64
	}
	layout := make([]laidOut, len(specs))
	cursor := strtabOff + uint64(len(strtab))
	for i, s := range specs {
		if s.noBits {
			layout[i] = laidOut{offset: 0, size: s.size}
			continue
		}
		layout[i] = laidOut{offset: cursor, size: uint64(len(s.data))}
		cursor += uint64(len(s.data))
	}

	buf := &bytes.Buffer{}
	ident := [16]byte{}
	ident[0], ident[1], ident[2], ident[3] = elf.ELFMAG0, elf.ELFMAG1, elf.ELFMAG2, elf.ELFMAG3
	ident[elf.EIClass] = elf.ELFCLASS64
	ident[elf.EIData] = elf.ELFDATA2LSB
	buf.Write(ident[:])
	w16 := func(v uint16) { binary.Write(buf, binary.LittleEndian, v) }
	w32 := func(v uint32) { binary.Write(buf, binary.LittleEndian, v) }
	w64 := func(v uint64) { binary.Write(buf, binary.LittleEndian, v) }

	w16(elf.ETRel)
	w16(elf.EMNone)
	w32(elf.EVNone)
	w64(0)
	w64(0)
	w64(shoff)
	w32(0)
	w16(headerSz)
	w16(0)
	w16(0)
	w16(shdrSz)
	w16(uint16(shnum))
	w16(1)

	writeShdr := func(name, typ uint32, flags uint64, offset, size uint64, link, info uint32, align, entsize uint64) {
		w32(name)
		w32(typ)
		w64(flags)
		w64(0)
		w64(offset)
		w64(size)
		w32(link)
		w32(info)
		w64(align)
		w64(entsize)
	}

	writeShdr(0, 0, 0, 0, 0, 0, 0, 0, 0)
	writeShdr(nameOffsets[1], elf.SHTStrtab, 0, strtabOff, uint64(len(strtab)), 0, 0, 1, 0)

	indices := make([]int, len(specs))
	for i, s := range specs {
		indices[i] = i + 2
		writeShdr(nameOffsets[i+2], s.typ, s.flags, layout[i].offset, layout[i].size, s.link, s.info, 1, s.entsize)
	}

	buf.Write(strtab)
	for i, s := range specs {
		if s.noBits {
			continue
		}
		if uint64(buf.Len()) != layout[i].offset {
			t.Fatalf("layout drift writing section %d: buf.Len()=%d, want %d", i, buf.Len(), layout[i].offset)
		}
		buf.Write(s.data)
	}

	return buf.Bytes(), indices
}

func encodeSymbol(sym elf.SymbolEntry) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint32(b[0:4], sym.Name)
	b[4] = sym.Info
	b[5] = sym.Other
	binary.LittleEndian.PutUint16(b[6:8], sym.Shndx)
	binary.LittleEndian.PutUint64(b[8:16], sym.Value)
	binary.LittleEndian.PutUint64(b[16:24], sym.Size)
	return b
}

func encodeSymbols(syms []elf.SymbolEntry) []byte {
	out := make([]byte, 0, 24*len(syms))
	for _, s := range syms {
		out = append(out, encodeSymbol(s)...)
	}
	return out
}

func encodeRela(r elf.RelaEntry) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], r.Offset)
	binary.LittleEndian.PutUint64(b[8:16], r.Info)
	binary.LittleEndian.PutUint64(b[16:24], uint64(r.Addend))
	return b
}

func encodeRelas(relas []elf.RelaEntry) []byte {
	out := make([]byte, 0, 24*len(relas))
	for _, r := range relas {
		out = append(out, encodeRela(r)...)
	}
	return out
}
