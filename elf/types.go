// Package elf holds the fixed on-disk layouts of the vendor ELF64 dialect
// consumed by this loader: header, section header, RELA entry, and symbol
// entry. Fields are decoded with github.com/lunixbochs/struc, the same
// struct-tag-driven binary packer the teacher uses for every other
// fixed-layout structure it reads off a byte stream (auxv vectors, trace
// records, reeses headers). No host-type reinterpretation beyond what struc
// itself performs field-by-field.
package elf

const (
	ELFMAG0 = 0x7f
	ELFMAG1 = 'E'
	ELFMAG2 = 'L'
	ELFMAG3 = 'F'

	EIClass   = 4
	EIData    = 5
	EIVersion = 6

	ELFCLASS64  = 2
	ELFDATA2LSB = 1

	ETRel  = 1
	EMNone = 0
	EVNone = 0
)

// Header is Elf64_Ehdr.
type Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// CheckMagic reports whether Ident starts with the four ELF magic bytes.
func (h *Header) CheckMagic() bool {
	return h.Ident[0] == ELFMAG0 && h.Ident[1] == ELFMAG1 && h.Ident[2] == ELFMAG2 && h.Ident[3] == ELFMAG3
}

// SectionHeader is Elf64_Shdr.
type SectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

// Section header types, standard and vendor.
const (
	SHTNull     = 0
	SHTProgbits = 1
	SHTSymtab   = 2
	SHTStrtab   = 3
	SHTRela     = 4
	SHTHash     = 5
	SHTDynamic  = 6
	SHTNote     = 7
	SHTNobits   = 8
	SHTRel      = 9
	SHTShlib    = 10
	SHTDynsym   = 11
	SHTLoproc   = 0x70000000
	SHTHiproc   = 0x7fffffff
	SHTLouser   = 0x80000000
	SHTHiuser   = 0xffffffff

	VPUSHTNetdesc      = 0x8AAAAAAA
	VPUSHTProf         = VPUSHTNetdesc + 1
	VPUSHTCMXMetadata  = VPUSHTNetdesc + 2
	VPUSHTCMXWorkspace = VPUSHTNetdesc + 3
	VPUSHTPerfMetrics  = VPUSHTNetdesc + 4
	VPUSHTPlatformInfo = VPUSHTNetdesc + 5
)

// Section header flags, standard and vendor (high bits).
const (
	SHFNone      uint64 = 0x0
	SHFWrite     uint64 = 0x1
	SHFAlloc     uint64 = 0x2
	SHFExecinstr uint64 = 0x4
	SHFInfoLink  uint64 = 0x40
	SHFMaskOS    uint64 = 0xff00000
	SHFMaskProc  uint64 = 0xf0000000

	VPUSHFJit        uint64 = 0x100000
	VPUSHFUserInput  uint64 = 0x200000
	VPUSHFUserOutput uint64 = 0x400000
	VPUSHFProfOutput uint64 = 0x800000
	VPUSHFProcDPU    uint64 = 0x10000000
	VPUSHFProcDMA    uint64 = 0x20000000
	VPUSHFProcSHAVE  uint64 = 0x40000000
)

// Special section indices.
const (
	SHNUndef     = 0
	SHNLoreserve = 0xff00
	SHNLoos      = 0xff20
	SHNHios      = 0xff3f
	SHNAbs       = 0xfff1
	SHNCommon    = 0xfff2
	SHNXindex    = 0xffff
	SHNHireserve = 0xffff

	// VPURTSymtab is the reserved sh_link value meaning "use the
	// caller-supplied runtime symbol table instead of an in-ELF SYMTAB".
	VPURTSymtab = SHNLoos
)

// HasMemoryFootprint reports whether a section of the given type has bytes
// backing it inside the ELF file. NOBITS and the two CMX-only vendor types
// never do; the reader must not attempt to fetch their payload.
func HasMemoryFootprint(sectionType uint32) bool {
	switch sectionType {
	case SHTNobits, VPUSHTCMXMetadata, VPUSHTCMXWorkspace:
		return false
	default:
		return true
	}
}

// HasNPUAccess reports whether the flags mark the section as touched by an
// NPU-side processor (DPU/DMA/SHAVE) or containing executable code.
func HasNPUAccess(flags uint64) bool {
	return flags&(SHFExecinstr|VPUSHFProcDPU|VPUSHFProcDMA|VPUSHFProcSHAVE) != 0
}

// RelaEntry is Elf64_Rela.
type RelaEntry struct {
	Offset uint64
	Info   uint64
	Addend int64
}

// RSym extracts the symbol-table index from a packed r_info.
func RSym(info uint64) uint32 { return uint32(info >> 32) }

// RType extracts the relocation type from a packed r_info.
func RType(info uint64) uint32 { return uint32(info) }

// RInfo packs a symbol index and relocation type into r_info.
func RInfo(sym, typ uint32) uint64 { return uint64(sym)<<32 | uint64(typ) }

// SymbolEntry is Elf64_Sym.
type SymbolEntry struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

// STBind extracts the symbol binding attribute from st_info.
func STBind(info uint8) uint8 { return info >> 4 }

// STType extracts the symbol type from st_info.
func STType(info uint8) uint8 { return info & 0xf }

// STInfo packs bind and type into st_info.
func STInfo(bind, typ uint8) uint8 { return (bind << 4) | (typ & 0xf) }

// STVisibility masks visibility down to its two defined bits.
func STVisibility(v uint8) uint8 { return v & 0x3 }

// Relocation type constants (r_info low 32 bits). Grounded on
// original_source/vpux_elf/core/include/vpux_elf/types/vpu_extensions.hpp.
// Naming follows spec.md where the spec names a constant; the doc comment
// on each records the original header's own spelling when it differs (see
// R_VPU_16_LSB_17_RSHIFT_5 below).
const (
	RVPU64                    = 0
	RVPU64Or                  = 1
	RVPUDisp40RTM             = 2
	RVPU64LShift              = 3
	RVPU32                    = 4
	RVPU32RTM                 = 5
	RVPU32Sum                 = 6
	RVPU32MulticastBase       = 7
	RVPU32MulticastBaseSub    = 8
	RVPUDisp28MulticastOffset = 9
	RVPUDisp4MulticastOffsetCmp = 10

	RVPULo21             = 11
	RVPULo21Sum          = 12
	RVPULo21MulticastBase = 13

	// RVPU16LSB17RShift5 is spelled R_VPU_16_LSB_21_RSHIFT_5 in the original
	// header; spec.md names it by the shift amount and the width of the
	// mask actually applied instead. Formula: Dst[15:0] = ((S+A) & 0x1FFFF) >> 5.
	RVPU16LSB17RShift5 = 14

	RVPULo21RShift4        = 15
	RVPUCMXLocalRShift5    = 16
	RVPU32BitOrB21B26Unset = 17
	RVPU64BitOrB21B26Unset = 18

	RVPU16LSB17RShift5LShift16     = 19
	RVPU16LSB17RShift5LShiftCustom = 20

	RVPU32BitOrB21B26UnsetHigh16 = 21
	RVPU32BitOrB21B26UnsetLow16  = 22

	// RVPUHigh27BitOr is a SUPPLEMENT: present in original_source but not
	// named in spec.md's relocation table. DMA-accelerator 27-bit
	// tile-unset-and-shift relocation applied to a 64-bit target.
	RVPUHigh27BitOr = 23

	RVPU16Sum     = 1011
	RVPU64Mult    = 1012
	RVPU64MultSub = 1013
)

// VPUSTTEntry is the reserved symbol type naming the inference entry point.
// Equal to STT_LOOS (10) in the standard ELF symbol-type range.
const VPUSTTEntry = 10

// Fixed runtime-symbol slot indices, index-parallel with a caller-supplied
// []SymbolEntry bound to VPURTSymtab.
const (
	RTSymNNCXMSliceBaseAddr = 0
	RTSymRTMIvar            = 1
	RTSymRTMAct             = 2
	RTSymRTMDMA0            = 3
	RTSymRTMDMA1            = 4
	RTSymFIFOBase           = 5
	RTSymBarriersStart      = 6
	RTSymHWRegister         = 7
)
