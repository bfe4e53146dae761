package loader

import (
	"encoding/binary"
	"testing"

	"github.com/openvinotoolkit/npu-plugin-elf/elf"
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

func TestApplyRelocationUnknownTypeFails(t *testing.T) {
	target := make([]byte, 8)
	err := applyRelocation(99999, target, 0, 0, 0)
	if !elferr.Is(err, elferr.Reloc) {
		t.Fatalf("unknown reloc type: err = %v, want RelocError", err)
	}
}

func TestRVPU64StoresSumOfSymbolAndAddend(t *testing.T) {
	target := make([]byte, 8)
	if err := applyRelocation(elf.RVPU64, target, 0x1000, 0, 0x20); err != nil {
		t.Fatal(err)
	}
	if got := load64(target); got != 0x1020 {
		t.Fatalf("R_VPU_64 = %#x, want 0x1020", got)
	}
}

func TestRVPU64OrPreservesExistingBits(t *testing.T) {
	target := make([]byte, 8)
	store64(target, 0xFF00)
	if err := applyRelocation(elf.RVPU64Or, target, 0x0001, 0, 0); err != nil {
		t.Fatal(err)
	}
	if got := load64(target); got != 0xFF01 {
		t.Fatalf("R_VPU_64_OR = %#x, want 0xFF01", got)
	}
}

func TestRVPU64LShiftUsesSymbolAsShiftAmount(t *testing.T) {
	target := make([]byte, 8)
	store64(target, 1)
	if err := applyRelocation(elf.RVPU64LShift, target, 4, 0, 0); err != nil {
		t.Fatal(err)
	}
	if got := load64(target); got != 16 {
		t.Fatalf("R_VPU_64_LSHIFT = %d, want 16", got)
	}
}

func TestRVPU32TruncatesTo32Bits(t *testing.T) {
	target := make([]byte, 4)
	if err := applyRelocation(elf.RVPU32, target, 0x100000000, 0, 0x42); err != nil {
		t.Fatal(err)
	}
	if got := load32(target); got != 0x42 {
		t.Fatalf("R_VPU_32 = %#x, want 0x42", got)
	}
}

func TestRVPU32SumAddsOntoExistingValue(t *testing.T) {
	target := make([]byte, 4)
	store32(target, 10)
	if err := applyRelocation(elf.RVPU32Sum, target, 5, 0, 0); err != nil {
		t.Fatal(err)
	}
	if got := load32(target); got != 15 {
		t.Fatalf("R_VPU_32_SUM = %d, want 15", got)
	}
}

func TestRVPUDisp40RTMOrsMaskedScaledAddend(t *testing.T) {
	target := make([]byte, 8)
	store64(target, 0x3) // maskedAddr & (symSize-1): symSize=4 -> mask 3, current low bits = 3
	if err := applyRelocation(elf.RVPUDisp40RTM, target, 0x10, 4, 2); err != nil {
		t.Fatal(err)
	}
	// symVal + addend*(maskedAddr & (symSize-1)) = 0x10 + 2*(3&3) = 0x10+6 = 0x16
	// result ORed onto existing low-40 bits (0x3) -> 0x16 | 0x3 = 0x17
	want := uint64(0x16 | 0x3)
	if got := load64(target) & 0xffffffffff; got != want {
		t.Fatalf("R_VPU_DISP40_RTM = %#x, want %#x", got, want)
	}
}

func TestRVPULo21MasksToLow21Bits(t *testing.T) {
	target := make([]byte, 4)
	store32(target, 0xFFFFFFFF)
	if err := applyRelocation(elf.RVPULo21, target, 0xFFFFFFFF, 0, 0); err != nil {
		t.Fatal(err)
	}
	got := load32(target)
	if got&^uint32(lo21BitMask) != 0xFFFFFFFF&^uint32(lo21BitMask) {
		t.Fatalf("R_VPU_LO_21 touched bits outside the low 21, got %#x", got)
	}
	if got&lo21BitMask != lo21BitMask {
		t.Fatalf("R_VPU_LO_21 low bits = %#x, want %#x", got&lo21BitMask, lo21BitMask)
	}
}

func TestRVPU32BitOrB21B26UnsetHigh16WritesOnlyTopHalfword(t *testing.T) {
	target := make([]byte, 2)
	if err := applyRelocation(elf.RVPU32BitOrB21B26UnsetHigh16, target, 0x12340000, 0, 0); err != nil {
		t.Fatal(err)
	}
	// b21b26Mask clears bits 21-26 of the resolved value before the high
	// halfword of the remainder is ORed into the 16-bit target.
	got := binary.LittleEndian.Uint16(target)
	if got != 0x1014 {
		t.Fatalf("R_VPU_32_BIT_OR...HIGH_16 = %#x, want 0x1014", got)
	}
}

func TestRelocationTargetTooSmallFails(t *testing.T) {
	target := make([]byte, 2)
	err := applyRelocation(elf.RVPU64, target, 0, 0, 0)
	if !elferr.Is(err, elferr.Reloc) {
		t.Fatalf("undersized target: err = %v, want RelocError", err)
	}
}

func TestToDPUMulticastBaseEncodesSelectedMask(t *testing.T) {
	// bit22 set, bit23 clear selects broadcastMask=4 -> multicastMasks[4]=0x0012,
	// whose base nibble (0x2) lands in bit21 of the encoded result.
	addr := uint32(0x00400000)
	got, err := toDPUMulticastBase(addr)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x00200000 {
		t.Fatalf("toDPUMulticastBase(%#x) = %#x, want 0x200000", addr, got)
	}
}

func TestToDPUMulticastZeroMaskIsIdentity(t *testing.T) {
	addr := uint32(0x01000000) // bits 22-23 both clear -> broadcastMask=0, mask=0x0000
	got, err := toDPUMulticastBase(addr)
	if err != nil {
		t.Fatal(err)
	}
	if got != addr {
		t.Fatalf("toDPUMulticastBase(%#x) = %#x, want unchanged %#x", addr, got, addr)
	}
}

func TestRVPU64MultMultipliesInPlace(t *testing.T) {
	target := make([]byte, 8)
	store64(target, 3)
	if err := applyRelocation(elf.RVPU64Mult, target, 7, 0, 0); err != nil {
		t.Fatal(err)
	}
	if got := load64(target); got != 21 {
		t.Fatalf("R_VPU_64_MULT = %d, want 21", got)
	}
}

func TestRVPU16SumWraps16Bit(t *testing.T) {
	target := make([]byte, 2)
	binary.LittleEndian.PutUint16(target, 0xFFFF)
	if err := applyRelocation(elf.RVPU16Sum, target, 2, 0, 0); err != nil {
		t.Fatal(err)
	}
	got := binary.LittleEndian.Uint16(target)
	if got != 1 {
		t.Fatalf("R_VPU_16_SUM = %#x, want 1 (wrapped)", got)
	}
}
