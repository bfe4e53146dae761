package loader

import (
	"encoding/binary"

	"github.com/openvinotoolkit/npu-plugin-elf/elf"
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

const (
	lo21BitMask = 0x001FFFFF
	b21b26Mask  = 0x07E00000
	addressMask = ^uint32(0x00C00000)
	sliceLength = 2 * 1024 * 1024
)

var multicastMasks = [16]uint16{
	0x0000, 0x0001, 0x0002, 0x0003, 0x0012, 0x0011, 0x0010, 0x0030,
	0x0211, 0x0210, 0x0310, 0x0320, 0x3210, 0x3210, 0x3210, 0x3210,
}

// toDPUMulticast folds a broadcast-style address into its multicast-encoded
// form, scaling the three supplied CMX-slice offsets by the per-tile bits of
// the selected mask. Grounded on to_dpu_multicast in vpux_loader.cpp.
func toDPUMulticast(addr uint32, offset1, offset2, offset3 *uint32) (uint32, error) {
	barePtr := addr & addressMask
	broadcastMask := (addr & ^addressMask) >> 20
	if broadcastMask >= 16 {
		return 0, elferr.RangeErr("relocation: broadcast mask out of range")
	}
	mask := multicastMasks[broadcastMask]
	if mask == 0xffff {
		return 0, elferr.RangeErr("relocation: got an invalid multicast mask")
	}

	baseMask := uint32(mask&0xf) << 20
	if offset1 != nil {
		*offset1 *= uint32(mask>>4) & 0xf
	}
	if offset2 != nil {
		*offset2 *= uint32(mask>>8) & 0xf
	}
	if offset3 != nil {
		*offset3 *= uint32(mask>>12) & 0xf
	}

	return barePtr | baseMask, nil
}

// toDPUMulticastBase calls toDPUMulticast with no offsets to scale.
func toDPUMulticastBase(addr uint32) (uint32, error) {
	var o1, o2, o3 uint32
	return toDPUMulticast(addr, &o1, &o2, &o3)
}

// patchFunc applies one relocation formula to target, given the resolved
// symbol value and the entry's addend.
type patchFunc func(target []byte, symVal uint64, symSize uint64, addend int64) error

func load32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }
func store32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func load64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }
func store64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func need(target []byte, n int) error {
	if len(target) < n {
		return elferr.RelocErr("relocation: target has %d bytes, need %d", len(target), n)
	}
	return nil
}

var relocationTable = map[uint32]patchFunc{
	elf.RVPU64: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 8); err != nil {
			return err
		}
		store64(t, symVal+uint64(addend))
		return nil
	},
	elf.RVPU64Or: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 8); err != nil {
			return err
		}
		store64(t, load64(t)|(symVal+uint64(addend)))
		return nil
	},
	elf.RVPU64LShift: func(t []byte, symVal, _ uint64, _ int64) error {
		if err := need(t, 8); err != nil {
			return err
		}
		store64(t, load64(t)<<symVal)
		return nil
	},
	elf.RVPUDisp40RTM: func(t []byte, symVal, symSize uint64, addend int64) error {
		if err := need(t, 8); err != nil {
			return err
		}
		const mask = 0xffffffffff
		maskedAddr := load64(t) & mask
		store64(t, load64(t)|((symVal+uint64(addend)*(maskedAddr&(symSize-1)))&mask))
		return nil
	},
	elf.RVPU32: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		store32(t, uint32(symVal+uint64(addend)))
		return nil
	},
	elf.RVPU32RTM: func(t []byte, symVal, symSize uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		cur := load32(t)
		store32(t, uint32(symVal+uint64(addend)*uint64(cur&uint32(symSize-1))))
		return nil
	},
	elf.RVPU32Sum: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		store32(t, load32(t)+uint32(symVal+uint64(addend)))
		return nil
	},
	elf.RVPU32MulticastBase: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		v, err := toDPUMulticastBase(uint32(symVal + uint64(addend)))
		if err != nil {
			return err
		}
		store32(t, v)
		return nil
	},
	elf.RVPU32MulticastBaseSub: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		v, err := toDPUMulticastBase(uint32(symVal + uint64(addend)))
		if err != nil {
			return err
		}
		store32(t, v-load32(t))
		return nil
	},
	elf.RVPUDisp28MulticastOffset: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		offs := [3]uint32{sliceLength >> 4, sliceLength >> 4, sliceLength >> 4}
		if _, err := toDPUMulticast(uint32(symVal+uint64(addend)), &offs[0], &offs[1], &offs[2]); err != nil {
			return err
		}
		cur := load32(t)
		index := cur >> 4
		if index > 2 {
			return elferr.RelocErr("relocation: multicast offset index %d out of range", index)
		}
		cur &= 0xf
		cur |= offs[index] << 4
		store32(t, cur)
		return nil
	},
	elf.RVPUDisp4MulticastOffsetCmp: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		offs := [3]uint32{sliceLength >> 4, sliceLength >> 4, sliceLength >> 4}
		if _, err := toDPUMulticast(uint32(symVal+uint64(addend)), &offs[0], &offs[1], &offs[2]); err != nil {
			return err
		}
		cur := load32(t)
		index := cur & 0xf
		if index > 2 {
			return elferr.RelocErr("relocation: multicast offset index %d out of range", index)
		}
		cur &= 0xfffffff0
		if offs[index] != 0 {
			cur |= 1
		}
		store32(t, cur)
		return nil
	},
	elf.RVPULo21: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		patch := uint32(symVal+uint64(addend)) & lo21BitMask
		cur := load32(t)
		cur &^= uint32(lo21BitMask)
		cur |= patch
		store32(t, cur)
		return nil
	},
	elf.RVPULo21Sum: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		patch := uint32(symVal+uint64(addend)) & lo21BitMask
		store32(t, load32(t)+patch)
		return nil
	},
	elf.RVPULo21MulticastBase: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		patch := uint32(symVal+uint64(addend)) & lo21BitMask
		v, err := toDPUMulticastBase(patch)
		if err != nil {
			return err
		}
		store32(t, v)
		return nil
	},
	elf.RVPU16LSB17RShift5: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		const mask = 0x0001FFFF
		const lsb16Mask = 0xFFFF
		cur := load32(t)
		cur &^= uint32(lsb16Mask)
		cur |= (uint32(symVal+uint64(addend)) & mask) >> 5
		store32(t, cur)
		return nil
	},
	elf.RVPULo21RShift4: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		patch := (uint32(symVal+uint64(addend)) & lo21BitMask) >> 4
		cur := load32(t)
		cur &^= uint32(lo21BitMask)
		cur |= patch
		store32(t, cur)
		return nil
	},
	elf.RVPUCMXLocalRShift5: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		tileSelectMask := ^uint32(b21b26Mask)
		patch := (uint32(symVal+uint64(addend)) & tileSelectMask) >> 5
		store32(t, patch)
		return nil
	},
	elf.RVPU32BitOrB21B26Unset: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		unset := ^uint32(b21b26Mask)
		patch := uint32(symVal+uint64(addend)) & unset
		store32(t, load32(t)|patch)
		return nil
	},
	elf.RVPU64BitOrB21B26Unset: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 8); err != nil {
			return err
		}
		unset := ^uint64(b21b26Mask)
		patch := (symVal + uint64(addend)) & unset
		store64(t, load64(t)|patch)
		return nil
	},
	elf.RVPU16LSB17RShift5LShift16: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		const mask = 0x0001FFFF
		const msb16Mask = 0xFFFF0000
		cur := load32(t)
		cur &^= uint32(msb16Mask)
		cur |= ((uint32(symVal+uint64(addend)) & mask) >> 5) << 16
		store32(t, cur)
		return nil
	},
	elf.RVPU16LSB17RShift5LShiftCustom: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 4); err != nil {
			return err
		}
		const mask = 0x0001FFFF
		const preemptionMask = 0xFFFE4000
		cur := load32(t)
		cur &^= uint32(preemptionMask)
		src := (uint32(symVal+uint64(addend)) & mask) >> 5
		converted := (src &^ 1) << 16
		converted |= (src & 1) << 14
		cur |= converted
		store32(t, cur)
		return nil
	},
	elf.RVPU32BitOrB21B26UnsetHigh16: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 2); err != nil {
			return err
		}
		unset := ^uint32(b21b26Mask)
		patch := uint32(symVal+uint64(addend)) & unset
		cur := binary.LittleEndian.Uint16(t)
		binary.LittleEndian.PutUint16(t, cur|uint16(patch>>16))
		return nil
	},
	elf.RVPU32BitOrB21B26UnsetLow16: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 2); err != nil {
			return err
		}
		unset := ^uint32(b21b26Mask)
		patch := uint32(symVal+uint64(addend)) & unset
		cur := binary.LittleEndian.Uint16(t)
		binary.LittleEndian.PutUint16(t, cur|uint16(patch&0xFFFF))
		return nil
	},
	// RVPUHigh27BitOr is a SUPPLEMENT relocation (present in
	// original_source but not in spec.md's table): DMA-accelerator 27-bit
	// tile-unset-and-shift, applied to a 64-bit target.
	elf.RVPUHigh27BitOr: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 8); err != nil {
			return err
		}
		unsetTile := (symVal + uint64(addend)) &^ 0x00E00000
		patch := (unsetTile >> 4) & (0x7FFFFFFF >> 4)
		store64(t, load64(t)|(patch<<37))
		return nil
	},
	elf.RVPU16Sum: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 2); err != nil {
			return err
		}
		cur := binary.LittleEndian.Uint16(t)
		binary.LittleEndian.PutUint16(t, cur+uint16(symVal+uint64(addend)))
		return nil
	},
	elf.RVPU64Mult: func(t []byte, symVal, _ uint64, _ int64) error {
		if err := need(t, 8); err != nil {
			return err
		}
		store64(t, load64(t)*symVal)
		return nil
	},
	elf.RVPU64MultSub: func(t []byte, symVal, _ uint64, addend int64) error {
		if err := need(t, 8); err != nil {
			return err
		}
		store64(t, load64(t)*(uint64(addend)-symVal))
		return nil
	},
}

// applyRelocation dispatches relType against target, returning RelocErr if
// the type has no entry in the table.
func applyRelocation(relType uint32, target []byte, symVal, symSize uint64, addend int64) error {
	fn, ok := relocationTable[relType]
	if !ok {
		return elferr.RelocErr("relocation: unknown relocation type %d", relType)
	}
	return fn(target, symVal, symSize, addend)
}
