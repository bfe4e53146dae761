package loader

import (
	"github.com/openvinotoolkit/npu-plugin-elf/buffers"
	"github.com/openvinotoolkit/npu-plugin-elf/elf"
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

// applyRelocationsTo runs every RELA section in indexes against its target
// section, in file order. Grounded on VPUXLoader::applyRelocations.
func (l *Loader) applyRelocationsTo(indexes []int) error {
	for _, relIdx := range indexes {
		if err := l.applyOneRelocationSection(relIdx); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) applyOneRelocationSection(relIdx int) error {
	relSec, err := l.reader.Section(relIdx)
	if err != nil {
		return err
	}
	hdr := relSec.Header()

	targetIdx := int(hdr.Info)
	targetInfo := l.container.At(targetIdx)
	if targetInfo == nil {
		return elferr.RelocErr("loader: relocation section %d targets unallocated section %d", relIdx, targetIdx)
	}
	guard, err := buffers.Lock(targetInfo.Buffer)
	if err != nil {
		return err
	}
	defer guard.Release()
	targetBytes, err := sectionBytes(targetInfo.Buffer)
	if err != nil {
		return err
	}

	var symbols []elf.SymbolEntry
	if hdr.Link == elf.VPURTSymtab {
		symbols = l.runtimeSymTabs
	} else {
		symSec, err := l.reader.Section(int(hdr.Link))
		if err != nil {
			return err
		}
		data, err := symSec.Data()
		if err != nil {
			return err
		}
		symbols, err = elf.DecodeSymbols(data)
		if err != nil {
			return elferr.SectionErr("loader: decode symtab for relocation section %d: %v", relIdx, err)
		}
	}

	data, err := relSec.Data()
	if err != nil {
		return err
	}
	relas, err := elf.DecodeRelas(data)
	if err != nil {
		return elferr.SectionErr("loader: decode relocations for section %d: %v", relIdx, err)
	}

	for i, rela := range relas {
		symIdx := elf.RSym(rela.Info)
		relType := elf.RType(rela.Info)
		if int(symIdx) >= len(symbols) {
			return elferr.RelocErr("loader: relocation %d/%d: symbol index %d out of range", relIdx, i, symIdx)
		}
		sym := symbols[symIdx]
		symVal, err := l.resolveSymbolValue(sym)
		if err != nil {
			return err
		}
		if rela.Offset >= uint64(len(targetBytes)) {
			return elferr.RelocErr("loader: relocation %d/%d: r_offset %d out of bounds", relIdx, i, rela.Offset)
		}
		target := targetBytes[rela.Offset:]
		if err := applyRelocation(relType, target, symVal, sym.Size, rela.Addend); err != nil {
			return elferr.RelocErr("loader: relocation %d/%d: %v", relIdx, i, err)
		}
	}
	return nil
}

// resolveSymbolValue folds a symbol's st_value together with the VPU
// address of the section it names (sym.Shndx). When that section was never
// allocated — a symbol naming a reserved runtime slot, like the CMX base
// address or a barrier FIFO — the section's own type is matched against
// symbolSectionTypes to find the corresponding runtime-symtab override.
// Grounded on the "override mode" branch of VPUXLoader::applyRelocations;
// the original comments "error if index still -1" without implementing the
// check, so returning RelocErr here completes that left-open case rather
// than reproducing it.
func (l *Loader) resolveSymbolValue(sym elf.SymbolEntry) (uint64, error) {
	secIdx := int(sym.Shndx)
	if info := l.container.At(secIdx); info != nil {
		return sym.Value + info.Buffer.Buffer().VPUAddr, nil
	}

	sec, err := l.reader.Section(secIdx)
	if err != nil {
		return 0, elferr.RelocErr("loader: symbol names unallocated, unresolvable section %d", secIdx)
	}
	secType := sec.Header().Type
	for i, t := range l.symbolSectionTypes {
		if t != secType {
			continue
		}
		if i >= len(l.runtimeSymTabs) {
			return 0, elferr.RelocErr("loader: no runtime symbol slot %d for section type %x", i, secType)
		}
		return sym.Value + l.runtimeSymTabs[i].Value, nil
	}
	return 0, elferr.RelocErr("loader: could not resolve symbol's section %d to an allocated buffer or runtime override", secIdx)
}

// ApplyJitRelocations runs every JIT-flagged RELA section against its
// target, resolving symbols positionally against the caller's current
// input/output/profiling device addresses instead of an in-ELF symtab.
// Grounded on VPUXLoader::applyJitRelocations; called once per inference
// dispatch, after Load, whenever the caller's actual buffer addresses are
// known.
func (l *Loader) ApplyJitRelocations(inputs, outputs, profs []buffers.DeviceBuffer) error {
	for _, relIdx := range l.jitRelocations {
		if err := l.applyOneJitRelocationSection(relIdx, inputs, outputs, profs); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) applyOneJitRelocationSection(relIdx int, inputs, outputs, profs []buffers.DeviceBuffer) error {
	relSec, err := l.reader.Section(relIdx)
	if err != nil {
		return err
	}
	hdr := relSec.Header()
	if hdr.Link == elf.VPURTSymtab {
		return elferr.RelocErr("loader: jit relocation section %d cannot target the runtime symtab", relIdx)
	}

	targetIdx := int(hdr.Info)
	targetInfo := l.container.At(targetIdx)
	if targetInfo == nil {
		return elferr.RelocErr("loader: jit relocation section %d targets unallocated section %d", relIdx, targetIdx)
	}
	guard, err := buffers.Lock(targetInfo.Buffer)
	if err != nil {
		return err
	}
	defer guard.Release()
	targetBytes, err := sectionBytes(targetInfo.Buffer)
	if err != nil {
		return err
	}

	symSec, err := l.reader.Section(int(hdr.Link))
	if err != nil {
		return err
	}
	symHdr := symSec.Header()

	var userAddrs []buffers.DeviceBuffer
	switch {
	case symHdr.Flags&elf.VPUSHFUserInput != 0:
		userAddrs = inputs
	case symHdr.Flags&elf.VPUSHFUserOutput != 0:
		userAddrs = outputs
	case symHdr.Flags&elf.VPUSHFProfOutput != 0:
		userAddrs = profs
	default:
		return elferr.RelocErr("loader: jit relocation section %d's symtab has no user-io role flag", relIdx)
	}

	data, err := relSec.Data()
	if err != nil {
		return err
	}
	relas, err := elf.DecodeRelas(data)
	if err != nil {
		return elferr.SectionErr("loader: decode jit relocations for section %d: %v", relIdx, err)
	}

	for i, rela := range relas {
		symIdx := elf.RSym(rela.Info)
		relType := elf.RType(rela.Info)
		if symIdx == 0 || int(symIdx)-1 >= len(userAddrs) {
			return elferr.RelocErr("loader: jit relocation %d/%d: symbol index %d out of range for %d user buffers", relIdx, i, symIdx, len(userAddrs))
		}
		addr := userAddrs[symIdx-1]
		if rela.Offset >= uint64(len(targetBytes)) {
			return elferr.RelocErr("loader: jit relocation %d/%d: r_offset %d out of bounds", relIdx, i, rela.Offset)
		}
		target := targetBytes[rela.Offset:]
		if err := applyRelocation(relType, target, addr.VPUAddr, addr.Size, rela.Addend); err != nil {
			return elferr.RelocErr("loader: jit relocation %d/%d: %v", relIdx, i, err)
		}
	}
	return nil
}
