package loader

import (
	"github.com/openvinotoolkit/npu-plugin-elf/buffers"
	"github.com/openvinotoolkit/npu-plugin-elf/internal/elferr"
)

// Clone produces an independent Loader sharing the Reader (stateless once
// constructed, so safe to hand to more than one Loader) and every
// read-only, shared section's buffer, while giving every private,
// data-bearing section its own freshly allocated and reloaded copy.
// Link-time relocations are re-applied against the clone's private
// buffers so it ends up byte-identical to a Loader built fresh against the
// same ELF. Grounded on VPUXLoader's copy constructor and reloadNewBuffers
// in vpux_loader.cpp.
//
// Clone must only be called after Load has completed; cloning an
// unloaded Loader raises SequenceError, mirroring the original's implicit
// assumption that the container it copies is already populated.
func (l *Loader) Clone() (*Loader, error) {
	if !l.loaded {
		return nil, elferr.SequenceErr("loader: clone requires a previously loaded loader")
	}

	clonedContainer, err := l.container.Clone()
	if err != nil {
		return nil, err
	}

	clone := &Loader{
		bufferManager:            l.bufferManager,
		reader:                   l.reader,
		container:                clonedContainer,
		runtimeSymTabs:           l.runtimeSymTabs,
		relocationSectionIndexes: append([]int(nil), l.relocationSectionIndexes...),
		jitRelocations:           append([]int(nil), l.jitRelocations...),
		userInputs:               append([]buffers.DeviceBuffer(nil), l.userInputs...),
		userOutputs:              append([]buffers.DeviceBuffer(nil), l.userOutputs...),
		profOutputs:              append([]buffers.DeviceBuffer(nil), l.profOutputs...),
		sectionMap:               l.sectionMap,
		symTabOverrideMode:       l.symTabOverrideMode,
		explicitAllocations:      l.explicitAllocations,
		loaded:                   l.loaded,
		symbolSectionTypes:       l.symbolSectionTypes,
	}

	if err := clone.reloadPrivateBuffers(); err != nil {
		return nil, err
	}
	if err := clone.applyRelocationsTo(clone.relocationSectionIndexes); err != nil {
		return nil, err
	}
	return clone, nil
}

// reloadPrivateBuffers re-populates every private, data-bearing section's
// buffer from the Reader's cached section bytes — the freshly created
// buffer from container.Clone has the right specs but no contents yet.
// Grounded on VPUXLoader::reloadNewBuffers.
func (l *Loader) reloadPrivateBuffers() error {
	for _, idx := range l.container.Indices() {
		info := l.container.At(idx)
		if !info.HasData || info.IsShared {
			continue
		}
		sec, err := l.reader.Section(idx)
		if err != nil {
			return err
		}
		if sec.Header().Size != info.Buffer.Specs().Size {
			return elferr.RuntimeErr("loader: clone: section %d size mismatch between ELF and allocated buffer", idx)
		}
		data, err := sec.Data()
		if err != nil {
			return err
		}
		if err := loadLocked(info.Buffer, data); err != nil {
			return err
		}
	}
	return nil
}

func loadLocked(buf buffers.ManagedBuffer, data []byte) error {
	guard, err := buffers.Lock(buf)
	if err != nil {
		return err
	}
	defer guard.Release()
	return buf.Load(data)
}
