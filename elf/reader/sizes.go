package reader

import (
	"github.com/lunixbochs/struc"

	"github.com/openvinotoolkit/npu-plugin-elf/elf"
)

var headerSize, sectionHeaderSize = mustSizes()

func mustSizes() (int, int) {
	h, err := struc.Sizeof(&elf.Header{})
	if err != nil {
		panic(err)
	}
	sh, err := struc.Sizeof(&elf.SectionHeader{})
	if err != nil {
		panic(err)
	}
	return h, sh
}
