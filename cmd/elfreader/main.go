// Command elfreader is a read-only inspector for the vendor ELF64 dialect:
// it opens a binary, parses its header and section table, and prints a
// summary. It exercises the accessor/reader layer only — it never invokes
// the loader, so it needs no BufferManager and allocates nothing on any
// device. Grounded on go/cli.go's flag-driven single-command shape.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mgutz/ansi"

	"github.com/openvinotoolkit/npu-plugin-elf/elf"
	"github.com/openvinotoolkit/npu-plugin-elf/elf/access"
	"github.com/openvinotoolkit/npu-plugin-elf/elf/reader"
)

var (
	chType = ansi.ColorCode("cyan")
	chFlag = ansi.ColorCode("yellow")
	chName = ansi.ColorCode("green+b")
	chAddr = ansi.ColorCode("magenta")
)

func colored(color, s string) string {
	if color == "" {
		return s
	}
	return color + s + ansi.Reset
}

func main() {
	relocs := flag.Bool("relocs", false, "dump RELA entries for every relocation section")
	noColor := flag.Bool("nocolor", false, "disable ANSI colors")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <elf>\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if *noColor {
		ansi.DisableColors(true)
		chType, chFlag, chName, chAddr = "", "", "", ""
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(args[0], *relocs); err != nil {
		fmt.Fprintf(os.Stderr, "elfreader: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, dumpRelocs bool) error {
	fs, err := access.OpenFS(path, nil)
	if err != nil {
		return err
	}
	defer fs.Close()

	r, err := reader.New(fs)
	if err != nil {
		return err
	}

	hdr := r.Header()
	fmt.Printf("entry: %s\n", colored(chAddr, fmt.Sprintf("%#x", hdr.Entry)))

	n, err := r.SectionsNum()
	if err != nil {
		return err
	}
	fmt.Printf("%d sections\n", n)
	fmt.Printf("%-4s %-20s %-24s %-10s %-10s\n", "idx", "name", "type", "flags", "size")

	for i := 0; i < n; i++ {
		sec, err := r.Section(i)
		if err != nil {
			return err
		}
		h := sec.Header()
		fmt.Printf("%-4d %s %s %s %-10d\n",
			i,
			colored(chName, padRight(sec.Name(), 20)),
			colored(chType, padRight(sectionTypeName(h.Type), 24)),
			colored(chFlag, padRight(sectionFlagsString(h.Flags), 10)),
			h.Size,
		)
		if dumpRelocs && h.Type == elf.SHTRela {
			if err := dumpRelocations(sec); err != nil {
				return err
			}
		}
	}
	return nil
}

func dumpRelocations(sec *reader.Section) error {
	data, err := sec.Data()
	if err != nil {
		return err
	}
	relas, err := elf.DecodeRelas(data)
	if err != nil {
		return err
	}
	for _, rel := range relas {
		fmt.Printf("    offset=%#x sym=%d type=%s addend=%#x\n",
			rel.Offset, elf.RSym(rel.Info), colored(chType, relocTypeName(elf.RType(rel.Info))), rel.Addend)
	}
	return nil
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + spaces(n-len(s))
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

var sectionTypeNames = map[uint32]string{
	elf.SHTNull:            "NULL",
	elf.SHTProgbits:        "PROGBITS",
	elf.SHTSymtab:          "SYMTAB",
	elf.SHTStrtab:          "STRTAB",
	elf.SHTRela:            "RELA",
	elf.SHTHash:            "HASH",
	elf.SHTDynamic:         "DYNAMIC",
	elf.SHTNote:            "NOTE",
	elf.SHTNobits:          "NOBITS",
	elf.SHTRel:             "REL",
	elf.SHTShlib:           "SHLIB",
	elf.SHTDynsym:          "DYNSYM",
	elf.VPUSHTNetdesc:      "VPU_NETDESC",
	elf.VPUSHTProf:         "VPU_PROF",
	elf.VPUSHTCMXMetadata:  "VPU_CMX_METADATA",
	elf.VPUSHTCMXWorkspace: "VPU_CMX_WORKSPACE",
	elf.VPUSHTPerfMetrics:  "VPU_PERF_METRICS",
	elf.VPUSHTPlatformInfo: "VPU_PLATFORM_INFO",
}

func sectionTypeName(typ uint32) string {
	if name, ok := sectionTypeNames[typ]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%#x)", typ)
}

func sectionFlagsString(flags uint64) string {
	var out string
	add := func(set bool, ch string) {
		if set {
			out += ch
		}
	}
	add(flags&elf.SHFWrite != 0, "W")
	add(flags&elf.SHFAlloc != 0, "A")
	add(flags&elf.SHFExecinstr != 0, "X")
	add(flags&elf.SHFInfoLink != 0, "I")
	add(flags&elf.VPUSHFJit != 0, "J")
	add(flags&elf.VPUSHFUserInput != 0, "i")
	add(flags&elf.VPUSHFUserOutput != 0, "o")
	add(flags&elf.VPUSHFProfOutput != 0, "p")
	add(flags&elf.VPUSHFProcDPU != 0, "D")
	add(flags&elf.VPUSHFProcDMA != 0, "M")
	add(flags&elf.VPUSHFProcSHAVE != 0, "S")
	if out == "" {
		return "-"
	}
	return out
}

var relocTypeNames = map[uint32]string{
	elf.RVPU64:                       "R_VPU_64",
	elf.RVPU64Or:                     "R_VPU_64_OR",
	elf.RVPUDisp40RTM:                "R_VPU_DISP40_RTM",
	elf.RVPU64LShift:                 "R_VPU_64_LSHIFT",
	elf.RVPU32:                       "R_VPU_32",
	elf.RVPU32RTM:                    "R_VPU_32_RTM",
	elf.RVPU32Sum:                    "R_VPU_32_SUM",
	elf.RVPU32MulticastBase:          "R_VPU_32_MULTICAST_BASE",
	elf.RVPU32MulticastBaseSub:       "R_VPU_32_MULTICAST_BASE_SUB",
	elf.RVPUDisp28MulticastOffset:    "R_VPU_DISP28_MULTICAST_OFFSET",
	elf.RVPUDisp4MulticastOffsetCmp:  "R_VPU_DISP4_MULTICAST_OFFSET_CMP",
	elf.RVPULo21:                     "R_VPU_LO_21",
	elf.RVPULo21Sum:                  "R_VPU_LO_21_SUM",
	elf.RVPULo21MulticastBase:        "R_VPU_LO_21_MULTICAST_BASE",
	elf.RVPU16LSB17RShift5:           "R_VPU_16_LSB_17_RSHIFT_5",
	elf.RVPULo21RShift4:              "R_VPU_LO_21_RSHIFT_4",
	elf.RVPUCMXLocalRShift5:          "R_VPU_CMX_LOCAL_RSHIFT_5",
	elf.RVPU32BitOrB21B26Unset:       "R_VPU_32_BIT_OR_B21_B26_UNSET",
	elf.RVPU64BitOrB21B26Unset:       "R_VPU_64_BIT_OR_B21_B26_UNSET",
	elf.RVPU16LSB17RShift5LShift16:   "R_VPU_16_LSB_17_RSHIFT_5_LSHIFT_16",
	elf.RVPU16LSB17RShift5LShiftCustom: "R_VPU_16_LSB_17_RSHIFT_5_LSHIFT_CUSTOM",
	elf.RVPU32BitOrB21B26UnsetHigh16: "R_VPU_32_BIT_OR_B21_B26_UNSET_HIGH_16",
	elf.RVPU32BitOrB21B26UnsetLow16:  "R_VPU_32_BIT_OR_B21_B26_UNSET_LOW_16",
	elf.RVPUHigh27BitOr:              "R_VPU_HIGH_27_BIT_OR",
	elf.RVPU16Sum:                    "R_VPU_16_SUM",
	elf.RVPU64Mult:                   "R_VPU_64_MULT",
	elf.RVPU64MultSub:                "R_VPU_64_MULT_SUB",
}

func relocTypeName(typ uint32) string {
	if name, ok := relocTypeNames[typ]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", typ)
}
