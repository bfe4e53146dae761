package elf

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
)

// DecodeSymbols unpacks data as a contiguous array of SymbolEntry, the same
// way the teacher's struc.UnpackWithOrder calls decode one fixed-layout
// struct at a time off a byte stream.
func DecodeSymbols(data []byte) ([]SymbolEntry, error) {
	size, err := struc.Sizeof(&SymbolEntry{})
	if err != nil {
		return nil, err
	}
	out := make([]SymbolEntry, len(data)/size)
	r := bytes.NewReader(data)
	for i := range out {
		if err := struc.UnpackWithOrder(r, &out[i], binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeRelas unpacks data as a contiguous array of RelaEntry.
func DecodeRelas(data []byte) ([]RelaEntry, error) {
	size, err := struc.Sizeof(&RelaEntry{})
	if err != nil {
		return nil, err
	}
	out := make([]RelaEntry, len(data)/size)
	r := bytes.NewReader(data)
	for i := range out {
		if err := struc.UnpackWithOrder(r, &out[i], binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	return out, nil
}
