package buffers

import "unsafe"

// dataAddr returns the address of a byte slice's backing storage. Used only
// to populate DeviceBuffer.CPUAddr for buffers that alias Go-owned memory;
// the address is never dereferenced through unsafe, only reported.
func dataAddr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
