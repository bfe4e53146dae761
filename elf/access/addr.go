package access

import "unsafe"

// dataAddrOf reports the address of a byte slice's backing storage, used
// only so EmplacePolicy can check alignment — never dereferenced through
// unsafe.
func dataAddrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
