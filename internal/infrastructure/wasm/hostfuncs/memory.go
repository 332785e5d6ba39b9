package hostfuncs

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// PackPtrLen packs a guest pointer and length into the single i64 used on
// the host boundary.
func PackPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// UnpackPtrLen reverses PackPtrLen.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32) //nolint:gosec // G115: Packed format stores 32-bit values
	length = uint32(packed)    //nolint:gosec // G115: Packed format stores 32-bit values
	return ptr, length
}

// maxAddrLen bounds what a guest can make the host copy out of its memory.
const maxAddrLen = 512

// readString copies a packed ptr+len string out of guest memory.
func readString(mem api.Memory, packed uint64) (string, error) {
	if mem == nil {
		return "", fmt.Errorf("guest exports no memory")
	}
	ptr, length := UnpackPtrLen(packed)
	if length > maxAddrLen {
		return "", fmt.Errorf("string too long: %d bytes", length)
	}
	data, ok := mem.Read(ptr, length)
	if !ok {
		return "", fmt.Errorf("out of bounds read at %d+%d", ptr, length)
	}
	return string(data), nil
}
