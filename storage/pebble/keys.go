package pebble

import (
	"encoding/binary"
	"time"
)

const (
	// user operation keys
	userOpHashKey   = byte(1)
	userOpSenderKey = byte(2)
	userOpTimeKey   = byte(3)

	// special keys
	userOpCountKey = byte(100)
)

func makePrefix(code byte, key ...[]byte) []byte {
	prefix := []byte{code}
	for _, k := range key {
		prefix = append(prefix, k...)
	}
	return prefix
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// timeBytes orders keys by submission time.
func timeBytes(t time.Time) []byte {
	return uint64Bytes(uint64(t.UnixNano()))
}
