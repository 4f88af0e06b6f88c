// Package coredb reads Bitcoin Core's legacy LevelDB stores (blocks/index
// and chainstate) read-only, decoding their obfuscated fixed-offset records.
// It is an alternative lookup path to the from-scratch graph resolution in
// the chaingraph package.
package coredb

import "errors"

var (
	// ErrObfuscationKeyMissing means the chainstate store carries no
	// obfuscation key record, which marks it corrupt (the blocks/index
	// store treats the same absence as "no obfuscation").
	ErrObfuscationKeyMissing = errors.New("obfuscation key record missing")

	// ErrRecordTooShort marks a KV record value below its fixed minimum size.
	ErrRecordTooShort = errors.New("kv record value too short")

	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
)

// deobfuscate XORs value with key, wrapping over the key length. KV values
// carry no byte-stream position, so the phase is per-record, not absolute.
func deobfuscate(value, key []byte) []byte {
	out := make([]byte, len(value))
	copy(out, value)
	if len(key) == 0 || allZero(key) {
		return out
	}
	for i := range out {
		out[i] ^= key[i%len(key)]
	}
	return out
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
