package blockfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// XORKey is the 8-byte repeating key used to obfuscate block container
// files at rest. An all-zero key means no obfuscation.
type XORKey [8]byte

// Zero reports whether the key disables obfuscation.
func (k XORKey) Zero() bool {
	return k == XORKey{}
}

// Apply XORs buf in place. The key phase is a function of the absolute
// file offset of buf[0], so re-reading from an arbitrary offset yields
// the same plaintext regardless of prior reads.
func (k XORKey) Apply(buf []byte, offset int64) {
	if k.Zero() {
		return
	}
	for i := range buf {
		buf[i] ^= k[(offset+int64(i))&7]
	}
}

// LoadXORKey reads the xor.dat sibling file from the blocks directory.
// A missing file means the containers are not obfuscated.
func LoadXORKey(blocksDir string) (XORKey, error) {
	var key XORKey

	path := filepath.Join(blocksDir, "xor.dat")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return key, nil
	}
	if err != nil {
		return key, fmt.Errorf("open xor key file: %w", err)
	}
	defer f.Close()

	if _, err := io.ReadFull(f, key[:]); err != nil {
		return XORKey{}, fmt.Errorf("read xor key from %s: %w", path, err)
	}
	return key, nil
}
