package blockfile

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blocktest"
)

var testKey = XORKey{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}

func writeContainer(t *testing.T, key XORKey, padding int) (path string, offsets []int64, hashes []string) {
	t.Helper()

	path = filepath.Join(t.TempDir(), "blk00000.dat")
	w, err := Create(path, key)
	require.NoError(t, err)

	for _, block := range blocktest.Chain(3) {
		offset, err := w.WriteBlock(block)
		require.NoError(t, err)
		offsets = append(offsets, offset)
		hashes = append(hashes, block.BlockHash().String())
	}
	if padding > 0 {
		require.NoError(t, w.WritePadding(padding))
	}
	require.NoError(t, w.Close())
	return path, offsets, hashes
}

func TestReader_ReadBlock_RoundTrip(t *testing.T) {
	for _, tt := range []struct {
		name string
		key  XORKey
	}{
		{name: "no obfuscation", key: XORKey{}},
		{name: "xor obfuscated", key: testKey},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path, offsets, hashes := writeContainer(t, tt.key, 0)

			r, err := Open(path, tt.key)
			require.NoError(t, err)
			defer r.Close()

			for i := range offsets {
				block, offset, err := r.ReadBlock()
				require.NoError(t, err)
				require.Equal(t, offsets[i], offset)
				require.Equal(t, hashes[i], block.BlockHash().String())
			}

			_, _, err = r.ReadBlock()
			require.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestReader_SeekReconstructsKeyPhase(t *testing.T) {
	path, offsets, hashes := writeContainer(t, testKey, 0)

	r, err := Open(path, testKey)
	require.NoError(t, err)
	defer r.Close()

	// Jump straight to the middle record without reading anything before it.
	require.NoError(t, r.Seek(offsets[1]))
	block, offset, err := r.ReadBlock()
	require.NoError(t, err)
	require.Equal(t, offsets[1], offset)
	require.Equal(t, hashes[1], block.BlockHash().String())

	// Seeking back must produce identical bytes again.
	require.NoError(t, r.Seek(offsets[1]))
	again, _, err := r.ReadBlock()
	require.NoError(t, err)
	require.Equal(t, block.BlockHash(), again.BlockHash())
}

func TestReader_ReadHeader_ScansAndSkipsPayload(t *testing.T) {
	path, offsets, hashes := writeContainer(t, testKey, 64)

	r, err := Open(path, testKey)
	require.NoError(t, err)
	defer r.Close()

	for i := range offsets {
		rec, err := r.ReadHeader()
		require.NoError(t, err)
		require.Equal(t, offsets[i], rec.Offset)
		require.Equal(t, hashes[i], rec.Header.BlockHash().String())
		require.GreaterOrEqual(t, rec.PayloadLen, uint32(80))
	}

	// Trailing zero padding ends the scan cleanly.
	_, err = r.ReadHeader()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_BadMagicIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blk00000.dat")
	raw := make([]byte, 16)
	binary.LittleEndian.PutUint32(raw[0:4], 0xCAFEBABE)
	binary.LittleEndian.PutUint32(raw[4:8], 8)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	r, err := Open(path, XORKey{})
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.ReadBlock()
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestReader_EmptyFileYieldsEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blk00000.dat")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	r, err := Open(path, XORKey{})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadHeader()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_TruncatedPayloadIsError(t *testing.T) {
	path, offsets, _ := writeContainer(t, XORKey{}, 0)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// Chop the last record in half.
	require.NoError(t, os.WriteFile(path, raw[:offsets[2]+20], 0o644))

	r, err := Open(path, XORKey{})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Seek(offsets[2]))
	_, _, err = r.ReadBlock()
	require.Error(t, err)
	require.False(t, errors.Is(err, io.EOF))
}

func TestLoadXORKey(t *testing.T) {
	dir := t.TempDir()

	key, err := LoadXORKey(dir)
	require.NoError(t, err)
	require.True(t, key.Zero())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "xor.dat"), testKey[:], 0o644))
	key, err = LoadXORKey(dir)
	require.NoError(t, err)
	require.Equal(t, testKey, key)
}
