// Package blockfile reads the length-prefixed, optionally XOR-obfuscated
// block container files (blk*.dat) written by Bitcoin Core.
package blockfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/wire"
)

// Magic is the mainnet network magic, stored little-endian on disk
// as the byte sequence f9 be b4 d9.
const Magic uint32 = 0xD9B4BEF9

const (
	prefixLen      = 8
	blockHeaderLen = 80
)

// ErrBadMagic marks a record whose deobfuscated prefix does not carry
// the expected network magic.
var ErrBadMagic = errors.New("invalid container magic")

// HeaderRecord is the result of a header-only scan step.
type HeaderRecord struct {
	Header     wire.BlockHeader
	Offset     int64 // absolute offset of the 8-byte record prefix
	PayloadLen uint32
}

// Reader decodes block records from a single container file.
type Reader struct {
	f      *os.File
	br     *bufio.Reader
	path   string
	key    XORKey
	offset int64 // absolute offset of the next byte to be read
}

// Open opens a container file for reading with the given obfuscation key.
func Open(path string, key XORKey) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container %s: %w", path, err)
	}
	return &Reader{
		f:    f,
		br:   bufio.NewReaderSize(f, 1<<20),
		path: path,
		key:  key,
	}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Path returns the container file path.
func (r *Reader) Path() string {
	return r.path
}

// Seek repositions the reader to an absolute file offset.
func (r *Reader) Seek(offset int64) error {
	if _, err := r.f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek container %s to %d: %w", r.path, offset, err)
	}
	r.br.Reset(r.f)
	r.offset = offset
	return nil
}

// readPrefix reads and deobfuscates the 8-byte record prefix. It returns
// io.EOF when the stream is exhausted or when trailing zero padding is
// reached (checked before deobfuscation).
func (r *Reader) readPrefix() (recordOffset int64, payloadLen uint32, err error) {
	recordOffset = r.offset

	var prefix [prefixLen]byte
	if _, err := io.ReadFull(r.br, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, 0, io.EOF
		}
		return 0, 0, fmt.Errorf("read record prefix at %s:%d: %w", r.path, recordOffset, err)
	}
	r.offset += prefixLen

	// Zero padding after the last record is normal and ends the scan.
	if prefix == [prefixLen]byte{} {
		return 0, 0, io.EOF
	}

	r.key.Apply(prefix[:], recordOffset)

	magic := binary.LittleEndian.Uint32(prefix[0:4])
	if magic != Magic {
		return 0, 0, fmt.Errorf("%w: 0x%08x at %s:%d", ErrBadMagic, magic, r.path, recordOffset)
	}
	payloadLen = binary.LittleEndian.Uint32(prefix[4:8])
	return recordOffset, payloadLen, nil
}

// ReadBlock decodes the next full block record. It returns io.EOF when no
// further records exist.
func (r *Reader) ReadBlock() (*wire.MsgBlock, int64, error) {
	recordOffset, payloadLen, err := r.readPrefix()
	if err != nil {
		return nil, 0, err
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return nil, 0, fmt.Errorf("read block payload at %s:%d: %w", r.path, recordOffset, err)
	}
	r.key.Apply(payload, recordOffset+prefixLen)
	r.offset += int64(payloadLen)

	block := &wire.MsgBlock{}
	if err := block.Deserialize(bytes.NewReader(payload)); err != nil {
		return nil, 0, fmt.Errorf("decode block at %s:%d: %w", r.path, recordOffset, err)
	}
	return block, recordOffset, nil
}

// ReadHeader decodes only the fixed 80-byte block header of the next record
// and skips the remaining payload without reading it. Used by the fast
// backward-hash scan that builds the chain graph.
func (r *Reader) ReadHeader() (HeaderRecord, error) {
	recordOffset, payloadLen, err := r.readPrefix()
	if err != nil {
		return HeaderRecord{}, err
	}
	if payloadLen < blockHeaderLen {
		return HeaderRecord{}, fmt.Errorf("record payload %d bytes shorter than block header at %s:%d", payloadLen, r.path, recordOffset)
	}

	var raw [blockHeaderLen]byte
	if _, err := io.ReadFull(r.br, raw[:]); err != nil {
		return HeaderRecord{}, fmt.Errorf("read block header at %s:%d: %w", r.path, recordOffset, err)
	}
	r.key.Apply(raw[:], recordOffset+prefixLen)
	r.offset += blockHeaderLen

	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(raw[:])); err != nil {
		return HeaderRecord{}, fmt.Errorf("decode block header at %s:%d: %w", r.path, recordOffset, err)
	}

	remaining := int64(payloadLen) - blockHeaderLen
	if _, err := r.br.Discard(int(remaining)); err != nil {
		return HeaderRecord{}, fmt.Errorf("skip %d payload bytes at %s:%d: %w", remaining, r.path, recordOffset, err)
	}
	r.offset += remaining

	return HeaderRecord{Header: header, Offset: recordOffset, PayloadLen: payloadLen}, nil
}
