package blockfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/wire"
)

// Writer appends length-prefixed block records to a container file,
// obfuscating them with the same absolute-offset XOR scheme the Reader
// expects. It exists for container synthesis (tests, fixtures).
type Writer struct {
	f      *os.File
	key    XORKey
	offset int64
}

// Create opens a new container file for writing.
func Create(path string, key XORKey) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create container %s: %w", path, err)
	}
	return &Writer{f: f, key: key}, nil
}

// WriteBlock appends one block record and returns its absolute record offset.
func (w *Writer) WriteBlock(block *wire.MsgBlock) (int64, error) {
	var payload bytes.Buffer
	if err := block.Serialize(&payload); err != nil {
		return 0, fmt.Errorf("serialize block: %w", err)
	}

	record := make([]byte, prefixLen+payload.Len())
	binary.LittleEndian.PutUint32(record[0:4], Magic)
	binary.LittleEndian.PutUint32(record[4:8], uint32(payload.Len()))
	copy(record[prefixLen:], payload.Bytes())

	recordOffset := w.offset
	w.key.Apply(record, recordOffset)

	if _, err := w.f.Write(record); err != nil {
		return 0, fmt.Errorf("write block record: %w", err)
	}
	w.offset += int64(len(record))
	return recordOffset, nil
}

// WritePadding appends n zero bytes, mimicking the trailing padding Core
// leaves after the last record of a container.
func (w *Writer) WritePadding(n int) error {
	if _, err := w.f.Write(make([]byte, n)); err != nil {
		return fmt.Errorf("write padding: %w", err)
	}
	w.offset += int64(n)
	return nil
}

// Close flushes and closes the container file.
func (w *Writer) Close() error {
	return w.f.Close()
}
