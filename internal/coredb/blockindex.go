package coredb

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// obfuscateKeyRecord is the literal lookup key of the blocks/index
// obfuscation key record.
var obfuscateKeyRecord = []byte("\x0eobfuscate_key")

const (
	blockRecordPrefix = 'b'
	blockRecordMinLen = 32

	// statusInActiveChain is the status flag Core sets on blocks that were
	// part of the best-known chain when the store was written.
	statusInActiveChain = 0x04
)

// BlockRecord is a decoded per-block metadata record from blocks/index.
// Additional undocumented trailing fields are ignored.
type BlockRecord struct {
	Hash       chainhash.Hash
	Height     uint32
	Status     uint32
	FileNumber uint32
	FileOffset uint32
}

// InActiveChain reports whether the record belonged to the best-known chain.
func (r BlockRecord) InActiveChain() bool {
	return r.Status&statusInActiveChain != 0
}

// BlockIndexDB reads the blocks/index LevelDB store.
type BlockIndexDB struct {
	db  *leveldb.DB
	key []byte
}

// OpenBlockIndex opens blocks/index read-only. A missing obfuscation key
// record means the store is not obfuscated.
func OpenBlockIndex(path string) (*BlockIndexDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		ReadOnly:       true,
		ErrorIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open block index at %s: %w", path, err)
	}

	key := make([]byte, 8)
	value, err := db.Get(obfuscateKeyRecord, nil)
	switch {
	case err == nil && len(value) >= 8:
		copy(key, value[:8])
	case err == nil:
		// Short record: treated as no obfuscation.
	case err == leveldb.ErrNotFound:
		// No obfuscation.
	default:
		db.Close()
		return nil, fmt.Errorf("read block index obfuscation key: %w", err)
	}

	return &BlockIndexDB{db: db, key: key}, nil
}

// Close releases the store.
func (d *BlockIndexDB) Close() error {
	return d.db.Close()
}

// BlockRecord looks up the metadata record for one block hash.
func (d *BlockIndexDB) BlockRecord(hash chainhash.Hash) (BlockRecord, error) {
	lookup := make([]byte, 1+chainhash.HashSize)
	lookup[0] = blockRecordPrefix
	copy(lookup[1:], hash[:])

	value, err := d.db.Get(lookup, nil)
	if err == leveldb.ErrNotFound {
		return BlockRecord{}, fmt.Errorf("block %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return BlockRecord{}, fmt.Errorf("read block record %s: %w", hash, err)
	}
	return parseBlockRecord(hash, deobfuscate(value, d.key))
}

// TipHeight scans every block record and returns the greatest height among
// blocks flagged as part of the active chain.
func (d *BlockIndexDB) TipHeight() (uint32, error) {
	var (
		max   uint32
		found bool
	)
	err := d.scan(func(rec BlockRecord) {
		if rec.InActiveChain() && (rec.Height > max || !found) {
			max = rec.Height
			found = true
		}
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("active chain tip: %w", ErrNotFound)
	}
	return max, nil
}

// BlockRecordByHeight scans for the active-chain block at the given height.
func (d *BlockIndexDB) BlockRecordByHeight(height uint32) (BlockRecord, error) {
	var (
		match BlockRecord
		found bool
	)
	err := d.scan(func(rec BlockRecord) {
		if !found && rec.InActiveChain() && rec.Height == height {
			match = rec
			found = true
		}
	})
	if err != nil {
		return BlockRecord{}, err
	}
	if !found {
		return BlockRecord{}, fmt.Errorf("active block at height %d: %w", height, ErrNotFound)
	}
	return match, nil
}

func (d *BlockIndexDB) scan(visit func(BlockRecord)) error {
	iter := d.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		k := iter.Key()
		if len(k) < 1+chainhash.HashSize || k[0] != blockRecordPrefix {
			continue
		}
		hash, err := chainhash.NewHash(k[1 : 1+chainhash.HashSize])
		if err != nil {
			return fmt.Errorf("block record key: %w", err)
		}
		rec, err := parseBlockRecord(*hash, deobfuscate(iter.Value(), d.key))
		if err != nil {
			return err
		}
		visit(rec)
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("scan block index: %w", err)
	}
	return nil
}

// parseBlockRecord interprets the fixed little-endian field layout:
// height at 0, status at 4, file number at 12, file offset at 16.
func parseBlockRecord(hash chainhash.Hash, value []byte) (BlockRecord, error) {
	if len(value) < blockRecordMinLen {
		return BlockRecord{}, fmt.Errorf("block record %s is %d bytes: %w", hash, len(value), ErrRecordTooShort)
	}
	return BlockRecord{
		Hash:       hash,
		Height:     binary.LittleEndian.Uint32(value[0:4]),
		Status:     binary.LittleEndian.Uint32(value[4:8]),
		FileNumber: binary.LittleEndian.Uint32(value[12:16]),
		FileOffset: binary.LittleEndian.Uint32(value[16:20]),
	}, nil
}
