package coredb

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// chainstateObfuscateKeyRecord is the literal lookup key of the chainstate
// obfuscation key record. Its value carries a leading format byte that is
// dropped; the schema differs from blocks/index on purpose.
var chainstateObfuscateKeyRecord = []byte("\x0e\x00obfuscate_key")

// tipPointerRecord keys the best-block record; its deobfuscated value
// starts with the 32-byte best-block hash.
var tipPointerRecord = []byte("B")

// ChainstateDB reads the chainstate LevelDB store.
type ChainstateDB struct {
	db  *leveldb.DB
	key []byte
}

// OpenChainstate opens the chainstate store read-only. Unlike blocks/index,
// a missing obfuscation key record marks the store corrupt.
func OpenChainstate(path string) (*ChainstateDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		ReadOnly:       true,
		ErrorIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open chainstate at %s: %w", path, err)
	}

	value, err := db.Get(chainstateObfuscateKeyRecord, nil)
	if err == leveldb.ErrNotFound {
		db.Close()
		return nil, fmt.Errorf("chainstate: %w", ErrObfuscationKeyMissing)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read chainstate obfuscation key: %w", err)
	}
	if len(value) < 9 {
		db.Close()
		return nil, fmt.Errorf("chainstate obfuscation key is %d bytes: %w", len(value), ErrRecordTooShort)
	}

	key := make([]byte, len(value)-1)
	copy(key, value[1:])

	return &ChainstateDB{db: db, key: key}, nil
}

// Close releases the store.
func (d *ChainstateDB) Close() error {
	return d.db.Close()
}

// BestBlockHash returns the hash the tip pointer record names.
func (d *ChainstateDB) BestBlockHash() (chainhash.Hash, error) {
	value, err := d.db.Get(tipPointerRecord, nil)
	if err == leveldb.ErrNotFound {
		return chainhash.Hash{}, fmt.Errorf("tip pointer: %w", ErrNotFound)
	}
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("read tip pointer: %w", err)
	}

	plain := deobfuscate(value, d.key)
	if len(plain) < chainhash.HashSize {
		return chainhash.Hash{}, fmt.Errorf("tip pointer is %d bytes: %w", len(plain), ErrRecordTooShort)
	}
	hash, err := chainhash.NewHash(plain[:chainhash.HashSize])
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("tip pointer hash: %w", err)
	}
	return *hash, nil
}
