// Package chainindex holds the durable height-ordered block index produced
// by chain graph resolution, persisted in its own LevelDB store.
package chainindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrGap marks a non-contiguous height range, which is a broken chain and
// never a partial result.
var ErrGap = errors.New("chain index has a height gap")

// BlockLocation identifies where a full block's bytes live. Immutable once
// computed.
type BlockLocation struct {
	FilePath   string
	FileOffset int64
	Hash       chainhash.Hash
	Size       uint32
}

// Index maps every height in [0, tip] to a block location.
type Index struct {
	locations map[uint32]BlockLocation
	tipHeight uint32
}

// New returns an empty index.
func New() *Index {
	return &Index{locations: make(map[uint32]BlockLocation)}
}

// Add records a location at the given height.
func (x *Index) Add(height uint32, loc BlockLocation) {
	x.locations[height] = loc
	if height > x.tipHeight {
		x.tipHeight = height
	}
}

// Location returns the block location at a height.
func (x *Index) Location(height uint32) (BlockLocation, bool) {
	loc, ok := x.locations[height]
	return loc, ok
}

// TipHeight returns the greatest indexed height.
func (x *Index) TipHeight() uint32 {
	return x.tipHeight
}

// Len returns the number of indexed heights.
func (x *Index) Len() int {
	return len(x.locations)
}

// Validate checks the index is dense from 0 to the tip.
func (x *Index) Validate() error {
	if len(x.locations) == 0 {
		return fmt.Errorf("%w: index is empty", ErrGap)
	}
	for h := uint32(0); ; h++ {
		if _, ok := x.locations[h]; !ok {
			return fmt.Errorf("%w: missing height %d of %d", ErrGap, h, x.tipHeight)
		}
		if h == x.tipHeight {
			return nil
		}
	}
}

// HeightsDescending returns all indexed heights, tip first.
func (x *Index) HeightsDescending() []uint32 {
	heights := make([]uint32, 0, len(x.locations))
	for h := range x.locations {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] > heights[j] })
	return heights
}

var tipKey = []byte("T")

const locationKeyPrefix = 'h'

func locationKey(height uint32) []byte {
	key := make([]byte, 5)
	key[0] = locationKeyPrefix
	binary.BigEndian.PutUint32(key[1:], height)
	return key
}

// encodeLocation lays out offset, size and hash as fixed fields followed by
// the container path. The layout is private to this store.
func encodeLocation(loc BlockLocation) []byte {
	value := make([]byte, 12+chainhash.HashSize+len(loc.FilePath))
	binary.LittleEndian.PutUint64(value[0:8], uint64(loc.FileOffset))
	binary.LittleEndian.PutUint32(value[8:12], loc.Size)
	copy(value[12:12+chainhash.HashSize], loc.Hash[:])
	copy(value[12+chainhash.HashSize:], loc.FilePath)
	return value
}

func decodeLocation(value []byte) (BlockLocation, error) {
	if len(value) < 12+chainhash.HashSize {
		return BlockLocation{}, fmt.Errorf("location record is %d bytes", len(value))
	}
	var loc BlockLocation
	loc.FileOffset = int64(binary.LittleEndian.Uint64(value[0:8]))
	loc.Size = binary.LittleEndian.Uint32(value[8:12])
	copy(loc.Hash[:], value[12:12+chainhash.HashSize])
	loc.FilePath = string(value[12+chainhash.HashSize:])
	return loc, nil
}

// Save writes the index to a LevelDB store at path, replacing its contents.
func (x *Index) Save(path string) error {
	if err := x.Validate(); err != nil {
		return err
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return fmt.Errorf("open index store at %s: %w", path, err)
	}
	defer db.Close()

	batch := new(leveldb.Batch)
	tip := make([]byte, 4)
	binary.BigEndian.PutUint32(tip, x.tipHeight)
	batch.Put(tipKey, tip)
	for height, loc := range x.locations {
		batch.Put(locationKey(height), encodeLocation(loc))
	}
	if err := db.Write(batch, nil); err != nil {
		return fmt.Errorf("write index store: %w", err)
	}
	return nil
}

// Load reads a previously saved index and revalidates its density.
func Load(path string) (*Index, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		ReadOnly:       true,
		ErrorIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open index store at %s: %w", path, err)
	}
	defer db.Close()

	tip, err := db.Get(tipKey, nil)
	if err != nil {
		return nil, fmt.Errorf("read index tip: %w", err)
	}
	if len(tip) != 4 {
		return nil, fmt.Errorf("index tip record is %d bytes", len(tip))
	}

	x := New()
	x.tipHeight = binary.BigEndian.Uint32(tip)

	iter := db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != 5 || key[0] != locationKeyPrefix {
			continue
		}
		loc, err := decodeLocation(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("decode location at height %d: %w", binary.BigEndian.Uint32(key[1:]), err)
		}
		x.locations[binary.BigEndian.Uint32(key[1:])] = loc
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan index store: %w", err)
	}

	if err := x.Validate(); err != nil {
		return nil, err
	}
	return x, nil
}
