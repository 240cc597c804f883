package xattr

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Sidecar layout, repeated once per attribute:
//
//	u16 name size (key length + 1)
//	key bytes, NUL
//	u64 value size
//	value bytes
//
// All integers are little-endian.
const (
	nameSizeLen  = 2
	valueSizeLen = 8

	// maxEncodedKey is the longest key whose size (with NUL) fits in u16.
	maxEncodedKey = math.MaxUint16 - 1
)

// Entry is one attribute of a collection.
type Entry struct {
	Key   string
	Value []byte
}

// Collection is the attribute set of one target file. Keys keep the order
// in which they were first inserted; replacing a value keeps its position.
type Collection struct {
	entries []Entry
	index   map[string]int
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{index: make(map[string]int)}
}

// Len returns the number of attributes.
func (c *Collection) Len() int {
	return len(c.entries)
}

// Has reports whether key is present.
func (c *Collection) Has(key string) bool {
	_, ok := c.index[key]
	return ok
}

// Get returns a copy of the value stored under key.
func (c *Collection) Get(key string) ([]byte, bool) {
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return cloneBytes(c.entries[i].Value), true
}

// Set inserts or replaces key. The value is copied.
func (c *Collection) Set(key string, value []byte) {
	if i, ok := c.index[key]; ok {
		c.entries[i].Value = cloneBytes(value)
		return
	}
	c.index[key] = len(c.entries)
	c.entries = append(c.entries, Entry{Key: key, Value: cloneBytes(value)})
}

// Delete removes key and reports whether it was present.
func (c *Collection) Delete(key string) bool {
	i, ok := c.index[key]
	if !ok {
		return false
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	delete(c.index, key)
	for j := i; j < len(c.entries); j++ {
		c.index[c.entries[j].Key] = j
	}
	return true
}

// Keys returns all keys in collection order.
func (c *Collection) Keys() []string {
	keys := make([]string, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.Key
	}
	return keys
}

// Encode serializes c into sidecar bytes.
func Encode(c *Collection) ([]byte, error) {
	size := 0
	for _, e := range c.entries {
		if len(e.Key) > maxEncodedKey {
			return nil, errors.Errorf("key of %d bytes cannot be encoded", len(e.Key))
		}
		size += nameSizeLen + len(e.Key) + 1 + valueSizeLen + len(e.Value)
	}

	buf := make([]byte, 0, size)
	for _, e := range c.entries {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Key)+1))
		buf = append(buf, e.Key...)
		buf = append(buf, 0)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(e.Value)))
		buf = append(buf, e.Value...)
	}
	return buf, nil
}

// Decode parses sidecar bytes. Any malformed input yields an error matching
// ErrCorrupt and no collection. Empty input is the empty collection.
func Decode(data []byte) (*Collection, error) {
	c := NewCollection()
	off := 0
	for off < len(data) {
		start := off

		if len(data)-off < nameSizeLen {
			return nil, errors.Wrapf(ErrCorrupt, "truncated name size at offset %d", start)
		}
		nameSize := int(binary.LittleEndian.Uint16(data[off:]))
		off += nameSizeLen

		if nameSize == 0 {
			return nil, errors.Wrapf(ErrCorrupt, "zero name size at offset %d", start)
		}
		if len(data)-off < nameSize {
			return nil, errors.Wrapf(ErrCorrupt, "truncated name at offset %d", start)
		}
		name := data[off : off+nameSize]
		off += nameSize
		if name[nameSize-1] != 0 {
			return nil, errors.Wrapf(ErrCorrupt, "unterminated name at offset %d", start)
		}
		key := string(name[:nameSize-1])

		if len(data)-off < valueSizeLen {
			return nil, errors.Wrapf(ErrCorrupt, "truncated value size for %q", key)
		}
		valueSize := binary.LittleEndian.Uint64(data[off:])
		off += valueSizeLen

		if valueSize > uint64(len(data)-off) {
			return nil, errors.Wrapf(ErrCorrupt, "value of %q overruns file (%d bytes)", key, valueSize)
		}
		value := data[off : off+int(valueSize)]
		off += int(valueSize)

		if c.Has(key) {
			return nil, errors.Wrapf(ErrCorrupt, "duplicate key %q", key)
		}
		c.Set(key, value)
	}
	return c, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
