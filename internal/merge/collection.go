package merge

import (
	"bytes"
	"encoding/json"

	"github.com/lehigh-university-libraries/vqaset/internal/listing"
)

// Collection holds normalized records keyed by main image id. Keys keep the
// position where they were first seen; a later record with the same key
// replaces the earlier one in place.
type Collection struct {
	keys    []string
	records map[string]*listing.NormalizedRecord
}

func NewCollection() *Collection {
	return &Collection{records: make(map[string]*listing.NormalizedRecord)}
}

// Put stores rec under id and reports whether an earlier record was replaced
func (c *Collection) Put(id string, rec *listing.NormalizedRecord) bool {
	_, exists := c.records[id]
	if !exists {
		c.keys = append(c.keys, id)
	}
	c.records[id] = rec
	return exists
}

func (c *Collection) Get(id string) (*listing.NormalizedRecord, bool) {
	rec, ok := c.records[id]
	return rec, ok
}

func (c *Collection) Len() int {
	return len(c.keys)
}

// Keys returns the ids in collection order
func (c *Collection) Keys() []string {
	return append([]string(nil), c.keys...)
}

// MarshalJSON writes the collection as a single object in key order
func (c *Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(c.records[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode returns the pretty-printed document written by the merge stage
func (c *Collection) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
