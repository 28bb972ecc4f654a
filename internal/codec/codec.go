// Package codec serialises and deserialises job-data maps (spec §4.2).
//
// Two modes are supported, selected by a boolean configuration flag:
// binary mode (default), an opaque byte stream round-tripping any supported
// value type, and properties mode, a string-keyed/string-valued text stream
// equivalent to a Java-style property file. Transient entries are stripped
// before serialisation in either mode.
package codec

import "github.com/quartzdb/jobstore/internal/types"

// Codec encodes and decodes JobDataMaps according to the configured mode.
type Codec struct {
	// UseProperties selects properties mode over the default binary mode.
	UseProperties bool
}

// New returns a Codec configured for the given mode.
func New(useProperties bool) *Codec {
	return &Codec{UseProperties: useProperties}
}

// Encode serialises m, honouring its dirty flag is the caller's job (the
// codec always encodes when asked; callers decide whether encoding is
// needed at all per spec §4.2's write-skip optimisation). A nil map encodes
// to a nil byte slice.
func (c *Codec) Encode(m *types.JobDataMap) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	if c.UseProperties {
		return encodeProperties(m)
	}
	return encodeBinary(m)
}

// Decode reconstructs a JobDataMap from data. An empty/nil data slice
// decodes to an empty, clean map.
func (c *Codec) Decode(data []byte) (*types.JobDataMap, error) {
	if len(data) == 0 {
		return types.NewJobDataMap(), nil
	}
	var m *types.JobDataMap
	var err error
	if c.UseProperties {
		m, err = decodeProperties(data)
	} else {
		m, err = decodeBinary(data)
	}
	if err != nil {
		return nil, err
	}
	m.MarkClean()
	return m, nil
}
