package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/quartzdb/jobstore/internal/types"
)

func init() {
	// Register the concrete value types JobDataMap supports so gob can
	// encode/decode the map[string]any without the caller registering
	// anything itself.
	gob.Register(string(""))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]byte(nil))
}

// encodeBinary serialises the map to an opaque gob-encoded byte stream
// (spec §4.2 binary mode).
func encodeBinary(m *types.JobDataMap) ([]byte, error) {
	flat := m.WithoutTransient()
	for k, v := range flat {
		if !isSupportedValue(v) {
			return nil, fmt.Errorf("%w: key %q has unsupported value type %T", types.ErrCodecConstraint, k, v)
		}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(flat); err != nil {
		return nil, fmt.Errorf("encode binary job data: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeBinary reconstructs a JobDataMap from a gob-encoded byte stream.
func decodeBinary(data []byte) (*types.JobDataMap, error) {
	var flat map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&flat); err != nil {
		return nil, fmt.Errorf("decode binary job data: %w", err)
	}
	return types.FromMap(flat), nil
}

func isSupportedValue(v any) bool {
	switch v.(type) {
	case string, int64, float64, bool, []byte:
		return true
	default:
		return false
	}
}
