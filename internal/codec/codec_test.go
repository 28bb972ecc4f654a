package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzdb/jobstore/internal/types"
)

func TestBinaryRoundTrip(t *testing.T) {
	c := New(false)
	m := types.NewJobDataMap()
	m.Put("name", "payroll")
	m.Put("count", int64(42))
	m.Put("ratio", 3.5)
	m.Put("enabled", true)
	m.Put("blob", []byte{1, 2, 3})
	m.MarkTransient("scratch")
	m.Put("scratch", "not persisted")

	data, err := c.Encode(m)
	require.NoError(t, err)

	decoded, err := c.Decode(data)
	require.NoError(t, err)
	assert.True(t, m.Equal(decoded))
	_, ok := decoded.Get("scratch")
	assert.False(t, ok, "transient entries must not survive serialisation")
}

func TestBinaryRejectsUnsupportedType(t *testing.T) {
	c := New(false)
	m := types.NewJobDataMap()
	m.Put("bad", struct{ X int }{X: 1})

	_, err := c.Encode(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCodecConstraint)
}

func TestPropertiesRoundTrip(t *testing.T) {
	c := New(true)
	m := types.NewJobDataMap()
	m.Put("host", "db1")
	m.Put("path", "a=b\\c\nd")

	data, err := c.Encode(m)
	require.NoError(t, err)

	decoded, err := c.Decode(data)
	require.NoError(t, err)
	assert.True(t, m.Equal(decoded))
}

func TestPropertiesRejectsNonString(t *testing.T) {
	c := New(true)
	m := types.NewJobDataMap()
	m.Put("count", int64(1))

	_, err := c.Encode(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCodecConstraint)
}

func TestPropertiesRejectsNil(t *testing.T) {
	c := New(true)
	m := types.NewJobDataMap()
	m.Put("missing", nil)

	_, err := c.Encode(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCodecConstraint)
}

func TestDecodeEmptyIsCleanEmptyMap(t *testing.T) {
	c := New(false)
	m, err := c.Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Dirty())
}
