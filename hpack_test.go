package h2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHPACKStaticTableIndexedField(t *testing.T) {
	dec := NewHPACKDecoder(4096)
	// index 2 = :method GET (fully indexed representation, 0x82)
	fields, err := dec.Decode([]byte{0x82})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, ":method", fields[0].Name)
	assert.Equal(t, "GET", fields[0].Value)
}

func TestHPACKEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewHPACKEncoder(4096)
	dec := NewHPACKDecoder(4096)

	fields := []HeaderField{
		{Name: ":method", Value: "GET", Indexing: IndexIncremental},
		{Name: ":path", Value: "/resource/1", Indexing: IndexIncremental},
		{Name: "custom-key", Value: "custom-value", Indexing: IndexIncremental},
	}
	block := enc.Encode(nil, fields)
	decoded, err := dec.Decode(block)
	require.NoError(t, err)
	require.Len(t, decoded, len(fields))
	for i, f := range fields {
		assert.Equal(t, f.Name, decoded[i].Name)
		assert.Equal(t, f.Value, decoded[i].Value)
	}
}

func TestHPACKIncrementalIndexingGrowsDynamicTable(t *testing.T) {
	enc := NewHPACKEncoder(4096)
	fields := []HeaderField{{Name: "custom-key", Value: "custom-value", Indexing: IndexIncremental}}
	enc.Encode(nil, fields)
	assert.Equal(t, 1, enc.dyn.len())
}

func TestHPACKSensitiveHeaderNeverIndexed(t *testing.T) {
	enc := NewHPACKEncoder(4096)
	fields := []HeaderField{{Name: "authorization", Value: "secret-token", Sensitive: true}}
	enc.Encode(nil, fields)
	assert.Equal(t, 0, enc.dyn.len(), "sensitive fields must never be added to the dynamic table")
}

func TestHPACKDynamicTableEviction(t *testing.T) {
	dyn := newDynamicTable(64)
	dyn.add(dynamicTableEntry{name: "a", value: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}) // ~62 bytes
	assert.Equal(t, 1, dyn.len())
	dyn.add(dynamicTableEntry{name: "b", value: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"})
	assert.Equal(t, 1, dyn.len(), "adding a second entry should evict the first once over budget")
}

func TestHPACKDynamicTableSizeUpdate(t *testing.T) {
	dec := NewHPACKDecoder(4096)
	// dynamic table size update to 0 (0x20), then an indexed field.
	block := []byte{0x20, 0x82}
	fields, err := dec.Decode(block)
	require.NoError(t, err)
	assert.Len(t, fields, 1)
	assert.Equal(t, 0, dec.dyn.maxSize)
}

func TestHPACKDynamicTableSizeUpdateAboveCeilingRejected(t *testing.T) {
	dec := NewHPACKDecoder(100)
	dst := []byte{0x20}
	dst = appendHpackInt(dst, 5, 200)
	_, err := dec.Decode(dst)
	assert.Error(t, err)
}

func TestHPACKDynamicTableSizeUpdateAfterEntryRejected(t *testing.T) {
	dec := NewHPACKDecoder(4096)
	// indexed field (0x82), then a size update: RFC 7541 Section 4.2
	// only permits the update at the very start of a header block.
	block := []byte{0x82, 0x20}
	_, err := dec.Decode(block)
	assert.Error(t, err)
}

func TestHPACKIntegerEncoding(t *testing.T) {
	// RFC 7541 Appendix C.1.1: 10 encoded with a 5-bit prefix is 01010.
	dst := appendHpackInt([]byte{0x00}, 5, 10)
	assert.Equal(t, []byte{10}, dst)

	// RFC 7541 Appendix C.1.2: 1337 encoded with a 5-bit prefix.
	dst2 := appendHpackInt([]byte{0x00}, 5, 1337)
	assert.Equal(t, []byte{31, 154, 10}, dst2)

	v, n, err := readHpackInt(dst2, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 1337, v)
	assert.Equal(t, 3, n)
}

func TestHPACKAutoIndexingPolicyForcesSensitiveHeaders(t *testing.T) {
	enc := NewHPACKEncoder(4096)
	fields := []HeaderField{
		{Name: "authorization", Value: "Bearer abc", Indexing: IndexIncremental},
		{Name: "cookie", Value: "short", Indexing: IndexIncremental},
	}
	enc.Encode(nil, fields)
	assert.Equal(t, 0, enc.dyn.len(), "authorization and short cookies must never enter the dynamic table")
}

func TestHPACKAutoIndexingPolicyForcesNeverIndexValueNames(t *testing.T) {
	enc := NewHPACKEncoder(4096)
	fields := []HeaderField{{Name: ":path", Value: "/resource/1", Indexing: IndexIncremental}}
	enc.Encode(nil, fields)
	assert.Equal(t, 0, enc.dyn.len(), ":path is never indexed even when the caller asks for incremental indexing")
}

func TestHPACKAutoIndexingPolicyAllowsLongCookieIndexing(t *testing.T) {
	enc := NewHPACKEncoder(4096)
	fields := []HeaderField{{Name: "cookie", Value: "this-cookie-value-is-long-enough", Indexing: IndexIncremental}}
	enc.Encode(nil, fields)
	assert.Equal(t, 1, enc.dyn.len(), "a long cookie value is not policy-sensitive and may be indexed")
}

func TestHPACKLiteralWithNeverIndexedIsMarkedSensitive(t *testing.T) {
	enc := NewHPACKEncoder(4096)
	dec := NewHPACKDecoder(4096)
	block := enc.Encode(nil, []HeaderField{{Name: "cookie", Value: "secret", Indexing: IndexNeverIndexed, Sensitive: true}})
	fields, err := dec.Decode(block)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.True(t, fields[0].Sensitive)
}
