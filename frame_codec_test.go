package h2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeParseDataFrame(t *testing.T) {
	raw := serializeData(3, []byte("hello"), true)
	h := parseFrameHeader(raw)
	assert.Equal(t, FrameTypeData, h.Type)
	assert.EqualValues(t, 3, h.StreamID)
	assert.NotZero(t, h.Flags&FlagEndStream)

	f, err := parseFramePayload(h, raw[frameHeaderLen:])
	require.NoError(t, err)
	require.NotNil(t, f.Data)
	assert.Equal(t, "hello", string(f.Data.Data))
	assert.True(t, f.EndStream())
}

func TestSerializeParseHeadersFrame(t *testing.T) {
	block := []byte{0x82, 0x86, 0x84}
	raw := serializeHeaders(5, block, false, true)
	h := parseFrameHeader(raw)
	f, err := parseFramePayload(h, raw[frameHeaderLen:])
	require.NoError(t, err)
	require.NotNil(t, f.Headers)
	assert.Equal(t, block, f.Headers.HeaderBlockFragment)
	assert.True(t, f.Headers.EndHeaders)
	assert.False(t, f.EndStream())
}

func TestSettingsRoundTrip(t *testing.T) {
	settings := []Setting{
		{ID: SettingHeaderTableSize, Value: 4096},
		{ID: SettingInitialWindowSize, Value: 65535},
	}
	raw := serializeSettings(settings)
	h := parseFrameHeader(raw)
	f, err := parseFramePayload(h, raw[frameHeaderLen:])
	require.NoError(t, err)
	require.NotNil(t, f.Settings)
	assert.False(t, f.Settings.Ack)
	assert.Equal(t, settings, f.Settings.Settings)
}

func TestSettingsAckMustBeEmpty(t *testing.T) {
	h := FrameHeader{Length: 6, Type: FrameTypeSettings, Flags: FlagAck}
	_, err := parseFramePayload(h, make([]byte, 6))
	assert.Error(t, err)
}

func TestSettingsPayloadNotMultipleOfSix(t *testing.T) {
	h := FrameHeader{Length: 5, Type: FrameTypeSettings}
	_, err := parseFramePayload(h, make([]byte, 5))
	assert.Error(t, err)
}

func TestGoAwayRoundTrip(t *testing.T) {
	raw := serializeGoAway(9, ErrCodeProtocolError, []byte("bad frame"))
	h := parseFrameHeader(raw)
	f, err := parseFramePayload(h, raw[frameHeaderLen:])
	require.NoError(t, err)
	assert.EqualValues(t, 9, f.GoAway.LastStreamID)
	assert.Equal(t, ErrCodeProtocolError, f.GoAway.ErrorCode)
	assert.Equal(t, "bad frame", string(f.GoAway.DebugData))
}

func TestWindowUpdateRoundTrip(t *testing.T) {
	raw := serializeWindowUpdate(7, 1000)
	h := parseFrameHeader(raw)
	f, err := parseFramePayload(h, raw[frameHeaderLen:])
	require.NoError(t, err)
	assert.EqualValues(t, 1000, f.WindowUpdate.Increment)
}

func TestPaddedDataFrame(t *testing.T) {
	h := FrameHeader{Length: 0, Type: FrameTypeData, Flags: FlagPadded | FlagEndStream, StreamID: 1}
	payload := append([]byte{3}, append([]byte("abc"), []byte{0, 0, 0}...)...)
	h.Length = uint32(len(payload))
	f, err := parseFramePayload(h, payload)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(f.Data.Data))
	assert.EqualValues(t, 3, f.Data.PadLength)
}

func TestPaddingLongerThanPayloadIsProtocolError(t *testing.T) {
	h := FrameHeader{Length: 2, Type: FrameTypeData, Flags: FlagPadded, StreamID: 1}
	_, err := parseFramePayload(h, []byte{5, 0})
	assert.Error(t, err)
}

func TestPriorityFrameSelfDependencyDecodes(t *testing.T) {
	raw := serializePriority(3, PriorityParam{StreamDep: 3, Weight: 15})
	h := parseFrameHeader(raw)
	f, err := parseFramePayload(h, raw[frameHeaderLen:])
	require.NoError(t, err)
	assert.EqualValues(t, 3, f.Priority.StreamDep)
}

func TestUnknownFrameTypeIgnored(t *testing.T) {
	h := FrameHeader{Length: 2, Type: FrameType(0xee), StreamID: 4}
	f, err := parseFramePayload(h, []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, f.Unknown)
}
