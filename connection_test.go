package h2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	headers   []HeaderField
	endStream bool
	data      []byte
	closed    []uint32
	goAways   int
}

func (h *recordingHandler) OnHeaders(c *Connection, streamID uint32, fields []HeaderField, endStream bool) {
	h.headers = fields
	h.endStream = endStream
}
func (h *recordingHandler) OnData(c *Connection, streamID uint32, data []byte, endStream bool) {
	h.data = append(h.data, data...)
}
func (h *recordingHandler) OnTrailers(c *Connection, streamID uint32, fields []HeaderField) {}
func (h *recordingHandler) OnStreamClosed(c *Connection, streamID uint32, err error) {
	h.closed = append(h.closed, streamID)
}
func (h *recordingHandler) OnGoAway(c *Connection, lastStreamID uint32, code ErrorCode, debug []byte) {
	h.goAways++
}

func TestConnectionServerProcessesHeadersAndData(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())

	var in []byte
	in = append(in, ConnectionPreface...)
	in = append(in, serializeSettings(nil)...)

	enc := NewHPACKEncoder(4096)
	block := enc.Encode(nil, []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
	})
	in = append(in, serializeHeaders(1, block, false, true)...)
	in = append(in, serializeData(1, []byte("payload"), true)...)

	conn.Read(in)
	require.NoError(t, conn.Process())

	assert.Equal(t, "GET", h.headers[0].Value)
	assert.Equal(t, "payload", string(h.data))
	assert.True(t, h.endStream == false) // headers frame itself did not end the stream
	require.Contains(t, conn.streams, uint32(1))
	assert.Equal(t, StreamHalfClosedRemote, conn.streams[1].State)
}

func TestConnectionRejectsWrongParityStream(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	conn.Read(ConnectionPreface)
	require.NoError(t, conn.Process())

	enc := NewHPACKEncoder(4096)
	block := enc.Encode(nil, []HeaderField{{Name: ":method", Value: "GET"}})
	// even stream id from a client is illegal (server expects odd ids)
	conn.Read(serializeHeaders(2, block, true, true))
	err := conn.Process()
	require.Error(t, err)
	_, ok := err.(*ConnectionError)
	assert.True(t, ok)
}

func TestConnectionSettingsAckAppliesPendingLocalSettings(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), false, h, NewMetrics())
	conn.pendingLocalDelta = &PeerSettings{InitialWindowSize: 12345}
	conn.Read(serializeSettingsAck())
	require.NoError(t, conn.Process())
	assert.EqualValues(t, 12345, conn.local.InitialWindowSize)
	assert.True(t, conn.localSettingsAcked)
}

func TestConnectionWindowUpdateAdjustsSendWindow(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), false, h, NewMetrics())
	s := conn.OpenStream()
	s.SendWindow = 0

	conn.Read(serializeWindowUpdate(s.ID, 500))
	require.NoError(t, conn.Process())
	assert.EqualValues(t, 500, s.SendWindow)
}

func TestConnectionSendHeadersAndDataQueuesFrames(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	s := conn.OpenStream()

	conn.SendHeaders(s.ID, []HeaderField{{Name: ":status", Value: "200"}}, false)
	sent := conn.SendData(s.ID, []byte("hi"), true)
	assert.Equal(t, 2, sent)
	assert.True(t, conn.writer.Pending())
}

func TestConnectionGoAwayIsIdempotent(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	conn.SendGoAway(ErrCodeNoError, nil)
	conn.SendGoAway(ErrCodeNoError, nil)
	assert.True(t, conn.goAwaySent)
}

func TestConnectionRejectsMalformedHeaderFieldName(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	conn.Read(ConnectionPreface)
	require.NoError(t, conn.Process())

	enc := NewHPACKEncoder(4096)
	block := enc.Encode(nil, []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: "bad header", Value: "x"}, // space is not a valid token rune
	})
	conn.Read(serializeHeaders(1, block, true, true))
	err := conn.Process()
	require.Error(t, err)
	_, ok := err.(*ConnectionError)
	assert.True(t, ok)
}

func TestConnectionRejectsFrameInterleavedInHeaderBlock(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	conn.Read(ConnectionPreface)
	require.NoError(t, conn.Process())

	enc := NewHPACKEncoder(4096)
	block := enc.Encode(nil, []HeaderField{{Name: ":method", Value: "GET"}})
	// HEADERS without END_HEADERS leaves the block open on stream 1; a
	// PING before the matching CONTINUATION must be rejected.
	conn.Read(serializeHeaders(1, block, false, false))
	require.NoError(t, conn.Process())

	conn.Read(serializePing([8]byte{}, false))
	err := conn.Process()
	require.Error(t, err)
	_, ok := err.(*ConnectionError)
	assert.True(t, ok)
}

func TestConnectionRejectsContinuationOnWrongStream(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	conn.Read(ConnectionPreface)
	require.NoError(t, conn.Process())

	enc := NewHPACKEncoder(4096)
	block := enc.Encode(nil, []HeaderField{{Name: ":method", Value: "GET"}})
	conn.Read(serializeHeaders(1, block, false, false))
	require.NoError(t, conn.Process())

	conn.Read(serializeContinuation(3, []byte{}, true))
	err := conn.Process()
	require.Error(t, err)
	_, ok := err.(*ConnectionError)
	assert.True(t, ok)
}

func TestConnectionContinuationCompletesHeaderBlock(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	conn.Read(ConnectionPreface)
	require.NoError(t, conn.Process())

	enc := NewHPACKEncoder(4096)
	block := enc.Encode(nil, []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
	})
	split := len(block) / 2
	conn.Read(serializeHeaders(1, block[:split], true, false))
	require.NoError(t, conn.Process())
	conn.Read(serializeContinuation(1, block[split:], true))
	require.NoError(t, conn.Process())

	assert.Equal(t, "GET", h.headers[0].Value)
	assert.EqualValues(t, 0, conn.openHeaderBlockStream)
}

func TestConnectionSendDataBuffersAndResumesAfterWindowUpdate(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	conn.Read(ConnectionPreface)
	require.NoError(t, conn.Process())
	s := conn.OpenStream()
	s.SendWindow = 5

	body := []byte("0123456789012345")
	sent := conn.SendData(s.ID, body, true)
	assert.Equal(t, 5, sent)
	assert.Equal(t, body[5:], s.pendingBody)
	assert.True(t, s.pendingBodyEndStream)
	assert.False(t, s.EndStreamSent)

	conn.Read(serializeWindowUpdate(s.ID, 100))
	require.NoError(t, conn.Process())

	assert.Empty(t, s.pendingBody)
	assert.True(t, s.EndStreamSent)

	r := newReader(16384)
	for {
		op := conn.writer.NextWriteOperation()
		if op.Done {
			break
		}
		r.Read(op.Data)
		conn.writer.ReportWriteResult(len(op.Data))
	}
	var out []byte
	for {
		f, ok, err := r.TakeFrame()
		require.NoError(t, err)
		if !ok {
			break
		}
		if f.Header.Type == FrameTypeData {
			out = append(out, f.Data.Data...)
		}
	}
	assert.Equal(t, string(body), string(out))
}

func TestConnectionPushedStreamClosesOnEndStreamSentAlone(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	s := conn.OpenStream()
	require.NoError(t, s.transition(StreamReservedLocal))

	conn.SendHeaders(s.ID, []HeaderField{{Name: ":status", Value: "200"}}, false)
	assert.Equal(t, StreamHalfClosedRemote, s.State)

	conn.SendData(s.ID, []byte("pushed body"), true)
	assert.NotContains(t, conn.streams, s.ID)
	assert.Contains(t, h.closed, s.ID)
}

func TestConnectionProcessRejectsTruncatedFrameAtEOF(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	conn.Read(ConnectionPreface)
	require.NoError(t, conn.Process())

	full := serializePing([8]byte{1, 2, 3}, false)
	conn.Read(full[:len(full)-2]) // truncated tail, never completed
	conn.reader.ReadEOF()

	err := conn.Process()
	require.Error(t, err)
	_, ok := err.(*ConnectionError)
	assert.True(t, ok)
}

func TestConnectionPingRTTCallbackFiresOnAck(t *testing.T) {
	h := &recordingHandler{}
	conn := NewConnection(DefaultConfig(), true, h, NewMetrics())
	conn.Read(ConnectionPreface)
	require.NoError(t, conn.Process())

	var gotRTT bool
	conn.OnPingRTT(func(rtt time.Duration) { gotRTT = true })

	payload := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	conn.SendPing(payload)
	require.Contains(t, conn.pendingPings, payload)

	conn.Read(serializePing(payload, true))
	require.NoError(t, conn.Process())
	assert.True(t, gotRTT)
	assert.NotContains(t, conn.pendingPings, payload)
}
