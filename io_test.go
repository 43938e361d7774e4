package h2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderNextReadOperationWantsHeaderFirst(t *testing.T) {
	r := newReader(16384)
	op := r.NextReadOperation()
	assert.Equal(t, frameHeaderLen, op.WantBytes)
	assert.True(t, op.EOFAcceptable)
}

func TestReaderAccumulatesAndYieldsFrame(t *testing.T) {
	r := newReader(16384)
	raw := serializeSettingsAck()

	r.Read(raw[:3])
	op := r.NextReadOperation()
	assert.Greater(t, op.WantBytes, 0)

	r.Read(raw[3:])
	f, ok, err := r.TakeFrame()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, FrameTypeSettings, f.Header.Type)
	assert.True(t, f.Settings.Ack)

	_, ok, err = r.TakeFrame()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReaderTakeFrameNoneBuffered(t *testing.T) {
	r := newReader(16384)
	f, ok, err := r.TakeFrame()
	assert.Nil(t, f)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestReaderReadEOF(t *testing.T) {
	r := newReader(16384)
	assert.False(t, r.AtEOF())
	r.ReadEOF()
	assert.True(t, r.AtEOF())
}

func TestWriterQueuesAndDrains(t *testing.T) {
	w := newWriter()
	assert.True(t, w.NextWriteOperation().Done)

	w.enqueue([]byte("hello"))
	w.enqueue([]byte("world"))
	assert.Equal(t, 10, w.YieldWriter())

	op := w.NextWriteOperation()
	assert.Equal(t, "hello", string(op.Data))

	w.ReportWriteResult(2)
	op = w.NextWriteOperation()
	assert.Equal(t, "llo", string(op.Data))

	w.ReportWriteResult(3)
	op = w.NextWriteOperation()
	assert.Equal(t, "world", string(op.Data))
	assert.True(t, w.Pending())

	w.ReportWriteResult(5)
	assert.True(t, w.NextWriteOperation().Done)
	assert.False(t, w.Pending())
}
