package h2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyWindowUpdateOverflow(t *testing.T) {
	_, err := applyWindowUpdate(maxWindowIncrement, 1)
	require.Error(t, err)
	_, ok := err.(*ConnectionError)
	assert.True(t, ok)
}

func TestApplyWindowUpdateNormal(t *testing.T) {
	next, err := applyWindowUpdate(1000, 500)
	require.NoError(t, err)
	assert.EqualValues(t, 1500, next)
}

func TestAdjustInitialWindowSizeShiftsOpenStreams(t *testing.T) {
	streams := map[uint32]*Stream{
		1: {ID: 1, State: StreamOpen, SendWindow: 65535},
		3: {ID: 3, State: StreamClosed, SendWindow: 65535},
	}
	err := adjustInitialWindowSize(streams, 65535, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 100, streams[1].SendWindow)
	assert.EqualValues(t, 65535, streams[3].SendWindow, "closed streams are not adjusted")
}

func TestConsumeSendWindowBoundedByBothWindows(t *testing.T) {
	conn := &connFlowController{sendWindow: 10}
	s := &Stream{SendWindow: 100}
	n := consumeSendWindow(conn, s, 50)
	assert.Equal(t, 10, n)
	assert.EqualValues(t, 0, conn.sendWindow)
	assert.EqualValues(t, 90, s.SendWindow)
}

func TestConsumeSendWindowZeroWhenExhausted(t *testing.T) {
	conn := &connFlowController{sendWindow: 0}
	s := &Stream{SendWindow: 100}
	assert.Equal(t, 0, consumeSendWindow(conn, s, 50))
}

func TestConnFlowControllerReceiveAndRelease(t *testing.T) {
	c := newConnFlowController()
	c.recordReceived(1000)
	assert.EqualValues(t, 65535-1000, c.recvWindow)
	assert.EqualValues(t, 1000, c.recvConsumed)

	c.release(1000)
	assert.EqualValues(t, 65535, c.recvWindow)
	assert.EqualValues(t, 0, c.recvConsumed)
}

func TestWindowUpdateThresholdIsHalfWindow(t *testing.T) {
	assert.EqualValues(t, 32767, windowUpdateThreshold(65535))
}
