package h2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamStateStringNames(t *testing.T) {
	assert.Equal(t, "idle", StreamIdle.String())
	assert.Equal(t, "half-closed(local)", StreamHalfClosedLocal.String())
	assert.Equal(t, "closed", StreamClosed.String())
}

func TestIsLegalStreamTransition(t *testing.T) {
	assert.True(t, isLegalStreamTransition(StreamIdle, StreamOpen))
	assert.True(t, isLegalStreamTransition(StreamOpen, StreamHalfClosedLocal))
	assert.True(t, isLegalStreamTransition(StreamHalfClosedLocal, StreamClosed))
	assert.False(t, isLegalStreamTransition(StreamClosed, StreamOpen))
	assert.False(t, isLegalStreamTransition(StreamIdle, StreamHalfClosedLocal))
}

func TestStreamTransitionRejectsIllegalMove(t *testing.T) {
	s := newStream(1, 65535, 65535)
	require.NoError(t, s.transition(StreamOpen))
	require.NoError(t, s.transition(StreamClosed))

	err := s.transition(StreamOpen)
	require.Error(t, err)
	serr, ok := err.(*StreamError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeStreamClosed, serr.Code)
}

func TestNewStreamDefaults(t *testing.T) {
	s := newStream(3, 1000, 2000)
	assert.Equal(t, StreamIdle, s.State)
	assert.EqualValues(t, 1000, s.SendWindow)
	assert.EqualValues(t, 2000, s.RecvWindow)
	assert.EqualValues(t, 16, s.Weight)
}

func TestHeaderFieldSize(t *testing.T) {
	f := HeaderField{Name: "content-type", Value: "text/plain"}
	assert.Equal(t, len("content-type")+len("text/plain")+32, f.size())
}

func TestAppendAndTakeHeaderBlockFragment(t *testing.T) {
	s := newStream(1, 65535, 65535)
	s.appendHeaderBlockFragment([]byte{1, 2, 3})
	s.appendHeaderBlockFragment([]byte{4, 5})
	block := s.takeHeaderBlock()
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, block)
	assert.Nil(t, s.pendingHeaderBlock)
}
