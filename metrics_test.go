package h2

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionHpackEvictionUpdatesMetrics(t *testing.T) {
	h := &recordingHandler{}
	m := NewMetrics()
	conn := NewConnection(DefaultConfig(), true, h, m)

	conn.hpackEnc.dyn.setMaxSize(1) // force every add to evict immediately
	conn.hpackEnc.Encode(nil, []HeaderField{{Name: "custom-key", Value: "custom-value", Indexing: IndexIncremental}})

	assert.EqualValues(t, 1, m.hpackEvictions.Load())
}

func TestConnectionSendDataStallIncrementsFlowControlStalls(t *testing.T) {
	h := &recordingHandler{}
	m := NewMetrics()
	conn := NewConnection(DefaultConfig(), true, h, m)
	s := conn.OpenStream()
	s.SendWindow = 0

	conn.SendData(s.ID, []byte("blocked"), false)
	assert.EqualValues(t, 1, m.flowControlStalls.Load())
}
